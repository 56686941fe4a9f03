// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// Packet discriminators. The first 4 bytes of every payload select the
// handler; the set is closed, and adding a variant is a protocol upgrade.
var (
	// PacketRedemption mints the bridge's wrapped asset to a recipient:
	// [discriminator][abi(amount uint256, recipient address)]
	PacketRedemption = [4]byte{0x00, 0x00, 0x00, 0x01}

	// PacketGenericMint mints an arbitrary bridged token:
	// [discriminator][abi(token address, amount uint256, recipient address, extraData bytes)]
	PacketGenericMint = [4]byte{0x00, 0x00, 0x00, 0x02}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("failed to create ABI type %q: %v", t, err))
	}
	return typ
}

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		args = append(args, abi.Argument{Type: mustType(t)})
	}
	return args
}

var (
	uint256Type = mustType("uint256")
	addressType = mustType("address")
	bytesType   = mustType("bytes")

	redemptionArgs = abi.Arguments{
		{Name: "amount", Type: uint256Type},
		{Name: "recipient", Type: addressType},
	}
	genericMintArgs = abi.Arguments{
		{Name: "token", Type: addressType},
		{Name: "amount", Type: uint256Type},
		{Name: "recipient", Type: addressType},
		{Name: "extraData", Type: bytesType},
	}
	redemptionBurnArgs = abi.Arguments{
		{Name: "amount", Type: uint256Type},
		{Name: "sender", Type: addressType},
	}
)

// EncodeRedemptionPacket builds an inbound redemption payload.
func EncodeRedemptionPacket(amount *big.Int, recipient common.Address) ([]byte, error) {
	body, err := redemptionArgs.Pack(amount, recipient)
	if err != nil {
		return nil, err
	}
	return append(PacketRedemption[:], body...), nil
}

// EncodeGenericMintPacket builds an inbound generic token-mint payload.
func EncodeGenericMintPacket(token common.Address, amount *big.Int, recipient common.Address, extraData []byte) ([]byte, error) {
	if extraData == nil {
		extraData = []byte{}
	}
	body, err := genericMintArgs.Pack(token, amount, recipient, extraData)
	if err != nil {
		return nil, err
	}
	return append(PacketGenericMint[:], body...), nil
}

// EncodeRedemptionBurn builds the outbound payload announcing a redemption
// burn to the remote chain.
func EncodeRedemptionBurn(amount *big.Int, sender common.Address) ([]byte, error) {
	body, err := redemptionBurnArgs.Pack(amount, sender)
	if err != nil {
		return nil, err
	}
	return append(PacketRedemption[:], body...), nil
}

// ReceivePacket routes a verified inbound payload by its 4-byte discriminator.
// Only the trusted transport hub may deliver packets; transport-level
// verification has already happened before this point.
func (e *Engine) ReceivePacket(caller common.Address, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.hub {
		return ErrUnauthorized
	}
	if len(payload) < 4 {
		return ErrUnknownPacketType
	}

	var discriminator [4]byte
	copy(discriminator[:], payload[:4])
	body := payload[4:]

	switch discriminator {
	case PacketRedemption:
		return e.handleRedemption(body)
	case PacketGenericMint:
		return e.handleGenericMint(body)
	default:
		return ErrUnknownPacketType
	}
}

func (e *Engine) handleRedemption(body []byte) error {
	values, err := redemptionArgs.Unpack(body)
	if err != nil {
		return ErrInvalidPayload
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return ErrInvalidPayload
	}
	recipient, ok := values[1].(common.Address)
	if !ok {
		return ErrInvalidPayload
	}

	if err := e.minter.Mint(e.wrappedAsset, recipient, amount); err != nil {
		e.log.Warn("redemption mint rejected", "recipient", recipient, "amount", amount, "err", err)
		return ErrMintFailed
	}

	e.log.Info("redemption minted", "recipient", recipient, "amount", amount)
	return nil
}

func (e *Engine) handleGenericMint(body []byte) error {
	values, err := genericMintArgs.Unpack(body)
	if err != nil {
		return ErrInvalidPayload
	}
	token, ok := values[0].(common.Address)
	if !ok {
		return ErrInvalidPayload
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return ErrInvalidPayload
	}
	recipient, ok := values[2].(common.Address)
	if !ok {
		return ErrInvalidPayload
	}
	// values[3] (extraData) is reserved and currently unused.

	if err := e.minter.Mint(token, recipient, amount); err != nil {
		e.log.Warn("generic mint rejected", "token", token, "recipient", recipient, "amount", amount, "err", err)
		return ErrMintFailed
	}

	e.log.Info("generic token minted", "token", token, "recipient", recipient, "amount", amount)
	return nil
}

// RedeemToRemote burns [amount] of the wrapped asset from [caller] and sends
// the redemption-burn payload to the remote chain on the redemption channel.
// If the transport rejects the send, the burn is compensated by re-minting.
func (e *Engine) RedeemToRemote(caller common.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	if err := e.minter.Burn(e.wrappedAsset, caller, amount); err != nil {
		e.log.Warn("redemption burn rejected", "holder", caller, "amount", amount, "err", err)
		return ErrBurnFailed
	}

	payload, err := EncodeRedemptionBurn(amount, caller)
	if err != nil {
		_ = e.minter.Mint(e.wrappedAsset, caller, amount)
		return ErrInvalidPayload
	}

	if err := e.transport.Send(e.redemptionChannel, payload); err != nil {
		// Compensate the burn; the packet never left.
		_ = e.minter.Mint(e.wrappedAsset, caller, amount)
		e.log.Warn("redemption send rejected", "channel", e.redemptionChannel, "err", err)
		return ErrRedemptionSendFailed
	}

	e.log.Info("redemption sent", "channel", e.redemptionChannel, "sender", caller, "amount", amount)
	return nil
}
