package siwe

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// FarcasterChainID is the chain Farcaster sign-in messages are issued for (OP mainnet).
	FarcasterChainID = 10

	// DefaultIDRegistry is the Farcaster IdRegistry contract on OP mainnet.
	DefaultIDRegistry = "0x00000000Fc6c5F01Fc30151999387Bb99A9f489b"

	fidResourcePrefix = "farcaster://fid/"

	idRegistryABI = `[{"inputs":[{"name":"owner","type":"address"}],"name":"idOf","outputs":[{"name":"fid","type":"uint256"}],"stateMutability":"view","type":"function"}]`
)

var idRegistryParsed = mustParseABI(idRegistryABI)

// FidResolver returns the fid whose custody address is owner, or 0 when none.
type FidResolver interface {
	FidOf(ctx context.Context, owner common.Address) (uint64, error)
}

// IDRegistry resolves fids through the on-chain IdRegistry.
type IDRegistry struct {
	caller  ContractCaller
	address common.Address
	abi     abi.ABI
}

// NewIDRegistry binds an IDRegistry to the contract at address.
func NewIDRegistry(caller ContractCaller, address string) (*IDRegistry, error) {
	if caller == nil {
		return nil, errors.New("siwe: id registry requires a contract caller")
	}
	if address == "" {
		address = DefaultIDRegistry
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("siwe: invalid id registry address %q", address)
	}
	return &IDRegistry{caller: caller, address: common.HexToAddress(address), abi: idRegistryParsed}, nil
}

// FidOf implements FidResolver.
func (r *IDRegistry) FidOf(ctx context.Context, owner common.Address) (uint64, error) {
	data, err := r.abi.Pack("idOf", owner)
	if err != nil {
		return 0, err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("siwe: idOf call: %w", err)
	}
	values, err := r.abi.Unpack("idOf", out)
	if err != nil {
		return 0, fmt.Errorf("siwe: decode idOf: %w", err)
	}
	fid, ok := values[0].(*big.Int)
	if !ok || !fid.IsUint64() {
		return 0, errors.New("siwe: unexpected idOf result")
	}
	return fid.Uint64(), nil
}

// Fid returns the fid named by the message's farcaster://fid/<n> resource.
func (m *Message) Fid() (uint64, error) {
	for _, r := range m.Resources {
		if !strings.HasPrefix(r, fidResourcePrefix) {
			continue
		}
		fid, err := strconv.ParseUint(strings.TrimPrefix(r, fidResourcePrefix), 10, 64)
		if err != nil || fid == 0 {
			return 0, fmt.Errorf("%w: invalid fid resource %q", ErrMalformedMessage, r)
		}
		return fid, nil
	}
	return 0, fmt.Errorf("%w: missing fid resource", ErrMalformedMessage)
}

// FarcasterResult is the identity proven by a Farcaster sign-in message.
type FarcasterResult struct {
	Fid     uint64
	Address common.Address
	Message *Message
}

// VerifyFarcaster verifies a Sign-In-With-Farcaster message: the same nonce, domain and
// URI binding as Verify, a custody signature, and on-chain proof that the signer owns the
// claimed fid.
func (v *Verifier) VerifyFarcaster(ctx context.Context, raw, signature, expectedNonce string) (FarcasterResult, error) {
	if v.fids == nil {
		return FarcasterResult{}, ErrFarcasterDisabled
	}
	msg, err := v.checkMessage(raw, expectedNonce)
	if err != nil {
		return FarcasterResult{}, err
	}
	if msg.ChainID != FarcasterChainID {
		return FarcasterResult{}, fmt.Errorf("%w: %d", ErrChainNotAllowed, msg.ChainID)
	}
	fid, err := msg.Fid()
	if err != nil {
		return FarcasterResult{}, err
	}
	if err := v.checkSignature(ctx, raw, signature, msg.ChainID, msg.Address); err != nil {
		return FarcasterResult{}, err
	}
	owned, err := v.fids.FidOf(ctx, msg.Address)
	if err != nil {
		return FarcasterResult{}, err
	}
	if owned != fid {
		return FarcasterResult{}, fmt.Errorf("%w: fid %d is not held by %s", ErrSignatureInvalid, fid, msg.Address.Hex())
	}
	return FarcasterResult{Fid: fid, Address: msg.Address, Message: msg}, nil
}
