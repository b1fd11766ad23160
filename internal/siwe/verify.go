package siwe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// ChallengeTTL is how long a prepared challenge stays signable.
const ChallengeTTL = 5 * time.Minute

// Verifier decides whether a signed message proves control of the address it names,
// for this deployment's domain and origin.
type Verifier struct {
	domain  string
	uri     string
	chains  map[int64]struct{}
	callers map[int64]ContractCaller
	fids    FidResolver
	now     func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithAllowedChains restricts accepted SIWE chain ids. An empty list accepts any chain.
func WithAllowedChains(ids ...int64) Option {
	return func(v *Verifier) {
		for _, id := range ids {
			v.chains[id] = struct{}{}
		}
	}
}

// WithContractCaller enables EIP-1271 smart-contract wallet signatures for messages
// issued on chainID. The caller must be connected to that chain.
func WithContractCaller(chainID int64, c ContractCaller) Option {
	return func(v *Verifier) {
		if c != nil {
			v.callers[chainID] = c
		}
	}
}

// WithFidResolver enables Sign-In-With-Farcaster verification.
func WithFidResolver(r FidResolver) Option {
	return func(v *Verifier) { v.fids = r }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(v *Verifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewVerifier binds a Verifier to the expected domain and origin URI.
func NewVerifier(domain, uri string, opts ...Option) (*Verifier, error) {
	if domain == "" || uri == "" {
		return nil, errors.New("siwe: domain and uri are required")
	}
	v := &Verifier{
		domain:  domain,
		uri:     uri,
		chains:  make(map[int64]struct{}),
		callers: make(map[int64]ContractCaller),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// ContractChain reports whether EIP-1271 checks are available for chainID.
func (v *Verifier) ContractChain(chainID int64) bool {
	_, ok := v.callers[chainID]
	return ok
}

// Domain returns the domain messages must name.
func (v *Verifier) Domain() string { return v.domain }

// URI returns the origin URI messages must name.
func (v *Verifier) URI() string { return v.uri }

// ChainAllowed reports whether id passes the chain allow-list.
func (v *Verifier) ChainAllowed(id int64) bool {
	if len(v.chains) == 0 {
		return true
	}
	_, ok := v.chains[id]
	return ok
}

// Result is the identity proven by a verified message.
type Result struct {
	Address common.Address
	ChainID int64
	Message *Message
}

// Verify parses raw, checks its binding to expectedNonce, this domain and URI, its
// validity window and chain, then checks signature against the address in the message.
func (v *Verifier) Verify(ctx context.Context, raw, signature, expectedNonce string) (Result, error) {
	msg, err := v.checkMessage(raw, expectedNonce)
	if err != nil {
		return Result{}, err
	}
	if !v.ChainAllowed(msg.ChainID) {
		return Result{}, fmt.Errorf("%w: %d", ErrChainNotAllowed, msg.ChainID)
	}
	if err := v.checkSignature(ctx, raw, signature, msg.ChainID, msg.Address); err != nil {
		return Result{}, err
	}
	return Result{Address: msg.Address, ChainID: msg.ChainID, Message: msg}, nil
}

// Challenge builds the message a wallet should sign for address on chainID.
func (v *Verifier) Challenge(address common.Address, chainID int64, nonce, statement string) (*Message, error) {
	if !v.ChainAllowed(chainID) {
		return nil, fmt.Errorf("%w: %d", ErrChainNotAllowed, chainID)
	}
	if !validNonce(nonce) {
		return nil, fmt.Errorf("%w: invalid nonce", ErrMalformedMessage)
	}
	issued := v.now().UTC().Truncate(time.Millisecond)
	expires := issued.Add(ChallengeTTL)
	return &Message{
		Domain:         v.domain,
		Address:        address,
		Statement:      statement,
		URI:            v.uri,
		Version:        Version,
		ChainID:        chainID,
		Nonce:          nonce,
		IssuedAt:       issued,
		ExpirationTime: &expires,
	}, nil
}

func (v *Verifier) checkMessage(raw, expectedNonce string) (*Message, error) {
	msg, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if expectedNonce == "" || msg.Nonce != expectedNonce {
		return nil, ErrNonceMismatch
	}
	if msg.Domain != v.domain {
		return nil, ErrDomainMismatch
	}
	if msg.URI != v.uri {
		return nil, ErrURIMismatch
	}
	if err := msg.ValidAt(v.now()); err != nil {
		return nil, err
	}
	return msg, nil
}

func (v *Verifier) checkSignature(ctx context.Context, raw, signature string, chainID int64, claimed common.Address) error {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) == 0 {
		return fmt.Errorf("%w: signature is not hex", ErrSignatureInvalid)
	}
	hash := accounts.TextHash([]byte(raw))
	if len(sig) == crypto.SignatureLength {
		if addr, err := recoverAddress(hash, sig); err == nil && addr == claimed {
			return nil
		}
	}
	caller, found := v.callers[chainID]
	if !found {
		return ErrSignatureInvalid
	}
	ok, err := isValidContractSignature(ctx, caller, claimed, hash, sig)
	if err != nil {
		if unreachable(err) {
			return fmt.Errorf("siwe: contract signature check: %w", err)
		}
		// The node answered: a revert or a contract without isValidSignature.
		return fmt.Errorf("%w: contract rejected signature: %v", ErrSignatureInvalid, err)
	}
	if !ok {
		return ErrSignatureInvalid
	}
	return nil
}

// unreachable reports whether err means the node could not be asked at all, as opposed
// to the contract rejecting the call.
func unreachable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr rpc.HTTPError
	return errors.As(err, &httpErr)
}

func recoverAddress(hash, sig []byte) (common.Address, error) {
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	if normalized[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, errors.New("invalid recovery id")
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
