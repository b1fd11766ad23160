package siwe

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc1271ABI = `[{"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view","type":"function"}]`

var (
	erc1271Magic  = []byte{0x16, 0x26, 0xba, 0x7e}
	erc1271Parsed = mustParseABI(erc1271ABI)
)

// ContractCaller executes read-only contract calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial connects to an Ethereum JSON-RPC endpoint.
func Dial(ctx context.Context, rawURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("siwe: dial %s: %w", redactURL(rawURL), err)
	}
	return client, nil
}

// isValidContractSignature asks the wallet contract at addr whether sig is valid for hash.
// Accounts without code return an empty result and are reported as invalid.
func isValidContractSignature(ctx context.Context, caller ContractCaller, addr common.Address, hash, sig []byte) (bool, error) {
	var digest [32]byte
	copy(digest[:], hash)
	data, err := erc1271Parsed.Pack("isValidSignature", digest, sig)
	if err != nil {
		return false, err
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return false, err
	}
	return len(out) >= 4 && bytes.Equal(out[:4], erc1271Magic), nil
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func redactURL(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		rest := raw[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return raw[:i+3] + rest[:j]
		}
	}
	return raw
}
