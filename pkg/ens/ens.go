// Package ens resolves .eth names to account addresses through the ENS registry.
package ens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RegistryAddress is the ENS registry on Ethereum mainnet and its testnets.
var RegistryAddress = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

// ErrNotFound is returned when a name has no resolver or no address record.
var ErrNotFound = errors.New("name not found")

const ensABI = `[
{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"resolver","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[{"name":"node","type":"bytes32"}],"name":"addr","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"}
]`

var (
	parsedABI     abi.ABI
	parsedABIOnce sync.Once
)

func contractABI() abi.ABI {
	parsedABIOnce.Do(func() {
		var err error
		parsedABI, err = abi.JSON(strings.NewReader(ensABI))
		if err != nil {
			panic(fmt.Sprintf("failed to parse ENS ABI: %v", err))
		}
	})
	return parsedABI
}

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver looks up address records.
type Resolver struct {
	caller   Caller
	registry common.Address
}

func NewResolver(caller Caller) *Resolver {
	return &Resolver{caller: caller, registry: RegistryAddress}
}

// Namehash implements the EIP-137 name hashing algorithm.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), labelHash)
	}
	return node
}

// Normalize lowercases and trims a name. Full UTS-46 mapping is not applied.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve returns the address record of name.
func (r *Resolver) Resolve(ctx context.Context, name string) (common.Address, error) {
	node := Namehash(Normalize(name))

	resolverAddr, err := r.callAddress(ctx, r.registry, "resolver", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("lookup resolver for %s: %w", name, err)
	}
	if resolverAddr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	addr, err := r.callAddress(ctx, resolverAddr, "addr", node)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolve %s: %w", name, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return addr, nil
}

func (r *Resolver) callAddress(ctx context.Context, to common.Address, method string, node common.Hash) (common.Address, error) {
	parsed := contractABI()
	data, err := parsed.Pack(method, node)
	if err != nil {
		return common.Address{}, err
	}
	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, nil
	}
	unpacked, err := parsed.Unpack(method, out)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(unpacked) == 0 {
		return common.Address{}, fmt.Errorf("%s returned no data", method)
	}
	addr, ok := unpacked[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s result type %T", method, unpacked[0])
	}
	return addr, nil
}
