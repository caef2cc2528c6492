// Package wallet connects to an account provider and makes sure it is on the
// target network before any balances are queried.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"erc20idx/pkg/utils"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected  = 4001
	CodeChainNotAdded = 4902
)

var (
	ErrNoAccounts    = errors.New("wallet returned no accounts")
	ErrUserRejected  = errors.New("request rejected by user")
	ErrChainNotAdded = errors.New("target chain is not configured in the wallet")
	ErrNotConfigured = errors.New("wallet not configured")
)

// Provider is the account and chain capability of a wallet.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (string, error)
	SwitchChain(ctx context.Context, chainID string) error
}

// Session is the outcome of a successful (or partially successful) connect.
type Session struct {
	Address  string
	ChainID  string
	Switched bool
}

// Connect requests accounts and switches the wallet to targetChainID when the
// active chain differs. If the switch fails the session still carries the
// address and the error is returned with it.
func Connect(ctx context.Context, p Provider, targetChainID string) (Session, error) {
	if p == nil {
		return Session{}, ErrNotConfigured
	}

	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("request accounts: %w", classify(err))
	}
	if len(accounts) == 0 {
		return Session{}, ErrNoAccounts
	}
	sess := Session{Address: accounts[0]}

	chainID, err := p.ChainID(ctx)
	if err != nil {
		return sess, fmt.Errorf("read chain id: %w", classify(err))
	}
	sess.ChainID = strings.ToLower(chainID)

	if SameChain(sess.ChainID, targetChainID) {
		return sess, nil
	}
	if err := p.SwitchChain(ctx, targetChainID); err != nil {
		return sess, fmt.Errorf("switch to chain %s: %w", targetChainID, classify(err))
	}
	sess.ChainID = strings.ToLower(targetChainID)
	sess.Switched = true
	return sess, nil
}

// SameChain compares two chain ids as integer quantities ("0x1" == "0x01" == "1").
func SameChain(a, b string) bool {
	x, errA := utils.ParseBigInt(a)
	y, errB := utils.ParseBigInt(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
	}
	return x.Cmp(y) == 0
}

func classify(err error) error {
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected:
			return fmt.Errorf("%w: %v", ErrUserRejected, err)
		case CodeChainNotAdded:
			return fmt.Errorf("%w: %v", ErrChainNotAdded, err)
		}
	}
	return err
}

// RPCProvider speaks the wallet JSON-RPC methods to an endpoint.
type RPCProvider struct {
	client *gethrpc.Client
	logger *zap.Logger
}

// Dial connects to a wallet JSON-RPC endpoint (http, ws or ipc).
func Dial(ctx context.Context, url string, timeout time.Duration, logger *zap.Logger) (*RPCProvider, error) {
	if url == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := gethrpc.DialOptions(ctx, url, gethrpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial wallet: %w", err)
	}
	return &RPCProvider{client: c, logger: logger.Named("wallet")}, nil
}

func (p *RPCProvider) Close() {
	p.client.Close()
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts")
	p.logger.Debug("eth_requestAccounts", zap.Int("accounts", len(accounts)), zap.Error(err))
	return accounts, err
}

func (p *RPCProvider) ChainID(ctx context.Context) (string, error) {
	var id string
	err := p.client.CallContext(ctx, &id, "eth_chainId")
	return id, err
}

type switchChainParam struct {
	ChainID string `json:"chainId"`
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID string) error {
	p.logger.Info("requesting chain switch", zap.String("chain_id", chainID))
	return p.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParam{ChainID: chainID})
}
