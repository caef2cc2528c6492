package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	accounts, _ := args.Get(0).([]string)
	return accounts, args.Error(1)
}

func (m *MockProvider) ChainID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) SwitchChain(ctx context.Context, chainID string) error {
	args := m.Called(ctx, chainID)
	return args.Error(0)
}

const owner = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

func TestConnect_AlreadyOnTarget(t *testing.T) {
	p := new(MockProvider)
	p.On("RequestAccounts", mock.Anything).Return([]string{owner, "0x2"}, nil)
	p.On("ChainID", mock.Anything).Return("0x01", nil)

	sess, err := Connect(context.Background(), p, "0x1")
	require.NoError(t, err)
	assert.Equal(t, owner, sess.Address)
	assert.False(t, sess.Switched)
	p.AssertNotCalled(t, "SwitchChain", mock.Anything, mock.Anything)
}

func TestConnect_SwitchesChain(t *testing.T) {
	p := new(MockProvider)
	p.On("RequestAccounts", mock.Anything).Return([]string{owner}, nil)
	p.On("ChainID", mock.Anything).Return("0xaa36a7", nil)
	p.On("SwitchChain", mock.Anything, "0x1").Return(nil)

	sess, err := Connect(context.Background(), p, "0x1")
	require.NoError(t, err)
	assert.True(t, sess.Switched)
	assert.Equal(t, "0x1", sess.ChainID)
	p.AssertExpectations(t)
}

func TestConnect_SwitchFailureKeepsAddress(t *testing.T) {
	p := new(MockProvider)
	p.On("RequestAccounts", mock.Anything).Return([]string{owner}, nil)
	p.On("ChainID", mock.Anything).Return("0x89", nil)
	p.On("SwitchChain", mock.Anything, "0x1").Return(errors.New("boom"))

	sess, err := Connect(context.Background(), p, "0x1")
	require.Error(t, err)
	assert.Equal(t, owner, sess.Address)
	assert.Equal(t, "0x89", sess.ChainID)
}

func TestConnect_NoAccounts(t *testing.T) {
	p := new(MockProvider)
	p.On("RequestAccounts", mock.Anything).Return([]string{}, nil)

	_, err := Connect(context.Background(), p, "0x1")
	assert.ErrorIs(t, err, ErrNoAccounts)
}

func TestConnect_NilProvider(t *testing.T) {
	_, err := Connect(context.Background(), nil, "0x1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSameChain(t *testing.T) {
	assert.True(t, SameChain("0x1", "0x01"))
	assert.True(t, SameChain("0x1", "1"))
	assert.True(t, SameChain("0xAA36A7", "0xaa36a7"))
	assert.False(t, SameChain("0x1", "0x89"))
	assert.False(t, SameChain("", "0x1"))
}

// newFakeWallet answers wallet JSON-RPC calls. codes maps a method to an error code.
func newFakeWallet(t *testing.T, chainID string, codes map[string]int) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu      sync.Mutex
		methods []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		mu.Lock()
		methods = append(methods, req.Method)
		mu.Unlock()
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if code, ok := codes[req.Method]; ok {
			resp["error"] = map[string]interface{}{"code": code, "message": "denied"}
		} else {
			switch req.Method {
			case "eth_requestAccounts":
				resp["result"] = []string{owner}
			case "eth_chainId":
				resp["result"] = chainID
			case "wallet_switchEthereumChain":
				var p switchChainParam
				if len(req.Params) == 1 && json.Unmarshal(req.Params[0], &p) == nil && p.ChainID != "" {
					resp["result"] = nil
				} else {
					resp["error"] = map[string]interface{}{"code": -32602, "message": "bad params"}
				}
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), methods...)
	}
}

func TestRPCProvider_Connect(t *testing.T) {
	server, methods := newFakeWallet(t, "0x89", nil)
	p, err := Dial(context.Background(), server.URL, 5*time.Second, nil)
	require.NoError(t, err)
	defer p.Close()

	sess, err := Connect(context.Background(), p, "0x1")
	require.NoError(t, err)
	assert.Equal(t, owner, sess.Address)
	assert.True(t, sess.Switched)
	assert.Equal(t, []string{"eth_requestAccounts", "eth_chainId", "wallet_switchEthereumChain"}, methods())
}

func TestRPCProvider_UserRejected(t *testing.T) {
	server, _ := newFakeWallet(t, "0x1", map[string]int{"eth_requestAccounts": CodeUserRejected})
	p, err := Dial(context.Background(), server.URL, 5*time.Second, nil)
	require.NoError(t, err)
	defer p.Close()

	_, err = Connect(context.Background(), p, "0x1")
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestRPCProvider_ChainNotAdded(t *testing.T) {
	server, _ := newFakeWallet(t, "0x89", map[string]int{"wallet_switchEthereumChain": CodeChainNotAdded})
	p, err := Dial(context.Background(), server.URL, 5*time.Second, nil)
	require.NoError(t, err)
	defer p.Close()

	sess, err := Connect(context.Background(), p, "0x1")
	assert.ErrorIs(t, err, ErrChainNotAdded)
	assert.Equal(t, owner, sess.Address)
}

func TestDial_NotConfigured(t *testing.T) {
	_, err := Dial(context.Background(), "", time.Second, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
