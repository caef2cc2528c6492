package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"erc20idx/pkg/models"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Hosts maps a network name to its data API host.
var Hosts = map[string]string{
	"eth-mainnet":     "https://eth-mainnet.g.alchemy.com/v2/",
	"eth-sepolia":     "https://eth-sepolia.g.alchemy.com/v2/",
	"polygon-mainnet": "https://polygon-mainnet.g.alchemy.com/v2/",
	"polygon-amoy":    "https://polygon-amoy.g.alchemy.com/v2/",
	"arb-mainnet":     "https://arb-mainnet.g.alchemy.com/v2/",
	"opt-mainnet":     "https://opt-mainnet.g.alchemy.com/v2/",
	"base-mainnet":    "https://base-mainnet.g.alchemy.com/v2/",
}

// ChainIDs maps a network name to its chain id as a hex quantity.
var ChainIDs = map[string]string{
	"eth-mainnet":     "0x1",
	"eth-sepolia":     "0xaa36a7",
	"polygon-mainnet": "0x89",
	"polygon-amoy":    "0x13882",
	"arb-mainnet":     "0xa4b1",
	"opt-mainnet":     "0xa",
	"base-mainnet":    "0x2105",
}

var DefaultTimeout = 30 * time.Second

// Options configures a data API client.
type Options struct {
	// URL overrides the endpoint derived from Network and APIKey.
	URL       string
	Network   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
}

// Endpoint builds the JSON-RPC URL for the configured network.
func (o Options) Endpoint() (string, error) {
	if o.URL != "" {
		return o.URL, nil
	}
	host, ok := Hosts[o.Network]
	if !ok {
		return "", fmt.Errorf("unknown network %q", o.Network)
	}
	if o.APIKey == "" {
		return "", fmt.Errorf("missing API key for network %s", o.Network)
	}
	return host + o.APIKey, nil
}

// Client talks to the blockchain-data API over JSON-RPC.
type Client struct {
	rpc     *gethrpc.Client
	url     string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Dial creates a client. No request is sent until the first call.
func Dial(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	url, err := opts.Endpoint()
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := gethrpc.DialOptions(ctx, url, gethrpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial data API: %w", err)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		rpc:     c,
		url:     url,
		timeout: timeout,
		limiter: limiter,
		logger:  logger.Named("rpc"),
	}, nil
}

// Raw exposes the underlying JSON-RPC client for plain eth_* calls.
func (c *Client) Raw() *gethrpc.Client {
	return c.rpc
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limit wait: %w", method, err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.redact(c.rpc.CallContext(ctx, result, method, args...))
	c.logger.Debug("rpc call",
		zap.String("method", method),
		zap.Duration("took", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// redact keeps the API key out of transport errors, which quote the request URL.
func (c *Client) redact(err error) error {
	masked := MaskKey(c.url)
	if err == nil || masked == c.url {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = MaskKey(urlErr.URL)
	}
	key := c.url[len(masked)-len("****"):]
	if strings.Contains(err.Error(), key) {
		return errors.New(strings.ReplaceAll(err.Error(), key, "****"))
	}
	return err
}

// GetTokenBalances lists the ERC-20 balances held by owner.
func (c *Client) GetTokenBalances(ctx context.Context, owner string) (models.TokenBalances, error) {
	var res models.TokenBalances
	if err := c.call(ctx, &res, "alchemy_getTokenBalances", owner, "erc20"); err != nil {
		return models.TokenBalances{}, err
	}
	if res.TokenBalances == nil {
		res.TokenBalances = []models.TokenBalance{}
	}
	return res, nil
}

// GetTokenMetadata returns name, symbol, decimals and logo for a token contract.
func (c *Client) GetTokenMetadata(ctx context.Context, contract string) (models.TokenMetadata, error) {
	var res models.TokenMetadata
	if err := c.call(ctx, &res, "alchemy_getTokenMetadata", contract); err != nil {
		return models.TokenMetadata{}, err
	}
	return res, nil
}

// ChainID returns the chain id reported by the endpoint as a hex quantity.
func (c *Client) ChainID(ctx context.Context) (string, error) {
	var id string
	if err := c.call(ctx, &id, "eth_chainId"); err != nil {
		return "", err
	}
	return strings.ToLower(id), nil
}

// Probe measures a round trip to the endpoint. The API key is masked in the result.
func (c *Client) Probe(ctx context.Context) models.EndpointResult {
	res := models.EndpointResult{Name: "data-api", URL: MaskKey(c.url)}
	start := time.Now()
	id, err := c.ChainID(ctx)
	if err != nil {
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	res.Status = "ok"
	res.ChainID = id
	res.Latency = time.Since(start).Round(time.Millisecond).String()
	return res
}

// MaskKey hides the trailing path segment of an API URL.
func MaskKey(url string) string {
	i := strings.LastIndex(url, "/")
	if i < 0 || i == len(url)-1 || !strings.Contains(url, "/v2/") {
		return url
	}
	return url[:i+1] + "****"
}
