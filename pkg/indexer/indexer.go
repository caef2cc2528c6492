// Package indexer fetches the ERC-20 balances of an address together with the
// metadata of every token, and drops tokens without a usable name and symbol.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"erc20idx/pkg/address"
	"erc20idx/pkg/metrics"
	"erc20idx/pkg/models"
	"erc20idx/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoResolver is returned for names when no name resolver is configured.
var ErrNoResolver = errors.New("name resolution not available")

// DataSource is the blockchain-data API used by the indexer.
type DataSource interface {
	GetTokenBalances(ctx context.Context, owner string) (models.TokenBalances, error)
	GetTokenMetadata(ctx context.Context, contract string) (models.TokenMetadata, error)
}

// Resolver turns a name into an account address.
type Resolver interface {
	Resolve(ctx context.Context, name string) (common.Address, error)
}

type Options struct {
	// CacheTTL keeps metadata per contract. Zero disables caching.
	CacheTTL time.Duration
	// Concurrency bounds in-flight metadata lookups. Zero or less means no bound.
	Concurrency int
}

type Indexer struct {
	source      DataSource
	resolver    Resolver
	cache       *cache.Cache
	concurrency int
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func New(source DataSource, resolver Resolver, opts Options, m *metrics.Metrics, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	ix := &Indexer{
		source:      source,
		resolver:    resolver,
		concurrency: opts.Concurrency,
		metrics:     m,
		logger:      logger.Named("indexer"),
	}
	if opts.CacheTTL > 0 {
		ix.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return ix
}

// Fetch runs a full query for input: validate, resolve names, list balances,
// look up metadata for every entry concurrently and filter.
func (ix *Indexer) Fetch(ctx context.Context, input string) (models.QueryResult, error) {
	input = strings.TrimSpace(input)
	if err := address.Validate(input); err != nil {
		return models.QueryResult{}, err
	}

	owner := input
	if address.IsName(input) {
		if ix.resolver == nil {
			return models.QueryResult{}, fmt.Errorf("%s: %w", input, ErrNoResolver)
		}
		resolved, err := ix.resolver.Resolve(ctx, input)
		if err != nil {
			return models.QueryResult{}, err
		}
		owner = resolved.Hex()
		ix.logger.Debug("resolved name", zap.String("name", input), zap.String("address", owner))
	}

	balances, err := ix.source.GetTokenBalances(ctx, owner)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("get token balances: %w", err)
	}

	readable := Readable(balances.TokenBalances)
	if skipped := len(balances.TokenBalances) - len(readable); skipped > 0 {
		ix.logger.Warn("skipping unreadable balances", zap.String("address", owner), zap.Int("count", skipped))
	}

	metadata, err := ix.lookupAll(ctx, readable)
	if err != nil {
		return models.QueryResult{}, err
	}

	kept, keptMeta := Filter(readable, metadata)
	ix.metrics.ObserveFilter(len(kept), len(balances.TokenBalances)-len(kept))
	ix.logger.Info("query complete",
		zap.String("address", owner),
		zap.Int("tokens", len(balances.TokenBalances)),
		zap.Int("retained", len(kept)))

	return models.QueryResult{Address: owner, Balances: kept, Metadata: keptMeta}, nil
}

// lookupAll returns metadata[i] for entries[i]. Any failure fails the batch
// and cancels the lookups still in flight.
func (ix *Indexer) lookupAll(ctx context.Context, entries []models.TokenBalance) ([]models.TokenMetadata, error) {
	metadata := make([]models.TokenMetadata, len(entries))
	if len(entries) == 0 {
		return metadata, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if ix.concurrency > 0 {
		eg.SetLimit(ix.concurrency)
	}
	for i, entry := range entries {
		i, contract := i, entry.ContractAddress
		eg.Go(func() error {
			md, err := ix.lookup(egCtx, contract)
			if err != nil {
				return fmt.Errorf("get token metadata for %s: %w", contract, err)
			}
			metadata[i] = md
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return metadata, nil
}

func (ix *Indexer) lookup(ctx context.Context, contract string) (models.TokenMetadata, error) {
	key := strings.ToLower(contract)
	if ix.cache != nil {
		if v, ok := ix.cache.Get(key); ok {
			ix.metrics.ObserveLookup(metrics.SourceCache)
			return v.(models.TokenMetadata), nil
		}
	}
	md, err := ix.source.GetTokenMetadata(ctx, contract)
	if err != nil {
		return models.TokenMetadata{}, err
	}
	ix.metrics.ObserveLookup(metrics.SourceAPI)
	if ix.cache != nil {
		ix.cache.Set(key, md, cache.DefaultExpiration)
	}
	return md, nil
}

// Readable drops entries the data API could not read, keeping order.
func Readable(balances []models.TokenBalance) []models.TokenBalance {
	out := make([]models.TokenBalance, 0, len(balances))
	for _, b := range balances {
		if b.Readable() {
			out = append(out, b)
		}
	}
	return out
}

// Filter keeps index i iff metadata[i] has a non-empty name and symbol.
// The returned slices have equal length and stay index-aligned.
func Filter(balances []models.TokenBalance, metadata []models.TokenMetadata) ([]models.TokenBalance, []models.TokenMetadata) {
	kept := make([]models.TokenBalance, 0, len(balances))
	keptMeta := make([]models.TokenMetadata, 0, len(balances))
	for i, b := range balances {
		if i >= len(metadata) {
			break
		}
		if !metadata[i].Usable() {
			continue
		}
		kept = append(kept, b)
		keptMeta = append(keptMeta, metadata[i])
	}
	return kept, keptMeta
}

// Records zips a query result into display records with human-scaled balances.
func Records(res models.QueryResult) ([]models.DisplayRecord, error) {
	if len(res.Balances) != len(res.Metadata) {
		return nil, fmt.Errorf("misaligned result: %d balances, %d metadata", len(res.Balances), len(res.Metadata))
	}
	records := make([]models.DisplayRecord, 0, len(res.Balances))
	for i, b := range res.Balances {
		md := res.Metadata[i]
		decimals := md.DecimalsOrDefault()
		balance, err := utils.FormatUnits(b.TokenBalance, decimals)
		if err != nil {
			return nil, fmt.Errorf("format balance of %s: %w", b.ContractAddress, err)
		}
		records = append(records, models.DisplayRecord{
			ContractAddress: b.ContractAddress,
			Name:            md.Name,
			Symbol:          md.Symbol,
			Decimals:        decimals,
			RawBalance:      b.TokenBalance,
			Balance:         balance,
			Logo:            md.LogoURL(),
		})
	}
	return records, nil
}
