// Package controller owns the page state and drives it through wallet
// connects and balance queries, broadcasting every change to subscribers.
package controller

import (
	"context"
	"strings"
	"sync"
	"time"

	"erc20idx/pkg/address"
	"erc20idx/pkg/indexer"
	"erc20idx/pkg/metrics"
	"erc20idx/pkg/models"
	"erc20idx/pkg/state"
	"erc20idx/pkg/wallet"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxLatencies = 60

// Fetcher runs one balance query. *indexer.Indexer implements it.
type Fetcher interface {
	Fetch(ctx context.Context, input string) (models.QueryResult, error)
}

type Options struct {
	TargetChainID string
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

type Controller struct {
	fetcher       Fetcher
	provider      wallet.Provider
	targetChainID string
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string

	mu          sync.RWMutex
	state       state.State
	cancel      context.CancelFunc
	latencies   []float64
	subscribers []Subscriber
}

// New creates a controller. provider may be nil when no wallet is configured.
func New(fetcher Fetcher, provider wallet.Provider, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher:       fetcher,
		provider:      provider,
		targetChainID: opts.TargetChainID,
		metrics:       opts.Metrics,
		logger:        logger.Named("controller"),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (c *Controller) Subscribe() Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(Subscriber, 100)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Controller) Unsubscribe(ch Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subscribers {
		if sub == ch {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (c *Controller) notify(event Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sub := range c.subscribers {
		select {
		case sub <- event:
		default:
			c.logger.Warn("dropping event for slow subscriber", zap.String("type", string(event.Type)))
		}
	}
}

// State returns a snapshot of the page state.
func (c *Controller) State() state.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Latencies returns the durations of recent queries in seconds, oldest first.
func (c *Controller) Latencies() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]float64(nil), c.latencies...)
}

// apply runs a transition under the lock and broadcasts the result.
func (c *Controller) apply(transition func(state.State) state.State) state.State {
	c.mu.Lock()
	c.state = transition(c.state)
	snap := c.state
	c.mu.Unlock()
	c.notify(Event{Type: EventStateChanged, Data: snap})
	return snap
}

// Connect asks the wallet for its account and makes sure it is on the target
// chain. The account, if any, fills the address field.
func (c *Controller) Connect(ctx context.Context) (state.State, error) {
	sess, err := wallet.Connect(ctx, c.provider, c.targetChainID)
	now := c.now()
	if err != nil {
		c.logger.Warn("wallet session failed", zap.String("address", sess.Address), zap.Error(err))
		return c.apply(func(s state.State) state.State { return s.SessionFailed(sess.Address, err, now) }), err
	}
	c.logger.Info("wallet connected",
		zap.String("address", sess.Address),
		zap.String("chain_id", sess.ChainID),
		zap.Bool("switched", sess.Switched))
	return c.apply(func(s state.State) state.State { return s.SessionReady(sess.Address, sess.ChainID, now) }), nil
}

// Edit updates the address field without querying.
func (c *Controller) Edit(input string) state.State {
	now := c.now()
	return c.apply(func(s state.State) state.State { return s.EditAddress(input, now) })
}

// Query validates input and runs a balance query for it. A query started
// while another is in flight cancels the older one, whose result is then
// discarded. The returned state is the snapshot after this query finished.
func (c *Controller) Query(ctx context.Context, input string) (state.State, error) {
	input = strings.TrimSpace(input)
	if err := address.Validate(input); err != nil {
		c.metrics.ObserveQuery(metrics.OutcomeInvalid, 0)
		now := c.now()
		return c.apply(func(s state.State) state.State { return s.InvalidAddress(input, err, now) }), err
	}

	id := c.newID()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.state = c.state.LoadStart(id, input, c.now())
	snap := c.state
	c.mu.Unlock()
	c.notify(Event{Type: EventStateChanged, Data: snap})

	c.logger.Info("query started", zap.String("query_id", id), zap.String("address", input))
	start := time.Now()
	res, err := c.fetcher.Fetch(ctx, input)
	var records []models.DisplayRecord
	if err == nil {
		records, err = indexer.Records(res)
	}
	took := time.Since(start)

	c.mu.Lock()
	if c.state.QueryID == id {
		c.cancel = nil
	}
	c.latencies = append(c.latencies, took.Seconds())
	if len(c.latencies) > maxLatencies {
		c.latencies = c.latencies[len(c.latencies)-maxLatencies:]
	}
	c.mu.Unlock()

	now := c.now()
	stats := QueryStats{QueryID: id, Address: input, Duration: took, Err: err}
	if err != nil {
		c.metrics.ObserveQuery(metrics.OutcomeError, took)
		c.logger.Error("query failed", zap.String("query_id", id), zap.Duration("took", took), zap.Error(err))
		snap = c.apply(func(s state.State) state.State { return s.LoadError(id, err, now) })
	} else {
		c.metrics.ObserveQuery(metrics.OutcomeSuccess, took)
		c.logger.Info("query finished", zap.String("query_id", id), zap.Int("tokens", len(records)), zap.Duration("took", took))
		stats.Tokens = len(records)
		snap = c.apply(func(s state.State) state.State { return s.LoadSuccess(id, res.Address, records, now) })
	}
	c.notify(Event{Type: EventQueryFinished, Data: stats})
	return snap, err
}
