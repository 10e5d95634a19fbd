package goredlock

import (
	"context"
	"sync"

	"github.com/ceyewan/goredlock/clog"
	"github.com/ceyewan/goredlock/metrics"
	"github.com/ceyewan/goredlock/xerrors"
)

// Client is the coordinator spec §6 calls "Coordinator". It is self
// contained: store clients are supplied by the caller and outlive the
// Client (Quit closes them, but the Client holds no other process-wide
// state).
type Client struct {
	stores   []StoreClient
	settings Settings
	scripts  *scriptRegistry

	logger  clog.Logger
	metrics *clientMetrics
	emitter *ErrorEmitter

	invoker   *storeInvoker
	attempter *quorumAttempter
	retry     *retryDriver
}

// ClientOption configures a Client at construction time.
type ClientOption func(*clientConfig)

type clientConfig struct {
	logger       clog.Logger
	meter        metrics.Meter
	settingsOpts []SettingsOption
	rewrites     map[ScriptKind]ScriptRewrite
}

// WithLogger sets the structured logger used for every vote, retry and
// extension event. Defaults to clog.Discard().
func WithLogger(logger clog.Logger) ClientOption {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger.WithNamespace("goredlock")
		}
	}
}

// WithMeter sets the metrics.Meter used to record attempt counts, vote
// outcomes and acquire latency. Defaults to metrics.Discard().
func WithMeter(meter metrics.Meter) ClientOption {
	return func(c *clientConfig) { c.meter = meter }
}

// WithSettings layers SettingsOptions onto DefaultSettings to produce the
// Client's frozen Settings.
func WithSettings(opts ...SettingsOption) ClientOption {
	return func(c *clientConfig) { c.settingsOpts = append(c.settingsOpts, opts...) }
}

// WithScriptRewrite rewrites one script's raw Lua source once at
// construction (spec §6).
func WithScriptRewrite(kind ScriptKind, rewrite ScriptRewrite) ClientOption {
	return func(c *clientConfig) {
		if c.rewrites == nil {
			c.rewrites = make(map[ScriptKind]ScriptRewrite)
		}
		c.rewrites[kind] = rewrite
	}
}

// NewClient constructs a coordinator over the given store set. Construction
// fails if stores is empty (spec §6).
func NewClient(stores []StoreClient, opts ...ClientOption) (*Client, error) {
	if len(stores) == 0 {
		return nil, ErrEmptyStoreSet
	}

	cfg := &clientConfig{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	settings := DefaultSettings().apply(cfg.settingsOpts)

	c := &Client{
		stores:   append([]StoreClient(nil), stores...),
		settings: settings,
		scripts:  newScriptRegistry(cfg.rewrites),
		logger:   cfg.logger,
		metrics:  newClientMetrics(cfg.meter),
		emitter:  newErrorEmitter(),
	}

	c.invoker = newStoreInvoker(c.logger)
	c.attempter = newQuorumAttempter(c.stores, c.invoker, c.emitter, c.logger, c.metrics)
	c.retry = newRetryDriver(c.attempter, c.logger, c.metrics)

	return c, nil
}

// OnError subscribes handler to the coordinator's non-fatal error channel;
// every per-store against-vote error is fanned out to it (spec §4.7).
func (c *Client) OnError(handler func(error)) {
	c.emitter.OnError(handler)
}

// Quit closes every store's StoreClient in parallel, collecting and joining
// any errors.
func (c *Client) Quit(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	wg.Add(len(c.stores))
	for _, s := range c.stores {
		go func(s StoreClient) {
			defer wg.Done()
			if err := s.Quit(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return xerrors.Combine(errs...)
}
