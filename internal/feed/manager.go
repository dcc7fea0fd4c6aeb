package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gatslabs/tradeflow/internal/book"
	"github.com/gatslabs/tradeflow/internal/domain"
	"github.com/gatslabs/tradeflow/internal/sim"
)

// ManagerConfig tunes the feed manager.
type ManagerConfig struct {
	// Dial establishes venue connections; nil selects Dial.
	Dial DialFunc

	// SimInterval is the fallback simulator step; zero selects the default.
	SimInterval time.Duration

	// DefaultMid seeds the simulator before any live price was seen; zero
	// selects sim.DefaultMid.
	DefaultMid float64
}

// unit is one config's feed-handling goroutine and its lifecycle handles.
// cfg is fixed at spawn and read by the unit's goroutine without locking;
// filter fields (depth, min notional) live in the store and may change while
// the unit runs.
type unit struct {
	cfg    domain.BookConfig
	cancel context.CancelFunc
	state  atomic.Int32
	done   chan struct{}
}

func (u *unit) setState(s domain.ConnectionState) { u.state.Store(int32(s)) }
func (u *unit) getState() domain.ConnectionState  { return domain.ConnectionState(u.state.Load()) }

// Manager owns one feed unit per active config. Each unit writes its config's
// book in the store; the manager never blocks readers. Removing a config
// cancels its unit deterministically and releases its state.
type Manager struct {
	store       *book.Store
	dial        DialFunc
	simInterval time.Duration
	defaultMid  float64
	logger      *slog.Logger

	mu     sync.Mutex
	runCtx context.Context
	units  map[string]*unit
}

// NewManager creates a manager over the given store.
func NewManager(store *book.Store, cfg ManagerConfig, logger *slog.Logger) *Manager {
	dial := cfg.Dial
	if dial == nil {
		dial = Dial
	}
	mid := cfg.DefaultMid
	if mid <= 0 {
		mid = sim.DefaultMid
	}
	return &Manager{
		store:       store,
		dial:        dial,
		simInterval: cfg.SimInterval,
		defaultMid:  mid,
		logger:      logger.With(slog.String("component", "feed_manager")),
		units:       make(map[string]*unit),
	}
}

// Run starts the initial configs and blocks until ctx is cancelled, then
// tears down every unit. Add/Remove/Update are only valid while Run is
// active.
func (m *Manager) Run(ctx context.Context, initial []domain.BookConfig) error {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	for _, cfg := range initial {
		if _, err := m.Add(cfg); err != nil {
			m.logger.Warn("skipping initial book",
				slog.String("id", cfg.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	<-ctx.Done()

	m.mu.Lock()
	units := make([]*unit, 0, len(m.units))
	for _, u := range m.units {
		units = append(units, u)
	}
	m.units = make(map[string]*unit)
	m.runCtx = nil
	m.mu.Unlock()

	for _, u := range units {
		u.cancel()
		<-u.done
	}
	return ctx.Err()
}

// Add tracks a config and starts its feed unit. A missing ID is generated.
// Out-of-range values are clamped by the store.
func (m *Manager) Add(cfg domain.BookConfig) (domain.BookConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Clamp()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runCtx == nil {
		return domain.BookConfig{}, fmt.Errorf("feed: add %s: %w", cfg.ID, domain.ErrNotRunning)
	}
	if err := m.store.Track(cfg); err != nil {
		return domain.BookConfig{}, err
	}
	m.spawnLocked(cfg)
	return cfg, nil
}

// spawnLocked starts a feed unit for cfg. Caller holds m.mu with a live
// runCtx.
func (m *Manager) spawnLocked(cfg domain.BookConfig) {
	ctx, cancel := context.WithCancel(m.runCtx)
	u := &unit{cfg: cfg, cancel: cancel, done: make(chan struct{})}
	u.setState(domain.StateConnecting)
	m.units[cfg.ID] = u
	go m.run(ctx, u)
}

// Remove cancels a config's unit, waits for it to exit, and releases its
// book and series state.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	u, ok := m.units[id]
	if ok {
		delete(m.units, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("feed: remove %s: %w", id, domain.ErrNotFound)
	}

	u.cancel()
	<-u.done
	m.store.Untrack(id)
	return nil
}

// Update applies a changed config. An exchange or symbol change tears the
// unit down and recreates it with fresh book state; a depth or min-notional
// change only re-filters existing state.
func (m *Manager) Update(cfg domain.BookConfig) (domain.BookConfig, error) {
	cfg.Clamp()

	current, err := m.store.Config(cfg.ID)
	if err != nil {
		return domain.BookConfig{}, err
	}

	if cfg.Exchange == current.Exchange && cfg.Symbol == current.Symbol {
		// Filter-only change: the store config is the single source of
		// truth, the unit keeps streaming untouched.
		if err := m.store.UpdateConfig(cfg); err != nil {
			return domain.BookConfig{}, err
		}
		return cfg, nil
	}

	if err := m.Remove(cfg.ID); err != nil {
		return domain.BookConfig{}, err
	}
	return m.Add(cfg)
}

// State reports which source currently feeds the config.
func (m *Manager) State(id string) (domain.ConnectionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return domain.StateClosed, fmt.Errorf("feed: state %s: %w", id, domain.ErrNotFound)
	}
	return u.getState(), nil
}

// States reports the state of every active unit keyed by config id.
func (m *Manager) States() map[string]domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.ConnectionState, len(m.units))
	for id, u := range m.units {
		out[id] = u.getState()
	}
	return out
}

// run is one config's feed loop: dial once, stream while the socket lives,
// and degrade to the simulator on any connection failure. The simulator then
// feeds the config until it is removed or recreated.
func (m *Manager) run(ctx context.Context, u *unit) {
	defer close(u.done)
	defer u.setState(domain.StateClosed)

	id := u.cfg.ID
	logger := m.logger.With(
		slog.String("id", id),
		slog.String("exchange", string(u.cfg.Exchange)),
		slog.String("symbol", string(u.cfg.Symbol)),
	)

	onBook := func(b domain.Book) {
		if err := m.store.ApplyBook(id, b); err != nil {
			logger.Debug("apply book", slog.String("error", err.Error()))
		}
	}
	onPrice := func(px float64) {
		if err := m.store.ApplyPrice(id, px); err != nil {
			logger.Debug("apply price", slog.String("error", err.Error()))
		}
	}

	adapter, err := m.dial(ctx, u.cfg, onBook, onPrice, logger)
	if err == nil {
		u.setState(domain.StateLive)
		logger.Info("feed live")
		select {
		case <-ctx.Done():
			adapter.Close()
			return
		case <-adapter.Done():
			adapter.Close()
			logger.Warn("feed lost, falling back to simulator")
		}
	} else {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("connect failed, falling back to simulator",
			slog.String("error", err.Error()),
		)
	}

	u.setState(domain.StateSimulated)
	m.simulate(ctx, u, onBook, onPrice)
}

// simulate walks a synthetic book for the config until ctx is cancelled,
// seeded from the last live price when one was observed.
func (m *Manager) simulate(ctx context.Context, u *unit, onBook func(domain.Book), onPrice func(float64)) {
	mid := m.defaultMid
	if snap, err := m.store.Snapshot(u.cfg.ID); err == nil && snap.LastTrade > 0 {
		mid = snap.LastTrade
	}
	depth := u.cfg.Depth
	if cfg, err := m.store.Config(u.cfg.ID); err == nil {
		depth = cfg.Depth
	}
	w := &sim.Walker{
		Mid:      mid,
		Depth:    depth,
		Interval: m.simInterval,
		OnBook:   onBook,
		OnPrice:  onPrice,
		Logger:   m.logger.With(slog.String("id", u.cfg.ID)),
	}
	_ = w.Run(ctx)
}
