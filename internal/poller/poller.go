// Package poller keeps one in-memory snapshot per dashboard page, refreshed
// on a fixed interval from the upstream API and the heuristic analysers.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"sentinel/internal/events"
	"sentinel/internal/metrics"
	"sentinel/internal/websocket"

	"go.uber.org/zap"
)

// ErrUnknownPage is returned for a page with no registered poller
var ErrUnknownPage = errors.New("unknown page")

// Snapshot is the latest view of one page
type Snapshot struct {
	Page      string     `json:"page"`
	Data      any        `json:"data"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Error     string     `json:"error,omitempty"`
	ErrorAt   *time.Time `json:"errorAt,omitempty"`
}

// Ready reports whether the page has been fetched at least once
func (s Snapshot) Ready() bool {
	return !s.UpdatedAt.IsZero()
}

// FetchFunc loads a page. It may return data together with an error when it
// substituted fallback values; the data is stored and the error recorded.
type FetchFunc func(ctx context.Context) (data any, evts []events.Event, err error)

// Broadcaster pushes snapshots to connected clients
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
}

// Emitter receives the analysis events produced by a refresh
type Emitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Poller refreshes one page snapshot
type Poller struct {
	name     string
	interval time.Duration
	fetch    FetchFunc

	broadcaster Broadcaster
	emitter     Emitter
	metrics     *metrics.Collector
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.RWMutex
	seq      uint64
	applied  uint64
	snapshot Snapshot
}

// Refresh runs one fetch and stores the result. Among overlapping refreshes
// the one started last wins, regardless of completion order.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	data, evts, err := p.fetch(ctx)
	if ctx.Err() != nil {
		// Stopped while fetching; leave the snapshot alone.
		return ctx.Err()
	}
	p.metrics.PollerRun(p.name, err)

	now := p.now()
	p.mu.Lock()
	if seq < p.applied {
		p.mu.Unlock()
		return err
	}
	p.applied = seq
	if data != nil {
		p.snapshot.Data = data
		p.snapshot.UpdatedAt = now
	}
	if err != nil {
		p.snapshot.Error = err.Error()
		p.snapshot.ErrorAt = &now
	} else {
		p.snapshot.Error = ""
		p.snapshot.ErrorAt = nil
	}
	snapshot := p.snapshot
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("⚠️  Page refresh failed", zap.String("page", p.name), zap.Error(err))
		if p.emitter != nil {
			p.emitter.Emit(ctx, events.Event{
				Type:   events.PollerErrorEvent,
				Source: p.name,
				Data:   map[string]any{"page": p.name, "error": err.Error()},
			})
		}
	}
	if data != nil && p.broadcaster != nil {
		p.broadcaster.BroadcastMessage(topic(p.name), snapshot)
	}
	if p.emitter != nil {
		for _, event := range evts {
			p.emitter.Emit(ctx, event)
		}
	}
	return err
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// A slow refresh delays the next tick rather than overlapping it.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	_ = p.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Refresh(ctx)
		}
	}
}

// Snapshot returns the latest stored snapshot
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

func topic(page string) string {
	return "view:" + page
}

// Manager owns the page pollers and their lifecycle
type Manager struct {
	pollers map[string]*Poller
	order   []string
	shared  ManagerOptions
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// ManagerOptions are shared by every poller of a Manager
type ManagerOptions struct {
	Broadcaster Broadcaster
	Emitter     Emitter
	Metrics     *metrics.Collector
	Logger      *zap.Logger
}

// NewManager creates an empty manager
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		pollers: make(map[string]*Poller),
		logger:  logger,
		shared:  opts,
	}
}

// Register adds a page poller; registering a name twice replaces it
func (m *Manager) Register(name string, interval time.Duration, fetch FetchFunc) *Poller {
	p := &Poller{
		name:        name,
		interval:    interval,
		fetch:       fetch,
		broadcaster: m.shared.Broadcaster,
		emitter:     m.shared.Emitter,
		metrics:     m.shared.Metrics,
		logger:      m.logger,
		now:         time.Now,
		snapshot:    Snapshot{Page: name},
	}
	if _, exists := m.pollers[name]; !exists {
		m.order = append(m.order, name)
	}
	m.pollers[name] = p
	return p
}

// Start launches every poller in its own goroutine
func (m *Manager) Start(parent context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.running = true

	for _, name := range m.order {
		p := m.pollers[name]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			p.Run(ctx)
		}()
		m.logger.Info("🔄 Poller started", zap.String("page", name), zap.Duration("interval", p.interval))
	}
}

// Stop cancels every poller, aborting in-flight requests, and waits for them
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("🛑 Pollers stopped")
}

// Snapshot returns the latest snapshot of page
func (m *Manager) Snapshot(page string) (Snapshot, bool) {
	p, ok := m.pollers[page]
	if !ok {
		return Snapshot{}, false
	}
	return p.Snapshot(), true
}

// Refresh runs one fetch of page outside the schedule
func (m *Manager) Refresh(ctx context.Context, page string) (Snapshot, error) {
	p, ok := m.pollers[page]
	if !ok {
		return Snapshot{}, ErrUnknownPage
	}
	err := p.Refresh(ctx)
	return p.Snapshot(), err
}

// Pages lists registered page names in registration order
func (m *Manager) Pages() []string {
	return append([]string(nil), m.order...)
}

// Replay returns the ready snapshots as websocket messages for a new client
func (m *Manager) Replay() []websocket.WSMessage {
	messages := make([]websocket.WSMessage, 0, len(m.order))
	for _, name := range m.order {
		snapshot := m.pollers[name].Snapshot()
		if !snapshot.Ready() {
			continue
		}
		messages = append(messages, websocket.WSMessage{
			Type:      topic(name),
			Timestamp: snapshot.UpdatedAt,
			Data:      snapshot,
		})
	}
	return messages
}
