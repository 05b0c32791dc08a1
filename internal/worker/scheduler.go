package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/leadaging/internal/bus"
	"github.com/opensource-finance/leadaging/internal/domain"
)

// Scheduler publishes an analysis request per tenant on a fixed interval.
type Scheduler struct {
	bus      domain.EventBus
	tenants  []string
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler for the given tenants.
func NewScheduler(eventBus domain.EventBus, cfg domain.ScheduleConfig) *Scheduler {
	return &Scheduler{
		bus:      eventBus,
		tenants:  append([]string(nil), cfg.TenantIDs...),
		interval: cfg.Interval,
	}
}

// Start fires one round immediately and then one per interval until ctx
// is cancelled or Stop is called. Starting twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil || s.interval <= 0 {
		return
	}
	if len(s.tenants) == 0 {
		slog.Warn("scheduler has no tenants; nothing will be recomputed")
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stop, s.done)
}

func (s *Scheduler) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, tenantID := range s.tenants {
		req := AnalysisRequest{TenantID: tenantID, RequestedBy: "scheduler"}
		if err := bus.PublishJSON(ctx, s.bus, tenantID, domain.TopicAnalysisRequested, req); err != nil {
			slog.Error("failed to schedule analysis",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		slog.Debug("analysis scheduled", "tenant_id", tenantID)
	}
}

// Stop halts the ticker goroutine and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
