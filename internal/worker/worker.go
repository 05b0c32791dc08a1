// Package worker runs aging analyses in the background, driven by the
// event bus and the recomputation scheduler.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/leadaging/internal/domain"
)

// Worker consumes analysis requests and lead changes from the EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *Pipeline

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits the worker to these tenants. Empty subscribes to
	// every tenant.
	TenantIDs []string
}

// NewWorker creates a worker.
func NewWorker(eventBus domain.EventBus, pipeline *Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		pipeline: pipeline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to analysis requests and lead upserts.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID, domain.TopicAnalysisRequested, w.handleAnalysisRequested); err != nil {
			return err
		}
		if err := w.subscribe(tenantID, domain.TopicLeadUpserted, w.handleLeadUpserted); err != nil {
			return err
		}
	}

	slog.Info("workers started", "tenants", tenants)
	return nil
}

func (w *Worker) subscribe(tenantID, topic string, handler domain.MessageHandler) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s for tenant %s: %w", topic, tenantID, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Debug("worker subscribed", "tenant_id", tenantID, "topic", topic)
	return nil
}

func (w *Worker) handleAnalysisRequested(ctx context.Context, msg *domain.Message) error {
	var req AnalysisRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse analysis request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// The bus tenant is authoritative.
	req.TenantID = msg.TenantID
	if req.TraceID == "" {
		req.TraceID = msg.ID
	}

	_, err := w.pipeline.Run(ctx, req)
	return err
}

func (w *Worker) handleLeadUpserted(ctx context.Context, msg *domain.Message) error {
	var ev LeadUpserted
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse lead event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if ev.LeadID == "" {
		return fmt.Errorf("lead event %s has no lead id", msg.ID)
	}

	traceID := ev.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	_, err := w.pipeline.Run(ctx, AnalysisRequest{
		TenantID:    msg.TenantID,
		TraceID:     traceID,
		LeadIDs:     []string{ev.LeadID},
		RequestedBy: "lead.upserted",
		Incremental: true,
	})
	return err
}

// Stop unsubscribes everything.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
