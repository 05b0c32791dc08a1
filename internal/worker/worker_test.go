package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/leadaging/internal/aging"
	"github.com/opensource-finance/leadaging/internal/automation"
	"github.com/opensource-finance/leadaging/internal/bus"
	"github.com/opensource-finance/leadaging/internal/cache"
	"github.com/opensource-finance/leadaging/internal/domain"
	"github.com/opensource-finance/leadaging/internal/repository"
)

const testTenant = "tenant-001"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return testNow.Add(-time.Duration(d) * 24 * time.Hour)
}

type fixture struct {
	repo     *repository.SQLRepository
	cache    *cache.LRUCache
	bus      *bus.ChannelBus
	pipeline *Pipeline
}

func newFixture(t *testing.T, failFast bool) *fixture {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	registry, err := aging.NewRegistry(aging.DefaultRules())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	analyzer, err := aging.NewAnalyzer(aging.Options{MaxWorkers: 4, FailFast: failFast})
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	engine, err := automation.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	c := cache.NewLRUCache(100)

	p := NewPipeline(Dependencies{
		Repo:       repo,
		Cache:      c,
		Bus:        eventBus,
		Registry:   registry,
		Analyzer:   analyzer,
		Automation: engine,
	})
	p.now = func() time.Time { return testNow }

	return &fixture{repo: repo, cache: c, bus: eventBus, pipeline: p}
}

func (f *fixture) seed(t *testing.T, leads ...*domain.Lead) {
	t.Helper()
	for _, l := range leads {
		if err := f.repo.SaveLead(context.Background(), testTenant, l); err != nil {
			t.Fatalf("SaveLead failed: %v", err)
		}
	}
}

func warmReferral() *domain.Lead {
	return &domain.Lead{
		ID:             "warm-referral",
		CreatedAt:      daysAgo(5),
		Score:          85,
		EstimatedValue: 60000,
		Source:         "Referral",
		Status:         domain.LeadStatusNew,
	}
}

func staleLead() *domain.Lead {
	contacted := daysAgo(100)
	return &domain.Lead{
		ID:             "stale-cold-call",
		CreatedAt:      daysAgo(120),
		LastContactAt:  &contacted,
		Score:          20,
		EstimatedValue: 2000,
		Source:         "Cold Call",
		Status:         domain.LeadStatusContacted,
	}
}

func wonLead() *domain.Lead {
	return &domain.Lead{
		ID:        "won-deal",
		CreatedAt: daysAgo(40),
		Score:     90,
		Status:    domain.LeadStatusWon,
	}
}

func brokenLead() *domain.Lead {
	contacted := daysAgo(20)
	return &domain.Lead{
		ID:            "broken",
		CreatedAt:     daysAgo(10),
		LastContactAt: &contacted,
		Score:         50,
		Status:        domain.LeadStatusNew,
	}
}

// collector records messages for one topic.
type collector struct {
	mu   sync.Mutex
	msgs []*domain.Message
	ch   chan struct{}
}

func collect(t *testing.T, b domain.EventBus, tenantID, topic string) *collector {
	t.Helper()
	c := &collector{ch: make(chan struct{}, 100)}
	_, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
		c.mu.Lock()
		c.msgs = append(c.msgs, msg)
		c.mu.Unlock()
		c.ch <- struct{}{}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return c
}

func (c *collector) await(t *testing.T, n int) []*domain.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		got := len(c.msgs)
		c.mu.Unlock()
		if got >= n {
			break
		}
		select {
		case <-c.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages, got %d", n, got)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*domain.Message(nil), c.msgs...)
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, warmReferral(), staleLead(), wonLead(), brokenLead())

	alerts := collect(t, f.bus, testTenant, domain.TopicAgingAlert)
	completed := collect(t, f.bus, testTenant, domain.TopicAnalysisCompleted)

	out, err := f.pipeline.Run(ctx, AnalysisRequest{TenantID: testTenant, TraceID: "trace-run"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	t.Run("AnalysesInCreationOrder", func(t *testing.T) {
		if len(out.Analyses) != 2 {
			t.Fatalf("expected 2 analyses (closed lead skipped, broken lead rejected), got %d", len(out.Analyses))
		}
		if out.Analyses[0].LeadID != "stale-cold-call" || out.Analyses[1].LeadID != "warm-referral" {
			t.Errorf("unexpected order %s, %s", out.Analyses[0].LeadID, out.Analyses[1].LeadID)
		}
		if out.Analyses[0].TenantID != testTenant {
			t.Errorf("expected tenant stamped on analyses, got %q", out.Analyses[0].TenantID)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		if len(out.Rejected) != 1 || out.Rejected[0].LeadID != "broken" {
			t.Fatalf("expected broken lead rejected, got %+v", out.Rejected)
		}
	})

	t.Run("ReportPersisted", func(t *testing.T) {
		rep, err := f.repo.GetReport(ctx, testTenant, out.Report.ID)
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if rep.LeadCount != 2 || rep.RejectedLeads != 1 || rep.NotificationsDue != 1 {
			t.Errorf("unexpected report counts %+v", rep)
		}
		if rep.ByCategory[domain.CategoryStale] != 1 || rep.ByCategory[domain.CategoryWarm] != 1 {
			t.Errorf("unexpected category counts %v", rep.ByCategory)
		}
		if rep.Metadata.TraceID != "trace-run" {
			t.Errorf("expected trace id carried to report, got %q", rep.Metadata.TraceID)
		}
	})

	t.Run("AnalysisPersistedAndCached", func(t *testing.T) {
		stored, err := f.repo.GetAnalysis(ctx, testTenant, "stale-cold-call")
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if stored.RiskLevel != domain.RiskCritical || stored.UrgencyScore != 100 {
			t.Errorf("unexpected stored analysis %+v", stored)
		}

		cached, err := f.cache.GetAnalysis(ctx, testTenant, "warm-referral")
		if err != nil || cached == nil {
			t.Fatalf("expected cached analysis, got %v, %v", cached, err)
		}
		if cached.AgingCategory != domain.CategoryWarm || cached.ConversionProbability != 95 {
			t.Errorf("unexpected cached analysis %+v", cached)
		}
	})

	t.Run("AlertsPublished", func(t *testing.T) {
		if len(out.Alerts) != 1 {
			t.Fatalf("expected 1 alert, got %d", len(out.Alerts))
		}
		alert := out.Alerts[0]
		if alert.Analysis.LeadID != "stale-cold-call" || !alert.NotificationDue {
			t.Errorf("unexpected alert %+v", alert)
		}
		if len(alert.TriggeredActions) != 2 || alert.TriggeredActions[0].ActionID != "archive_candidate" {
			t.Errorf("unexpected triggered actions %+v", alert.TriggeredActions)
		}

		msgs := alerts.await(t, 1)
		var published domain.AgingAlert
		if err := json.Unmarshal(msgs[0].Payload, &published); err != nil {
			t.Fatalf("alert payload: %v", err)
		}
		if published.Analysis.LeadID != "stale-cold-call" {
			t.Errorf("unexpected published alert %+v", published)
		}
	})

	t.Run("CompletedPublished", func(t *testing.T) {
		msgs := completed.await(t, 1)
		var done AnalysisCompleted
		if err := json.Unmarshal(msgs[0].Payload, &done); err != nil {
			t.Fatalf("completed payload: %v", err)
		}
		if done.ReportID != out.Report.ID || done.LeadCount != 2 || done.RejectedCount != 1 || done.AlertCount != 1 {
			t.Errorf("unexpected completion event %+v", done)
		}
	})
}

func TestPipelineFailFast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.seed(t, staleLead(), brokenLead())

	_, err := f.pipeline.Run(ctx, AnalysisRequest{TenantID: testTenant})

	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.LeadID != "broken" {
		t.Fatalf("expected validation error for broken lead, got %v", err)
	}
	if _, err := f.repo.GetAnalysis(ctx, testTenant, "stale-cold-call"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected nothing persisted after fail-fast, got %v", err)
	}
}

func TestPipelineIncremental(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, warmReferral(), staleLead())

	out, err := f.pipeline.Run(ctx, AnalysisRequest{
		TenantID:    testTenant,
		LeadIDs:     []string{"warm-referral"},
		Incremental: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Report != nil {
		t.Error("incremental run should not build a report")
	}
	if len(out.Analyses) != 1 || out.Analyses[0].LeadID != "warm-referral" {
		t.Fatalf("unexpected analyses %+v", out.Analyses)
	}
	if _, err := f.repo.GetAnalysis(ctx, testTenant, "stale-cold-call"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected other leads untouched, got %v", err)
	}

	t.Run("ClosedLeadIsNoop", func(t *testing.T) {
		f.seed(t, wonLead())
		out, err := f.pipeline.Run(ctx, AnalysisRequest{
			TenantID:    testTenant,
			LeadIDs:     []string{"won-deal"},
			Incremental: true,
		})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(out.Analyses) != 0 {
			t.Errorf("expected no analyses for closed lead, got %d", len(out.Analyses))
		}
	})
}

func TestWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.seed(t, warmReferral(), staleLead())

	completed := collect(t, f.bus, testTenant, domain.TopicAnalysisCompleted)

	w := NewWorker(f.bus, f.pipeline)
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if stats := w.GetStats(); stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}

	t.Run("AnalysisRequested", func(t *testing.T) {
		if err := bus.PublishJSON(ctx, f.bus, testTenant, domain.TopicAnalysisRequested, AnalysisRequest{}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		msgs := completed.await(t, 1)
		var done AnalysisCompleted
		if err := json.Unmarshal(msgs[0].Payload, &done); err != nil {
			t.Fatalf("completed payload: %v", err)
		}
		if done.TenantID != testTenant || done.LeadCount != 2 || done.ReportID == "" {
			t.Errorf("unexpected completion %+v", done)
		}
	})

	t.Run("LeadUpserted", func(t *testing.T) {
		ev := LeadUpserted{LeadID: "warm-referral"}
		if err := bus.PublishJSON(ctx, f.bus, testTenant, domain.TopicLeadUpserted, ev); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		msgs := completed.await(t, 2)
		var done AnalysisCompleted
		if err := json.Unmarshal(msgs[1].Payload, &done); err != nil {
			t.Fatalf("completed payload: %v", err)
		}
		if done.LeadCount != 1 || done.ReportID != "" {
			t.Errorf("expected incremental completion, got %+v", done)
		}
	})

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if stats := w.GetStats(); stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerPerTenant(t *testing.T) {
	f := newFixture(t, false)

	w := NewWorker(f.bus, f.pipeline)
	if err := w.Start(Config{TenantIDs: []string{"a", "b"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	stats := w.GetStats()
	if stats.SubscriptionCount != 4 {
		t.Errorf("expected 4 subscriptions, got %d", stats.SubscriptionCount)
	}
}

func TestScheduler(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	requests := collect(t, eventBus, domain.AllTenants, domain.TopicAnalysisRequested)

	s := NewScheduler(eventBus, domain.ScheduleConfig{
		Enabled:   true,
		Interval:  20 * time.Millisecond,
		TenantIDs: []string{"acme", "globex"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	s.Start(ctx)

	msgs := requests.await(t, 4)
	s.Stop()
	s.Stop()

	seen := map[string]bool{}
	for _, m := range msgs {
		var req AnalysisRequest
		if err := json.Unmarshal(m.Payload, &req); err != nil {
			t.Fatalf("request payload: %v", err)
		}
		if req.RequestedBy != "scheduler" || req.TenantID != m.TenantID {
			t.Errorf("unexpected request %+v on tenant %s", req, m.TenantID)
		}
		seen[m.TenantID] = true
	}
	if !seen["acme"] || !seen["globex"] {
		t.Errorf("expected requests for both tenants, got %v", seen)
	}
}

func TestSchedulerWithoutTenants(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	s := NewScheduler(eventBus, domain.ScheduleConfig{Interval: time.Millisecond})
	s.Start(context.Background())
	s.Stop()
}
