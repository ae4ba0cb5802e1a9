package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"frontsync/internal/changes"
	"frontsync/internal/frontapi"
	"frontsync/internal/fronttest"
	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/internal/syncer"
)

type fakeRunner struct {
	mu          sync.Mutex
	full        int
	incremental []time.Time
	block       chan struct{}
	started     chan struct{}
}

func (r *fakeRunner) SyncAll(ctx context.Context, since *time.Time) syncer.Stats {
	if since != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.incremental = append(r.incremental, *since)
		return syncer.Stats{}
	}
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.full++
	return syncer.Stats{}
}

func newScheduler(runner Runner, runs store.SyncRunRepository) *Scheduler {
	return New(runner, runs, Config{
		IncrementalInterval: time.Minute,
		FullInterval:        time.Hour,
		Overlap:             2 * time.Minute,
	}, zap.NewNop())
}

func TestRunIncrementalFallsBackToFullWithoutCompletedRun(t *testing.T) {
	runner := &fakeRunner{}
	s := newScheduler(runner, store.NewMemory().SyncRuns())

	if !s.RunIncremental(context.Background()) {
		t.Fatalf("expected run to proceed")
	}
	if runner.full != 1 || len(runner.incremental) != 0 {
		t.Fatalf("expected a full sync, got full=%d incremental=%d", runner.full, len(runner.incremental))
	}
}

func TestRunIncrementalUsesLastCompletedStartMinusOverlap(t *testing.T) {
	runs := store.NewMemory().SyncRuns()
	ctx := context.Background()
	started := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_ = runs.Create(ctx, &model.SyncRun{ID: "a", Status: model.SyncRunCompleted, StartedAt: started})
	_ = runs.Create(ctx, &model.SyncRun{ID: "b", Status: model.SyncRunError, StartedAt: started.Add(5 * time.Minute)})

	runner := &fakeRunner{}
	newScheduler(runner, runs).RunIncremental(ctx)

	if len(runner.incremental) != 1 {
		t.Fatalf("expected one incremental run, got %d", len(runner.incremental))
	}
	if want := started.Add(-2 * time.Minute); !runner.incremental[0].Equal(want) {
		t.Fatalf("expected since %v, got %v", want, runner.incremental[0])
	}
}

func TestOverlappingTicksAreSkipped(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{})}
	s := newScheduler(runner, store.NewMemory().SyncRuns())

	done := make(chan bool)
	go func() { done <- s.RunFull(context.Background()) }()
	<-runner.started

	if s.RunIncremental(context.Background()) {
		t.Fatalf("expected incremental tick skipped while full sync runs")
	}
	close(runner.block)
	if !<-done {
		t.Fatalf("expected full sync to run")
	}
	if runner.full != 1 {
		t.Fatalf("expected exactly one full sync, got %d", runner.full)
	}
}

func TestIncrementalTickRefreshesFoundationAndContacts(t *testing.T) {
	srv := fronttest.NewServer()
	defer srv.Close()
	srv.SetCollection("/teammates", fronttest.Object{"id": "tea_1", "email": "ann@example.com"})
	srv.SetCollection("/contacts", fronttest.Object{"id": "crd_1", "name": "Alice"})

	st := store.NewMemory()
	ctx := context.Background()
	_ = st.SyncRuns().Create(ctx, &model.SyncRun{ID: "prev", Status: model.SyncRunCompleted, StartedAt: time.Now().Add(-time.Hour)})

	client := frontapi.NewClient(frontapi.Config{BaseURL: srv.URL, Token: "tok_test", PageLimit: 50}, nil, zap.NewNop())
	deps := syncer.Deps{Store: st, Client: client, Logger: zap.NewNop()}
	detector := changes.NewDetector(client, changes.DefaultConfig(), zap.NewNop())
	orch := syncer.NewOrchestrator(st, syncer.DefaultRegistry(deps), detector, nil, syncer.OrchestratorConfig{}, zap.NewNop())

	if !newScheduler(orch, st.SyncRuns()).RunIncremental(ctx) {
		t.Fatalf("expected incremental tick to run")
	}
	for _, path := range []string{"/teammates", "/tags", "/inboxes", "/contacts", "/events"} {
		if srv.Hits(path) == 0 {
			t.Fatalf("expected %s fetched on incremental tick", path)
		}
	}
	counts := st.Counts()
	if counts["teammates"] != 1 || counts["contacts"] != 1 {
		t.Fatalf("expected teammate and contact mirrored, got %v", counts)
	}
	runs, _ := st.SyncRuns().Recent(ctx, 1)
	if runs[0].Mode != model.SyncModeIncremental {
		t.Fatalf("expected incremental run recorded, got %s", runs[0].Mode)
	}
}
