package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/model"
	"github.com/hitoshi/kakeibo/internal/repository"
)

// mockDeleter はDeleteExpiredの呼び出し回数と戻り値を制御する。
type mockDeleter struct {
	calls   atomic.Int32
	deleted int64
	err     error
}

func (m *mockDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	deleter := &mockDeleter{deleted: 42}
	job := NewCleanupJob(deleter, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["deleted_count"] != float64(42) {
		t.Errorf("deleted_count = %v, want 42", entry["deleted_count"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms is missing from log")
	}
}

func TestCleanupJob_Run_Error(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockDeleter{err: errors.New("connection reset")}, newTestLogger(&buf), nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error = %v, should wrap cause", err)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("error log not written: %s", buf.String())
	}
}

func TestCleanupJob_Run_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	job := NewCleanupJob(&mockDeleter{deleted: 3}, slog.New(slog.DiscardHandler), collector)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := `
# HELP kakeibo_sessions_purged_total 削除された期限切れセッションの合計数
# TYPE kakeibo_sessions_purged_total counter
kakeibo_sessions_purged_total 6
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "kakeibo_sessions_purged_total"); err != nil {
		t.Error(err)
	}
}

func TestCleanupJob_Run_WithMemoryRepo(t *testing.T) {
	repo := repository.NewMemorySessionRepo()
	ctx := context.Background()
	now := time.Now()

	for _, s := range []*model.Session{
		{ID: "expired-1", UserID: "u", ExpiresAt: now.Add(-time.Hour)},
		{ID: "expired-2", UserID: "u", ExpiresAt: now.Add(-time.Minute)},
		{ID: "active", UserID: "u", ExpiresAt: now.Add(time.Hour)},
	} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	var buf bytes.Buffer
	job := NewCleanupJob(repo, newTestLogger(&buf), nil)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"deleted_count":2`) {
		t.Errorf("log = %s, want deleted_count 2", buf.String())
	}

	if s, _ := repo.FindByID(ctx, "active"); s == nil {
		t.Error("有効なセッションが削除されました")
	}
	n, _ := repo.DeleteExpired(ctx)
	if n != 0 {
		t.Errorf("second purge deleted %d, want 0", n)
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	deleter := &mockDeleter{}
	job := NewCleanupJob(deleter, slog.New(slog.DiscardHandler), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for deleter.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("calls = %d, want >= 3", deleter.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestCleanupJob_Start_ContinuesAfterFailure(t *testing.T) {
	deleter := &mockDeleter{err: errors.New("temporary")}
	job := NewCleanupJob(deleter, slog.New(slog.DiscardHandler), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	job.Start(ctx, 10*time.Millisecond)

	if deleter.calls.Load() < 2 {
		t.Errorf("calls = %d, want retries after failure", deleter.calls.Load())
	}
}
