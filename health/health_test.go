package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestFileCheck(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "designer.yaml")
	if err := os.WriteFile(tmpFile, []byte("log: {}\n"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name          string
		path          string
		expectHealthy bool
	}{
		{name: "existing file", path: tmpFile, expectHealthy: true},
		{name: "existing directory", path: tmpDir, expectHealthy: true},
		{name: "non-existent path", path: filepath.Join(tmpDir, "missing"), expectHealthy: false},
		{name: "empty path", path: "", expectHealthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := FileCheck(tt.path)

			if tt.expectHealthy && !status.IsHealthy() {
				t.Errorf("expected healthy status, got %s: %s", status.Status, status.Message)
			}
			if !tt.expectHealthy && status.IsHealthy() {
				t.Errorf("expected unhealthy status, got %s: %s", status.Status, status.Message)
			}
			if status.Message == "" {
				t.Error("expected non-empty message")
			}
		})
	}
}

func TestWritableDirCheck(t *testing.T) {
	dir := t.TempDir()

	if status := WritableDirCheck(dir); !status.IsHealthy() {
		t.Errorf("expected healthy status, got %s: %s", status.Status, status.Message)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}

	if status := WritableDirCheck(filepath.Join(dir, "later")); !status.IsDegraded() {
		t.Errorf("expected degraded status for missing directory, got %s", status.Status)
	}
}

func TestPingCheck(t *testing.T) {
	tests := []struct {
		name         string
		pinger       Pinger
		expectStatus string
	}{
		{
			name:         "answers",
			pinger:       pingFunc(func(context.Context) error { return nil }),
			expectStatus: StatusHealthy,
		},
		{
			name:         "fails",
			pinger:       pingFunc(func(context.Context) error { return errors.New("connection refused") }),
			expectStatus: StatusUnhealthy,
		},
		{
			name:         "not configured",
			pinger:       nil,
			expectStatus: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := PingCheck(context.Background(), "redis", tt.pinger)
			if status.Status != tt.expectStatus {
				t.Errorf("expected status %s, got %s: %s", tt.expectStatus, status.Status, status.Message)
			}
		})
	}
}

func TestPingCheckAddsDeadline(t *testing.T) {
	var deadline time.Time
	status := PingCheck(context.Background(), "etcd", pingFunc(func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}))
	if !status.IsHealthy() {
		t.Fatalf("expected healthy status, got %s", status.Status)
	}
	if deadline.IsZero() {
		t.Error("expected ping context to carry a deadline")
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name         string
		checks       []Status
		expectStatus string
	}{
		{
			name:         "all healthy",
			checks:       []Status{Healthy("cache"), Healthy("store")},
			expectStatus: StatusHealthy,
		},
		{
			name:         "one unhealthy",
			checks:       []Status{Healthy("cache"), Unhealthy("store failed", nil)},
			expectStatus: StatusUnhealthy,
		},
		{
			name:         "one degraded",
			checks:       []Status{Healthy("cache"), Degraded("registry slow", nil)},
			expectStatus: StatusDegraded,
		},
		{
			name:         "unhealthy and degraded",
			checks:       []Status{Degraded("registry slow", nil), Unhealthy("store failed", nil)},
			expectStatus: StatusUnhealthy,
		},
		{
			name:         "no checks",
			checks:       nil,
			expectStatus: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Combine(tt.checks...)

			if status.Status != tt.expectStatus {
				t.Errorf("expected status %s, got %s: %s", tt.expectStatus, status.Status, status.Message)
			}
			if status.Message == "" {
				t.Error("expected non-empty message")
			}
			if status.Status != StatusHealthy && status.Details == nil {
				t.Error("expected details for non-healthy status")
			}
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	overall, results := Run(context.Background(), map[string]Check{
		"cache": func(context.Context) Status { return WritableDirCheck(dir) },
		"store": func(ctx context.Context) Status {
			return PingCheck(ctx, "store", pingFunc(func(context.Context) error { return errors.New("locked") }))
		},
	})

	if !overall.IsUnhealthy() {
		t.Errorf("expected unhealthy overall status, got %s", overall.Status)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results["cache"].IsHealthy() {
		t.Errorf("expected healthy cache, got %s", results["cache"].Status)
	}
	if !results["store"].IsUnhealthy() {
		t.Errorf("expected unhealthy store, got %s", results["store"].Status)
	}
}
