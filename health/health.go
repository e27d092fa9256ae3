// Package health checks the collaborators of a designer instance: cache
// directories, databases, Redis and etcd.
//
// Checks return a Status. Combine aggregates several statuses: any
// unhealthy check makes the result unhealthy, otherwise any degraded check
// makes it degraded.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Pinger is implemented by collaborators that can verify their connection,
// such as the SQLite store, the Redis cache backend and the etcd registry.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is a named health check.
type Check func(ctx context.Context) Status

// DefaultTimeout bounds a PingCheck when ctx carries no deadline.
const DefaultTimeout = 5 * time.Second

// FileCheck verifies that a file or directory exists at path.
func FileCheck(path string) Status {
	if path == "" {
		return Unhealthy("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unhealthy(fmt.Sprintf("path '%s' does not exist", path), map[string]any{"path": path})
		}
		return Unhealthy(fmt.Sprintf("failed to stat path '%s'", path), map[string]any{
			"path":  path,
			"error": err.Error(),
		})
	}

	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return Healthy(fmt.Sprintf("%s '%s' exists", kind, path))
}

// WritableDirCheck verifies that dir exists and accepts new files. A
// missing directory is degraded: the file cache creates it on first write.
func WritableDirCheck(dir string) Status {
	status := FileCheck(dir)
	if status.IsUnhealthy() {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return Degraded(fmt.Sprintf("directory '%s' does not exist yet", dir), map[string]any{"path": dir})
		}
		return status
	}

	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return Unhealthy(fmt.Sprintf("directory '%s' is not writable", dir), map[string]any{
			"path":  dir,
			"error": err.Error(),
		})
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return Healthy(fmt.Sprintf("directory '%s' is writable", filepath.Clean(dir)))
}

// PingCheck pings a collaborator.
func PingCheck(ctx context.Context, name string, p Pinger) Status {
	if p == nil {
		return Unhealthy(fmt.Sprintf("%s is not configured", name), nil)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Unhealthy(fmt.Sprintf("%s is unreachable", name), map[string]any{
			"name":  name,
			"error": err.Error(),
		})
	}
	return Healthy(fmt.Sprintf("%s answered in %s", name, time.Since(start).Round(time.Millisecond)))
}

// Combine aggregates multiple statuses into one.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthy, degraded []string
	var healthyCount int
	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(fmt.Sprintf("%d check(s) failed", len(unhealthy)), map[string]any{
			"total":         len(checks),
			"unhealthy":     len(unhealthy),
			"degraded":      len(degraded),
			"healthy":       healthyCount,
			"failed_checks": unhealthy,
		})
	}
	if len(degraded) > 0 {
		return Degraded(fmt.Sprintf("%d check(s) degraded", len(degraded)), map[string]any{
			"total":           len(checks),
			"degraded":        len(degraded),
			"healthy":         healthyCount,
			"degraded_checks": degraded,
		})
	}
	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}

// Run executes named checks in name order and returns each result along
// with the combined status.
func Run(ctx context.Context, checks map[string]Check) (Status, map[string]Status) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]Status, len(checks))
	all := make([]Status, 0, len(checks))
	for _, name := range names {
		s := checks[name](ctx)
		results[name] = s
		all = append(all, s)
	}
	return Combine(all...), results
}
