// Package dispatch is the C8 Reconciliation Dispatcher: given a cache of
// Deployments, it builds one Entry per opted-in workload and fans out a
// bounded number of concurrent Orchestrator.Process calls, collecting
// terminal States in the order of the enabled Entries.
//
// Grounded on Entry::reconcile in the original's configuration.rs (parse
// every cached Deployment, drop the disabled ones, future::join_all the
// rest) with the unbounded join_all replaced by a golang.org/x/sync/
// semaphore-bounded fan-out — the concurrency cap spec.md §9 recommends —
// following the same semaphore.Weighted usage the rancher-fleet gitops
// poller uses to bound its own concurrent reconciliations.
package dispatch

import (
	"context"
	"sync"

	appsv1 "k8s.io/api/apps/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"golang.org/x/sync/semaphore"

	"github.com/ia-eknorr/gitops-operator/internal/entry"
)

// Processor is the capability the dispatcher fans calls out to; satisfied
// by *reconcile.Orchestrator.
type Processor interface {
	Process(ctx context.Context, e *entry.Entry) entry.State
}

// Metrics is the narrow observability capability this package reports
// entry counts through, satisfied by *internal/metrics.Metrics.
type Metrics interface {
	SetEntriesObserved(n int)
	SetEntriesEnabled(n int)
}

// DefaultConcurrency bounds how many reconciliations run at once, matching
// spec.md §9's recommendation (image registry probes and git clones are the
// bottleneck, not CPU).
const DefaultConcurrency = 8

// Dispatcher builds Entries from a Deployment snapshot and reconciles every
// enabled one, bounded by Concurrency concurrent in-flight Process calls.
type Dispatcher struct {
	Processor   Processor
	Concurrency int64
	// Metrics is optional; nil disables instrumentation (used by tests).
	Metrics Metrics
}

// New builds a Dispatcher with the default concurrency cap.
func New(processor Processor) *Dispatcher {
	return &Dispatcher{Processor: processor, Concurrency: DefaultConcurrency}
}

// Entries parses every Deployment in deployments into an Entry, dropping
// ones that fail C6 parsing. This is also what the /debug endpoint serves.
func Entries(deployments []*appsv1.Deployment) []*entry.Entry {
	logger := log.Log.WithName("dispatch")
	entries := make([]*entry.Entry, 0, len(deployments))
	for _, d := range deployments {
		e, ok := entry.Parse(d)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	logger.V(1).Info("parsed entries from deployment snapshot", "count", len(entries))
	return entries
}

// Reconcile parses deployments, drops disabled Entries, and reconciles the
// rest with at most d.Concurrency concurrent Process calls. Calls may finish
// in any order, but the returned States are positioned to match the enabled
// Entries in snapshot order.
func (d *Dispatcher) Reconcile(ctx context.Context, deployments []*appsv1.Deployment) []entry.State {
	logger := log.Log.WithName("dispatch")
	entries := Entries(deployments)
	if d.Metrics != nil {
		d.Metrics.SetEntriesObserved(len(entries))
	}

	limit := d.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	sem := semaphore.NewWeighted(limit)

	enabled := make([]*entry.Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Config.Enabled {
			logger.Info("entry disabled, skipping", "namespace", e.Namespace, "name", e.Name)
			continue
		}
		enabled = append(enabled, e)
	}
	if d.Metrics != nil {
		d.Metrics.SetEntriesEnabled(len(enabled))
	}

	// results is indexed to match enabled, not append order, so callers that
	// need to correlate a State back to the Entry it came from (the server
	// package's event recording) can zip the two slices by position.
	results := make([]entry.State, len(enabled))
	var wg sync.WaitGroup
	scheduled := 0

	for i, e := range enabled {
		if err := sem.Acquire(ctx, 1); err != nil {
			logger.Error(err, "failed to acquire dispatch slot, skipping remaining entries")
			break
		}
		scheduled = i + 1

		wg.Add(1)
		go func(i int, e *entry.Entry) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = d.Processor.Process(ctx, e)
		}(i, e)
	}

	wg.Wait()
	return results[:scheduled]
}
