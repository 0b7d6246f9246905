// Package server is the C9 external interface shim: it exposes the three
// HTTP GET endpoints (/health, /reconcile, /debug) over a cached Deployment
// reader, and emits Kubernetes Events against reconciled Deployments.
//
// Grounded on the teacher's internal/webhook/receiver.go for the Go
// 1.22+ ServeMux + manager.Runnable + graceful-shutdown idiom (this package
// implements the same Start(ctx) Runnable shape so cmd/ can hand it
// straight to ctrl.NewManager().Add), generalized from a single
// HMAC-signed POST receiver to three unauthenticated GET endpoints per
// spec.md §4.8.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/ia-eknorr/gitops-operator/internal/dispatch"
	"github.com/ia-eknorr/gitops-operator/internal/entry"
)

// DeploymentLister abstracts the cached object reader the dispatcher reads
// from — satisfied by CacheLister (over a controller-runtime cache), or a
// fake in tests.
type DeploymentLister interface {
	ListDeployments(ctx context.Context) ([]*appsv1.Deployment, error)
}

// CacheLister adapts a controller-runtime client.Reader (mgr.GetCache(), in
// production) into a DeploymentLister, optionally scoped to one namespace.
type CacheLister struct {
	Reader    client.Reader
	Namespace string
}

var _ DeploymentLister = (*CacheLister)(nil)

func (l *CacheLister) ListDeployments(ctx context.Context) ([]*appsv1.Deployment, error) {
	var list appsv1.DeploymentList
	opts := []client.ListOption{}
	if l.Namespace != "" {
		opts = append(opts, client.InNamespace(l.Namespace))
	}
	if err := l.Reader.List(ctx, &list, opts...); err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}
	deployments := make([]*appsv1.Deployment, 0, len(list.Items))
	for i := range list.Items {
		deployments = append(deployments, &list.Items[i])
	}
	return deployments, nil
}

// Server hosts the three read-only reconciliation endpoints.
type Server struct {
	Lister     DeploymentLister
	Dispatcher *dispatch.Dispatcher
	Recorder   record.EventRecorder
	Port       int32
}

// Start runs the HTTP server until ctx is cancelled, matching the
// manager.Runnable contract the teacher's Receiver.Start implements.
func (s *Server) Start(ctx context.Context) error {
	log := logf.FromContext(ctx).WithName("server")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /reconcile", s.handleReconcile)
	mux.HandleFunc("GET /debug", s.handleDebug)

	addr := fmt.Sprintf(":%d", s.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting reconciliation server", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("reconciliation server error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("up"))
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	log := logf.FromContext(r.Context()).WithName("server")

	deployments, err := s.Lister.ListDeployments(r.Context())
	if err != nil {
		log.Error(err, "failed to list deployments")
		http.Error(w, "failed to list deployments", http.StatusInternalServerError)
		return
	}

	states := s.Dispatcher.Reconcile(r.Context(), deployments)
	s.recordEvents(deployments, states)
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	log := logf.FromContext(r.Context()).WithName("server")

	deployments, err := s.Lister.ListDeployments(r.Context())
	if err != nil {
		log.Error(err, "failed to list deployments")
		http.Error(w, "failed to list deployments", http.StatusInternalServerError)
		return
	}

	entries := dispatch.Entries(deployments)
	writeJSON(w, http.StatusOK, entries)
}

// recordEvents emits ReconcileSucceeded/ReconcileFailed Events against the
// Deployment each State came from — an enrichment beyond the original
// (which has no Kubernetes object to attach events to), grounded on
// client-go's record.EventRecorder, the same interface controller-runtime
// managers expose via mgr.GetEventRecorderFor.
func (s *Server) recordEvents(deployments []*appsv1.Deployment, states []entry.State) {
	if s.Recorder == nil {
		return
	}
	byName := make(map[string]*appsv1.Deployment, len(deployments))
	for _, d := range deployments {
		byName[d.Namespace+"/"+d.Name] = d
	}

	entries := dispatch.Entries(deployments)
	enabled := make([]*entry.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Config.Enabled {
			enabled = append(enabled, e)
		}
	}

	for i, state := range states {
		if i >= len(enabled) {
			break
		}
		d, ok := byName[enabled[i].Namespace+"/"+enabled[i].Name]
		if !ok {
			continue
		}
		switch state.Kind {
		case entry.StateSuccess:
			s.Recorder.Event(d, "Normal", "ReconcileSucceeded", state.Message)
		case entry.StateFailure:
			s.Recorder.Event(d, "Warning", "ReconcileFailed", state.Message)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
