package main

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	"github.com/ia-eknorr/gitops-operator/internal/config"
)

// kubeRESTConfig builds the REST config the manager talks to the API server
// with. An explicit kubeconfig path (KUBECONFIG / config.Config.Kubeconfig)
// loads an out-of-cluster config from that file; otherwise it falls back to
// ctrl.GetConfig's usual in-cluster/flag/env resolution.
func kubeRESTConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		return ctrl.GetConfig()
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

// runnableFunc adapts a Start(ctx) error function into a manager.Runnable,
// the same manager.RunnableFunc idiom controller-runtime itself exposes.
type runnableFunc = manager.RunnableFunc

// listenPort extracts the numeric port out of a ":NNNN"-style listen
// address for server.Server.Port, defaulting to 8080 on a malformed value.
func listenPort(addr string) int32 {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		portStr = strings.TrimPrefix(addr, ":")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 8080
	}
	return int32(port)
}

func registryHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.HTTPClientTimeout}
}

// metricsHTTPServer serves the Prometheus metrics handler on its own
// address, separate from the reconciliation server, mirroring the
// teacher's internal/agent/metrics.go server-per-concern split.
type metricsHTTPServer struct {
	addr    string
	handler http.Handler
}

func (m *metricsHTTPServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.handler)

	httpServer := &http.Server{
		Addr:              m.addr,
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

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
