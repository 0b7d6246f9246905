/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command gitops-operator runs the cluster-resident controller: it watches
// annotated Deployments through a manager cache, and serves /health,
// /reconcile, /debug over HTTP (C9), dispatching (C8) each opted-in entry
// through the reconciliation orchestrator (C7).
package main

import (
	"flag"
	"os"

	"go.uber.org/zap/zapcore"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/ia-eknorr/gitops-operator/internal/config"
	"github.com/ia-eknorr/gitops-operator/internal/dispatch"
	"github.com/ia-eknorr/gitops-operator/internal/gitengine"
	"github.com/ia-eknorr/gitops-operator/internal/metrics"
	"github.com/ia-eknorr/gitops-operator/internal/notify"
	"github.com/ia-eknorr/gitops-operator/internal/reconcile"
	"github.com/ia-eknorr/gitops-operator/internal/registry"
	"github.com/ia-eknorr/gitops-operator/internal/secrets"
	"github.com/ia-eknorr/gitops-operator/internal/server"
)

var setupLog = ctrl.Log.WithName("setup")

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		ctrl.Log.Error(err, "failed to load configuration")
		os.Exit(1)
	}

	var zapOpts zap.Options
	if level, parseErr := zapcore.ParseLevel(cfg.LogLevel); parseErr == nil {
		zapOpts.Level = level
	}
	zapOpts.BindFlags(flag.CommandLine)
	flag.Parse()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))

	restConfig, err := kubeRESTConfig(cfg.Kubeconfig)
	if err != nil {
		setupLog.Error(err, "failed to load kubeconfig")
		os.Exit(1)
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:  clientgoscheme.Scheme,
		Metrics: metricsserver.Options{BindAddress: "0"}, // served by internal/metrics instead
	})
	if err != nil {
		setupLog.Error(err, "failed to start manager")
		os.Exit(1)
	}

	promMetrics := metrics.New()

	// Secrets are read through a direct API client rather than mgr.GetClient(),
	// whose reads are served from the manager's informer cache.
	secretsClient, err := client.New(restConfig, client.Options{Scheme: clientgoscheme.Scheme})
	if err != nil {
		setupLog.Error(err, "failed to build secrets client")
		os.Exit(1)
	}

	gitClient := &gitengine.GoGitClient{Metrics: promMetrics}
	secretsProvider := secrets.NewK8sProvider(secretsClient)
	checkerFactory := &registry.Factory{HTTPClient: registryHTTPClient(cfg), DefaultRegistryURL: cfg.DefaultRegistryURL, Metrics: promMetrics}
	notifier := notify.NewHTTPNotificationSender()

	orchestrator := reconcile.New(secretsProvider, gitClient, checkerFactory, notifier)
	orchestrator.Identity = cfg.CommitIdentity()
	orchestrator.Metrics = promMetrics

	dispatcher := dispatch.New(orchestrator)
	dispatcher.Concurrency = cfg.DispatchConcurrency
	dispatcher.Metrics = promMetrics

	httpServer := &server.Server{
		Lister:     &server.CacheLister{Reader: mgr.GetCache(), Namespace: cfg.WatchNamespace},
		Dispatcher: dispatcher,
		Recorder:   mgr.GetEventRecorderFor("gitops-operator"),
		Port:       listenPort(cfg.ListenAddr),
	}

	if err := mgr.Add(runnableFunc(httpServer.Start)); err != nil {
		setupLog.Error(err, "failed to register reconciliation server")
		os.Exit(1)
	}

	metricsServer := &metricsHTTPServer{addr: cfg.MetricsAddr, handler: promMetrics.Handler()}
	if err := mgr.Add(runnableFunc(metricsServer.Start)); err != nil {
		setupLog.Error(err, "failed to register metrics server")
		os.Exit(1)
	}

	setupLog.Info("starting gitops-operator", "listenAddr", cfg.ListenAddr, "metricsAddr", cfg.MetricsAddr)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "manager exited with error")
		os.Exit(1)
	}
}
