// Command vcsmountd is a thin entry point wiring checkout configuration,
// the object store, and the dispatcher boundary together. It stops short
// of an actual kernel mount (out of scope, spec.md §1) — it loads the
// checkout's config.toml, starts the metrics server, seeds an empty root
// tree in an in-memory backing store, builds the overlay and a Dispatcher
// over it, and waits for SIGINT or SIGTERM. Nothing serves the Dispatcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vcsmount/core/internal/config"
	"github.com/vcsmount/core/internal/dispatch"
	"github.com/vcsmount/core/internal/globeval"
	"github.com/vcsmount/core/internal/objectstore"
	"github.com/vcsmount/core/internal/overlay"
	"github.com/vcsmount/core/internal/store"
	"github.com/vcsmount/core/pkg/hash"
	"github.com/vcsmount/core/pkg/metrics"
	"github.com/vcsmount/core/pkg/utils"
)

func main() {
	clientDir := flag.String("client-dir", ".", "client directory containing config.toml")
	logLevel := flag.String("log-level", "info", "DEBUG, INFO, WARN, or ERROR")
	metricsPort := flag.Int("metrics-port", 9090, "Prometheus /metrics port")
	flag.Parse()

	if err := utils.SetupLogging(*logLevel, ""); err != nil {
		log.Fatalf("vcsmountd: %v", err)
	}
	level, _ := utils.ParseLogLevel(*logLevel)
	logger := utils.NewLogger(level, os.Stderr)

	if err := run(*clientDir, *metricsPort, logger); err != nil {
		logger.Error("vcsmountd exiting: %v", err)
		os.Exit(1)
	}
}

func run(clientDir string, metricsPort int, logger *utils.Logger) error {
	checkout, err := config.LoadCheckoutConfig(clientDir)
	if err != nil {
		return fmt.Errorf("loading checkout config: %w", err)
	}
	logger.Info("loaded checkout config: repository=%s protocol=%s", checkout.RepositorySource, checkout.Protocol)

	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Port: metricsPort, Path: "/metrics", Namespace: "vcsmount"})
	if err != nil {
		return fmt.Errorf("starting metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := collector.Start(ctx); err != nil {
			logger.Warn("metrics server stopped: %v", err)
		}
	}()

	// The real source-control backing store is out of scope (spec.md §1);
	// an empty checkout gives the dispatcher a valid, trivially resolvable
	// root to serve until a real BackingStore is plugged in here.
	backend := store.NewFakeBackingStore()
	rootTreeHash, err := backend.PutTreeAuto(nil)
	if err != nil {
		return fmt.Errorf("seeding empty root tree: %w", err)
	}
	root, err := hash.NewRootId(rootTreeHash.String())
	if err != nil {
		return fmt.Errorf("building root id: %w", err)
	}
	if err := backend.PutCommit(root, rootTreeHash); err != nil {
		return fmt.Errorf("seeding root commit: %w", err)
	}

	objects := objectstore.New(backend)
	objects.SetLogger(logger)
	objects.SetMetrics(collector)

	rootTree, err := objects.GetRootTree(ctx, root)
	if err != nil {
		return fmt.Errorf("resolving root tree: %w", err)
	}
	dir := overlay.NewDirContents(rootTree)

	mount := dispatch.NewMount(root, dir, objects)

	evaluator := globeval.New(objects, root)
	evaluator.SetLogger(logger)
	evaluator.SetMetrics(collector)

	logger.Info("vcsmountd ready: client-dir=%s mount-path=%s", clientDir, checkout.MountPath)
	_ = mount // served by an out-of-scope kernel bridge, which would call Dispatcher methods here

	<-ctx.Done()
	logger.Info("shutting down")
	return collector.Stop(context.Background())
}
