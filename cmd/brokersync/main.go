// Command brokersync runs the offline-first sync core as a local daemon
// for the brokerage operations app: it persists entity drafts, reconciles
// them with the system of record when connectivity allows, and feeds
// status events to the host UI shell over a local WebSocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mlefevre/brokersync/internal/config"
	"github.com/mlefevre/brokersync/internal/guard"
	"github.com/mlefevre/brokersync/internal/logging"
	"github.com/mlefevre/brokersync/internal/models"
	"github.com/mlefevre/brokersync/internal/netmon"
	"github.com/mlefevre/brokersync/internal/remote"
	"github.com/mlefevre/brokersync/internal/store"
	syncpkg "github.com/mlefevre/brokersync/internal/sync"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error("Invalid configuration", err, nil)
		os.Exit(1)
	}

	logging.Init(os.Stdout, logging.LogLevel(cfg.LogLevel))
	logging.Info("brokersync starting", map[string]interface{}{"version": Version})

	kv, err := store.OpenSQLite(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local store", err, nil)
		os.Exit(1)
	}
	defer kv.Close()

	drafts := store.New(kv)
	monitor := netmon.New()

	records := remote.NewRecordClient(&remote.RecordConfig{
		BaseURL: cfg.RecordAPIURL,
		Token:   cfg.RecordAPIToken,
		Table:   cfg.RecordTable,
	})

	engine := syncpkg.New(drafts, records, monitor, &syncpkg.Config{
		SyncInterval:   cfg.SyncInterval,
		ReconnectDelay: cfg.ReconnectDelay,
		FieldMap:       models.EstimationFieldMap,
	})

	blobs := remote.NewS3Client(&remote.S3Config{
		Endpoint:       cfg.S3Endpoint,
		BucketName:     cfg.S3Bucket,
		AccessKey:      cfg.S3AccessKey,
		SecretKey:      cfg.S3SecretKey,
		Region:         cfg.S3Region,
		ForcePathStyle: cfg.S3ForcePathStyle,
	})

	closeGuard := guard.New(drafts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWSHub()
	engine.Status().Subscribe(func(state syncpkg.State) {
		hub.Broadcast(EventSyncStatus, map[string]interface{}{
			"status":  string(state),
			"pending": closeGuard.PendingSyncCount(),
		})
	})
	monitor.Subscribe(func(event netmon.Event) {
		sample := monitor.Sample()
		hub.Broadcast(EventNetworkChanged, map[string]interface{}{
			"online":         sample.IsOnline,
			"effective_type": string(sample.EffectiveType),
			"slow":           sample.IsSlowConnection(),
		})
	})

	engine.Start(ctx)
	defer engine.Stop()

	prober := netmon.NewHTTPProber(cfg.RecordAPIURL)
	go monitor.Watch(ctx, prober, cfg.ProbeInterval)

	api := NewAPI(drafts, engine, monitor, blobs, closeGuard, hub, cfg.AutosaveDelay)
	defer api.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	api.Register(mux)
	server := &http.Server{Addr: cfg.FeedAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Status feed server failed", err, nil)
		}
	}()

	logging.Info("brokersync ready",
		map[string]interface{}{"feed_addr": cfg.FeedAddr, "data_dir": cfg.DataDir})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Info("brokersync shutting down", nil)
	server.Shutdown(context.Background())
}
