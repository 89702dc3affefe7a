package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/config"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/errata"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/importer"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/logging"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/metadata"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/metrics"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/recorditem"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/source"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/storage"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

func main() {
	if err := run(); err != nil {
		slog.Error("stream importer failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := pflag.NewFlagSet("stream-importer", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("stream-importer %s (%s)\n", importer.Version, importer.GitSHA)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	log := logging.Component("main")
	log.Info("stream importer starting", "version", importer.Version, "git_sha", importer.GitSHA, "network", cfg.Network.Name)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.Init("stream_importer")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		log.Info("metrics server listening", "address", cfg.Metrics.Address)
	}

	table, err := loadErrata(cfg.Build.ErrataFile)
	if err != nil {
		return err
	}
	log.Info("errata loaded", "entries", table.Len(), "version", table.Version())

	src, err := source.NewStreamSource(source.SourceConfig{
		Mode:      cfg.Source.Mode,
		LocalPath: cfg.Source.LocalPath,
		Bucket:    cfg.Source.Bucket,
		Prefix:    cfg.Source.Prefix,
		Endpoint:  cfg.Source.Endpoint,
		Region:    cfg.Source.Region,
		Format:    cfg.Source.Format,
	})
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	defer src.Close()

	var store storage.ArchiveStore
	if cfg.Storage.Enabled {
		store, err = storage.NewArchiveStore(storage.StorageConfig{
			Backend:  cfg.Storage.Backend,
			LocalDir: cfg.Storage.LocalDir,
			Bucket:   cfg.Storage.Bucket,
			Endpoint: cfg.Storage.Endpoint,
			Region:   cfg.Storage.Region,
			Prefix:   cfg.Storage.Prefix,
		})
		if err != nil {
			return fmt.Errorf("create storage: %w", err)
		}
		defer store.Close()
	}

	catalog, err := metadata.NewCatalog(metadata.CatalogConfig{PostgresDSN: cfg.Catalog.PostgresDSN})
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalog.Close()

	formatLabel := cfg.Source.Format
	if formatLabel == "any" {
		formatLabel = ""
	}
	cp, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Dir:     cfg.Checkpoint.Dir,
		Network: cfg.Network.Name,
		Format:  formatLabel,
	})
	if err != nil {
		return err
	}

	builder := recorditem.NewBuilder(recorditem.Options{
		Network:       cfg.Network.Name,
		Errata:        table,
		StrictParents: cfg.Build.StrictParents,
	})

	im, err := importer.New(importer.Config{
		ImporterID:     fmt.Sprintf("%s-%s", cfg.Network.Name, cfg.Source.Mode),
		Network:        cfg.Network.Name,
		Format:         formatLabel,
		SourceType:     cfg.Source.Mode,
		StorageBackend: cfg.Storage.Backend,
		Workers:        cfg.Perf.Workers,
		QueueSize:      cfg.Perf.QueueSize,
		MaxRetry:       cfg.Perf.MaxRetries,
	}, importer.Deps{
		Source:     src,
		Reader:     streamfile.NewReader(builder),
		Validator:  streamfile.NewValidator(nil),
		Catalog:    catalog,
		Store:      store,
		Checkpoint: cp,
	})
	if err != nil {
		return err
	}

	if err := im.Run(ctx); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown complete")
			return nil
		}
		return err
	}

	if last := im.Previous(); last != nil {
		log.Info("stream importer stopped cleanly", "last_file", last.Name, "last_index", last.Index)
	} else {
		log.Info("stream importer stopped cleanly")
	}
	return nil
}

func loadErrata(path string) (*errata.Table, error) {
	if path == "" {
		return errata.Default()
	}
	return errata.LoadFile(path)
}
