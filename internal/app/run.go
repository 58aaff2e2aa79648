package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/Flarenzy/dns-zonegen/internal/db"
	"github.com/Flarenzy/dns-zonegen/internal/domain"
	"github.com/Flarenzy/dns-zonegen/internal/serveraddr"
	"github.com/Flarenzy/dns-zonegen/internal/snapshot"
	"github.com/Flarenzy/dns-zonegen/internal/zone"
)

// source is an inventory that can also list the whole fleet.
type source interface {
	domain.Inventory
	domain.FleetSource
}

var errNoSource = fmt.Errorf("%w: set a snapshot file or DB_CONN", domain.ErrInvalidInput)

// Run generates every zone once and writes them to w.
func Run(ctx context.Context, cfg Config, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	src, closeSource, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	_, err = generate(ctx, cfg, src, nil, w, logger)
	return err
}

func openSource(ctx context.Context, cfg Config, logger *slog.Logger) (source, func(), error) {
	switch {
	case cfg.SnapshotPath != "":
		s, err := snapshot.Load(cfg.SnapshotPath)
		if err != nil {
			return nil, nil, err
		}
		return snapshot.NewInventory(s, cfg.DefaultTTL), func() {}, nil
	case cfg.DSN != "":
		pool, err := db.NewPool(ctx, cfg.DSN, cfg.ConnectAttempts, logger)
		if err != nil {
			return nil, nil, err
		}
		return db.NewInventory(pool, cfg.DefaultTTL), pool.Close, nil
	}
	return nil, nil, errNoSource
}

// generate runs one generation over src, merging reverse zones into existing
// when it is not nil, and returns the number of zones written.
func generate(ctx context.Context, cfg Config, src source, existing *zone.ReverseZones, w io.Writer, logger *slog.Logger) (int, error) {
	logger = logger.With("run_id", uuid.NewString())

	fleet, err := src.Fleet(ctx)
	if err != nil {
		return 0, fmt.Errorf("read fleet: %w", err)
	}

	inventory := domain.NewLoggingInventory(logger, src)
	resolver := serveraddr.NewResolver(cfg.MAASURL, nil, logger)
	gen := zone.NewGenerator(inventory, resolver, cfg.DefaultTTL, logger)

	seq, err := gen.Generate(ctx, zone.Request{
		Domains:          domain.AuthoritativeDomains(fleet.Domains),
		Subnets:          fleet.Subnets,
		Serial:           cfg.Serial,
		DefaultTTL:       cfg.DefaultTTL,
		InternalDomains:  fleet.InternalDomains,
		DynamicUpdates:   fleet.DynamicUpdates,
		ForceConfigWrite: cfg.ForceConfigWrite,
		Existing:         existing,
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for z, err := range seq {
		if err != nil {
			return n, err
		}
		if err := WriteZone(w, z); err != nil {
			return n, err
		}
		n++
	}
	logger.InfoContext(ctx, "zones generated", "count", n, "serial", cfg.Serial)
	return n, nil
}

// WriteZone prints the zone name followed by one RR per line.
func WriteZone(w io.Writer, z zone.ZoneConfig) error {
	rrs, err := z.Records()
	if err != nil {
		return fmt.Errorf("zone %s: %w", z.ZoneName(), err)
	}
	if _, err := fmt.Fprintf(w, "; zone %s\n", z.ZoneName()); err != nil {
		return err
	}
	for _, rr := range rrs {
		if _, err := fmt.Fprintln(w, rr.String()); err != nil {
			return err
		}
	}
	return nil
}

// Watch generates the zones of the snapshot file, then again every time the
// file changes, until ctx is done. Reverse zones accumulate across runs and
// each run bumps the serial. A snapshot that fails to load or generate is
// logged and skipped.
func Watch(ctx context.Context, cfg Config, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SnapshotPath == "" {
		return fmt.Errorf("%w: watch needs a snapshot file", domain.ErrInvalidInput)
	}
	path, err := filepath.Abs(cfg.SnapshotPath)
	if err != nil {
		return fmt.Errorf("resolve snapshot path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	existing := zone.NewReverseZones()
	regenerate := func() error {
		s, err := snapshot.Load(path)
		if err != nil {
			return err
		}
		_, err = generate(ctx, cfg, snapshot.NewInventory(s, cfg.DefaultTTL), existing, w, logger)
		if err != nil {
			return err
		}
		logger.DebugContext(ctx, "reverse zones accumulated", "count", existing.Len(), "serial", cfg.Serial)
		cfg.Serial++
		return nil
	}

	if err := regenerate(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			logger.DebugContext(ctx, "snapshot changed", "path", path, "op", ev.Op.String())
			if err := regenerate(); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				logger.ErrorContext(ctx, "regenerate zones failed", "path", path, "err", err.Error())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "watch error", "err", err.Error())
		}
	}
}
