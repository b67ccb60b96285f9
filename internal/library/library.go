// Package library scans a directory of song bundles and collects their
// previews, optionally keeping them in the catalog between runs.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/beatmapar/loader/internal/archive"
	"github.com/beatmapar/loader/internal/loader"
	"github.com/beatmapar/loader/internal/logging"
	"github.com/beatmapar/loader/internal/model"
	"github.com/beatmapar/loader/internal/model/convert"
	"github.com/beatmapar/loader/internal/parser"
	"github.com/beatmapar/loader/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Store is the part of the catalog a scan uses. *catalog.Catalog implements it.
type Store interface {
	Fresh(ctx context.Context, source string, modTime time.Time, size int64) (bool, error)
	Get(ctx context.Context, source string) (model.Song, error)
	Upsert(ctx context.Context, song *model.Song) error
	Prune(ctx context.Context, dir string, keep []string) (int64, error)
}

// Entry is the outcome of reading one bundle.
type Entry struct {
	Source       string
	ModTime      time.Time
	Size         int64
	Preview      core.Preview
	Difficulties []core.DifficultySummary

	// Cached is set when the preview came from the catalog. Cached previews
	// carry no cover image.
	Cached bool

	// Err is set when the bundle could not be loaded.
	Err error
}

// Result summarises a scan. Entries are in directory order.
type Result struct {
	Entries []Entry
	Loaded  int
	Cached  int
	Failed  int
	Pruned  int64
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithStore keeps previews in s between scans.
func WithStore(s Store) Option {
	return func(sc *Scanner) {
		sc.store = s
	}
}

// WithLogger sets the logger. Defaults to a logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(sc *Scanner) {
		if l != nil {
			sc.logger = l
		}
	}
}

// WithProgress calls fn after each bundle with the number done and the total.
// fn is called from a single goroutine.
func WithProgress(fn func(done, total int)) Option {
	return func(sc *Scanner) {
		sc.progress = fn
	}
}

// Scanner reads bundle previews with a bounded number of workers.
type Scanner struct {
	loader   *loader.Loader
	workers  int
	store    Store
	logger   *slog.Logger
	progress func(done, total int)
	metrics  instruments
}

// New creates a Scanner using l for every bundle. workers below 1 count as 1.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(l *loader.Loader, workers int, opts ...Option) (*Scanner, error) {
	if workers < 1 {
		workers = 1
	}
	sc := &Scanner{
		loader:  l,
		workers: workers,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(sc)
	}

	var err error
	sc.metrics, err = newInstruments()
	if err != nil {
		return nil, err
	}
	return sc, nil
}

type job struct {
	index int
	entry Entry
	open  func() (archive.Accessor, func() error)
}

// Find lists the bundles directly under dir: *.zip files and unpacked
// directories holding a manifest. Sources are absolute paths.
func Find(dir string) ([]Entry, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	items, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read library %s: %w", abs, err)
	}

	var entries []Entry
	for _, item := range items {
		path := filepath.Join(abs, item.Name())
		switch {
		case item.IsDir():
			if !hasManifest(path) {
				continue
			}
		case strings.EqualFold(filepath.Ext(item.Name()), ".zip"):
		default:
			continue
		}

		info, err := item.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Source: path, ModTime: info.ModTime(), Size: info.Size()})
	}
	return entries, nil
}

func hasManifest(dir string) bool {
	for _, name := range parser.ManifestNames {
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil && fi.Mode().IsRegular() {
			return true
		}
	}
	return false
}

func opener(e Entry) func() (archive.Accessor, func() error) {
	return func() (archive.Accessor, func() error) {
		if strings.EqualFold(filepath.Ext(e.Source), ".zip") {
			z := archive.OpenZip(e.Source)
			return z, z.Close
		}
		return archive.NewDir(e.Source), func() error { return nil }
	}
}

// Scan reads every bundle under dir. A bundle that fails to load is reported
// in its Entry and does not stop the scan; Scan itself fails only when dir
// cannot be listed or ctx is cancelled.
func (sc *Scanner) Scan(ctx context.Context, dir string) (Result, error) {
	start := time.Now()

	found, err := Find(dir)
	if err != nil {
		return Result{}, err
	}
	ctx = logging.WithAttrs(ctx, slog.String("library", dir))
	sc.logger.InfoContext(ctx, "Scanning library", "archives", len(found), "workers", sc.workers)

	jobs := make(chan job)
	results := make(chan job)

	var wg sync.WaitGroup
	for range min(sc.workers, max(len(found), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				j.entry = sc.read(ctx, j)
				results <- j
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, e := range found {
			select {
			case jobs <- job{index: i, entry: e, open: opener(e)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	res := Result{Entries: make([]Entry, len(found))}
	done := 0
	for j := range results {
		res.Entries[j.index] = j.entry
		sc.record(ctx, &res, j.entry)
		done++
		if sc.progress != nil {
			sc.progress(done, len(found))
		}
	}

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("library scan interrupted: %w", err)
	}

	if sc.store != nil {
		res.Pruned, err = sc.prune(ctx, dir, found)
		if err != nil {
			sc.logger.WarnContext(ctx, "Failed to prune catalog", "error", err)
		}
	}

	elapsed := time.Since(start)
	sc.metrics.duration.Record(ctx, elapsed.Seconds())
	sc.logger.InfoContext(ctx, "Library scanned",
		"loaded", res.Loaded,
		"cached", res.Cached,
		"failed", res.Failed,
		"pruned", res.Pruned,
		"duration", elapsed)
	return res, nil
}

// read loads one bundle, from the catalog when it is fresh there.
func (sc *Scanner) read(ctx context.Context, j job) Entry {
	e := j.entry
	ctx = logging.WithAttrs(ctx, slog.String("source", e.Source))

	if sc.store != nil {
		if cached, ok := sc.fromStore(ctx, e); ok {
			return cached
		}
	}

	accessor, closeFn := j.open()
	defer func() {
		if err := closeFn(); err != nil {
			sc.logger.DebugContext(ctx, "Failed to close archive", "error", err)
		}
	}()

	e.Preview, e.Difficulties, e.Err = sc.loader.LoadPreview(accessor)
	if e.Err != nil {
		sc.logger.WarnContext(ctx, "Skipping unreadable archive", "error", e.Err)
		return e
	}
	sc.logger.DebugContext(ctx, "Archive loaded",
		"song", e.Preview.SongName,
		"difficulties", len(e.Difficulties))

	if sc.store != nil {
		sc.save(ctx, e)
	}
	return e
}

func (sc *Scanner) fromStore(ctx context.Context, e Entry) (Entry, bool) {
	fresh, err := sc.store.Fresh(ctx, e.Source, e.ModTime, e.Size)
	if err != nil {
		sc.logger.WarnContext(ctx, "Catalog lookup failed", "error", err)
		return e, false
	}
	if !fresh {
		return e, false
	}

	song, err := sc.store.Get(ctx, e.Source)
	if err != nil {
		sc.logger.WarnContext(ctx, "Catalog lookup failed", "error", err)
		return e, false
	}
	e.Preview, e.Difficulties, err = convert.SongToCore(song)
	if err != nil {
		sc.logger.WarnContext(ctx, "Catalog entry unreadable", "error", err)
		return e, false
	}
	e.Cached = true
	return e, true
}

func (sc *Scanner) save(ctx context.Context, e Entry) {
	song, err := convert.PreviewToGorm(convert.ArchiveInfo{
		Source:  e.Source,
		ModTime: e.ModTime,
		Size:    e.Size,
	}, e.Preview, e.Difficulties)
	if err == nil {
		err = sc.store.Upsert(ctx, &song)
	}
	if err != nil {
		sc.logger.WarnContext(ctx, "Failed to store preview", "error", err)
	}
}

func (sc *Scanner) record(ctx context.Context, res *Result, e Entry) {
	kind := "loaded"
	switch {
	case e.Err != nil:
		res.Failed++
		kind = failureKind(e.Err)
		sc.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	case e.Cached:
		res.Cached++
		sc.metrics.cached.Add(ctx, 1)
	default:
		res.Loaded++
	}
	sc.metrics.scanned.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", kind)))
}

func failureKind(err error) string {
	var le *loader.LoadError
	if errors.As(err, &le) {
		return le.Kind.String()
	}
	return "unknown"
}

// prune drops catalog entries for bundles no longer under dir.
func (sc *Scanner) prune(ctx context.Context, dir string, found []Entry) (int64, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return 0, err
	}
	keep := make([]string, 0, len(found))
	for _, e := range found {
		keep = append(keep, e.Source)
	}
	return sc.store.Prune(ctx, abs+string(filepath.Separator), keep)
}
