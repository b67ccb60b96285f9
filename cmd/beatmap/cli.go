package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/beatmapar/loader/internal/archive"
	"github.com/beatmapar/loader/internal/archive/gcs"
	"github.com/beatmapar/loader/internal/catalog"
	"github.com/beatmapar/loader/internal/config"
	"github.com/beatmapar/loader/internal/export"
	"github.com/beatmapar/loader/internal/library"
	"github.com/beatmapar/loader/internal/loader"
	"github.com/beatmapar/loader/internal/logging"
	"github.com/beatmapar/loader/internal/model/convert"
	"github.com/beatmapar/loader/pkg/core"
	"github.com/schollz/progressbar/v3"
)

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(AppName+" "+name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func newLoader() *loader.Loader {
	lc := config.GetLoaderConfig()
	return loader.New(
		loader.WithLenientCodes(lc.LenientCodes),
		loader.WithCharacteristic(lc.Characteristic),
	)
}

func noClose() error { return nil }

// openBundle resolves src to an accessor: gs://bucket/prefix, an unpacked
// directory or a zip file. An empty src falls back to the configured bucket.
func (a *app) openBundle(ctx context.Context, src string) (archive.Accessor, func() error, error) {
	gcsCfg := config.GetGCSConfig()
	if rest, ok := strings.CutPrefix(src, "gs://"); ok {
		gcsCfg.Bucket, gcsCfg.Prefix, _ = strings.Cut(rest, "/")
		src = ""
	}
	if src == "" {
		if gcsCfg.Bucket == "" {
			return nil, nil, errors.New("no bundle given and gcs.bucket is not configured")
		}
		acc, err := gcs.New(ctx, gcs.Config{
			Bucket:          gcsCfg.Bucket,
			Prefix:          gcsCfg.Prefix,
			CredentialsFile: gcsCfg.CredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		a.logger.Debug("Reading bundle from GCS", "bucket", gcsCfg.Bucket, "prefix", gcsCfg.Prefix)
		return acc, acc.Close, nil
	}

	fi, err := os.Stat(src)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	if fi.IsDir() {
		return archive.NewDir(src), noClose, nil
	}
	z := archive.OpenZip(src)
	if err := z.Open(); err != nil {
		return nil, nil, err
	}
	return z, z.Close, nil
}

func (a *app) closeBundle(ctx context.Context, closeFn func() error) {
	if err := closeFn(); err != nil {
		a.logger.DebugContext(ctx, "Failed to close bundle", "error", err)
	}
}

func (a *app) loadBeatmap(ctx context.Context, src string) (core.Beatmap, error) {
	ctx = logging.WithAttrs(ctx, slog.String("bundle", src))

	accessor, closeFn, err := a.openBundle(ctx, src)
	if err != nil {
		return core.Beatmap{}, err
	}
	defer a.closeBundle(ctx, closeFn)

	b, err := newLoader().Load(accessor)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to load bundle", "error", err)
		return core.Beatmap{}, err
	}
	a.logger.InfoContext(ctx, "Bundle loaded", "song", b.Preview.SongName, "difficulties", len(b.Difficulties))
	return b, nil
}

func bundleArg(fs *flag.FlagSet) string {
	if fs.NArg() == 0 {
		return ""
	}
	return fs.Arg(0)
}

// lastEvent returns the time the last note or obstacle of d ends.
func lastEvent(d *core.Difficulty) float64 {
	last := 0.0
	if notes := d.Notes(); len(notes) > 0 {
		last = notes[len(notes)-1].Time
	}
	for _, o := range d.Obstacles() {
		last = max(last, o.End())
	}
	return last
}

func parseTier(s string) (core.DifficultyRank, error) {
	for _, r := range core.Ranks {
		if strings.EqualFold(s, r.String()) || strings.EqualFold(s, r.DisplayName()) {
			return r, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err == nil && core.DifficultyRank(n).Valid() {
		return core.DifficultyRank(n), nil
	}
	return 0, fmt.Errorf("unknown difficulty %q", s)
}

func (a *app) inspect(ctx context.Context, args []string) error {
	fs := a.flagSet("inspect")
	preview := fs.Bool("preview", false, "read only the manifest and cover art")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *preview {
		accessor, closeFn, err := a.openBundle(ctx, bundleArg(fs))
		if err != nil {
			return err
		}
		defer a.closeBundle(ctx, closeFn)

		p, summaries, err := newLoader().LoadPreview(accessor)
		if err != nil {
			return err
		}
		a.printPreview(p)
		w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIER\tNAME\tFILE")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.Tier, s.Name, s.Filename)
		}
		return w.Flush()
	}

	b, err := a.loadBeatmap(ctx, bundleArg(fs))
	if err != nil {
		return err
	}
	a.printPreview(b.Preview)
	fmt.Fprintf(a.stdout, "Audio:   %d bytes\n\n", len(b.Song))

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIER\tNAME\tNOTES\tBOMBS\tWALLS\tLENGTH")
	for i := range b.Difficulties {
		d := &b.Difficulties[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			d.Tier(), d.Name(), d.NoteCount(), d.BombCount(), d.WallCount(), core.FormatTime(lastEvent(d)))
	}
	return w.Flush()
}

func (a *app) printPreview(p core.Preview) {
	title := p.SongName
	if p.SongSubName != "" {
		title += " (" + p.SongSubName + ")"
	}
	fmt.Fprintf(a.stdout, "Song:    %s\n", title)
	fmt.Fprintf(a.stdout, "Artist:  %s\n", p.SongAuthorName)
	fmt.Fprintf(a.stdout, "Mapper:  %s\n", p.LevelAuthorName)
	fmt.Fprintf(a.stdout, "BPM:     %d\n", p.BeatsPerMinute)
	fmt.Fprintf(a.stdout, "Offset:  %g ms\n", p.SongTimeOffset)
	if p.CoverImage != nil {
		bounds := p.CoverImage.Bounds()
		fmt.Fprintf(a.stdout, "Cover:   %dx%d\n", bounds.Dx(), bounds.Dy())
	}
}

func (a *app) slice(ctx context.Context, args []string) error {
	fs := a.flagSet("slice")
	tier := fs.String("tier", "", "difficulty to slice, e.g. Expert or ExpertPlus (default: highest)")
	from := fs.Float64("from", 0, "window start in seconds")
	to := fs.Float64("to", math.Inf(1), "window end in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := a.loadBeatmap(ctx, bundleArg(fs))
	if err != nil {
		return err
	}
	if len(b.Difficulties) == 0 {
		return errors.New("bundle has no difficulties")
	}

	d := &b.Difficulties[len(b.Difficulties)-1]
	if *tier != "" {
		rank, err := parseTier(*tier)
		if err != nil {
			return err
		}
		var ok bool
		if d, ok = b.Difficulty(rank); !ok {
			return fmt.Errorf("bundle has no %s difficulty", rank.DisplayName())
		}
	}

	s := d.Slice(*from, *to)
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "# %s, %d notes, %d obstacles\n", d.Name(), len(s.Notes), s.Obstacles.Len())
	fmt.Fprintln(w, "TIME\tEVENT\tDETAIL\tPOSITION")
	for _, n := range s.Notes {
		fmt.Fprintf(w, "%.3f\tnote\t%s\t%s/%s\n", n.Time, n.Note, n.Coordinates.Row, n.Coordinates.Column)
	}
	for o := range s.Obstacles.All() {
		fmt.Fprintf(w, "%.3f\twall\t%s %.3fs w%d\t%s\n", o.Time, o.Orientation, o.Duration, o.Width, o.Column)
	}
	return w.Flush()
}

func (a *app) export(ctx context.Context, args []string) error {
	exportCfg := config.GetExportConfig()

	fs := a.flagSet("export")
	out := fs.String("out", exportCfg.OutputDir, "output directory")
	compress := fs.Bool("gzip", exportCfg.CompressOutput, "gzip the timeline")
	from := fs.Float64("from", 0, "window start in seconds")
	to := fs.Float64("to", math.Inf(1), "window end in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var window *export.Window
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "from" || f.Name == "to" {
			window = &export.Window{From: *from, To: *to}
		}
	})

	b, err := a.loadBeatmap(ctx, bundleArg(fs))
	if err != nil {
		return err
	}

	path, err := export.Export(&b, export.Options{OutputDir: *out, Compress: *compress, Window: window})
	if err != nil {
		return err
	}
	a.logger.Info("Timeline exported", "path", path)
	fmt.Fprintln(a.stdout, path)
	return nil
}

func (a *app) openCatalog() (*catalog.Catalog, error) {
	cat, err := catalog.Open(config.GetCatalogConfig(), a.dbLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	return cat, nil
}

func (a *app) library(ctx context.Context, args []string) error {
	libCfg := config.GetLibraryConfig()

	fs := a.flagSet("library")
	workers := fs.Int("workers", libCfg.Workers, "concurrent archive readers")
	quiet := fs.Bool("quiet", false, "hide the progress bar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dir := libCfg.Dir
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}

	opts := []library.Option{library.WithLogger(a.logger)}
	if config.GetCatalogConfig().Enabled {
		cat, err := a.openCatalog()
		if err != nil {
			return err
		}
		defer cat.Close()
		opts = append(opts, library.WithStore(cat))
	}

	var bar *progressbar.ProgressBar
	if !*quiet {
		opts = append(opts, library.WithProgress(func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(a.stderr),
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionSetTheme(progressbar.ThemeASCII),
					progressbar.OptionFullWidth(),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("[cyan]Scanning library...[reset]"),
				)
			}
			_ = bar.Set(done)
		}))
	}

	scanner, err := library.New(newLoader(), *workers, opts...)
	if err != nil {
		return err
	}
	res, err := scanner.Scan(ctx, dir)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(a.stderr)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHIVE\tSONG\tARTIST\tMAPPER\tBPM\tDIFFICULTIES\tSTATUS")
	for _, e := range res.Entries {
		name := filepath.Base(e.Source)
		if e.Err != nil {
			fmt.Fprintf(w, "%s\t\t\t\t\t\terror: %v\n", name, e.Err)
			continue
		}
		status := "loaded"
		if e.Cached {
			status = "cached"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			name, e.Preview.SongName, e.Preview.SongAuthorName, e.Preview.LevelAuthorName,
			e.Preview.BeatsPerMinute, difficultyNames(e.Difficulties), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "\n%d loaded, %d cached, %d failed, %d pruned\n", res.Loaded, res.Cached, res.Failed, res.Pruned)
	return nil
}

func difficultyNames(summaries []core.DifficultySummary) string {
	names := make([]string, 0, len(summaries))
	for _, s := range summaries {
		names = append(names, s.Name)
	}
	return strings.Join(names, ", ")
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := a.flagSet("list")
	author := fs.String("author", "", "song or level author")
	search := fs.String("search", "", "substring of the song name")
	limit := fs.Int("limit", 0, "maximum number of songs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	songs, err := cat.List(ctx, catalog.Query{Author: *author, Search: *search, Limit: *limit})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SONG\tARTIST\tMAPPER\tBPM\tDIFFICULTIES\tSOURCE")
	for _, s := range songs {
		p, summaries, err := convert.SongToCore(s)
		if err != nil {
			a.logger.Warn("Skipping unreadable catalog entry", "source", s.Source, "error", err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.SongName, p.SongAuthorName, p.LevelAuthorName, p.BeatsPerMinute, difficultyNames(summaries), s.Source)
	}
	return w.Flush()
}
