// Package loader assembles a core.Beatmap from the entries of a bundle.
//
// Loading reads through an archive.Accessor passed per call and keeps no
// state between calls: the same bytes always produce an equal Beatmap, and a
// failure never yields a partial one.
package loader

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/beatmapar/loader/internal/archive"
	"github.com/beatmapar/loader/internal/imaging"
	"github.com/beatmapar/loader/internal/model/convert"
	"github.com/beatmapar/loader/internal/parser"
	"github.com/beatmapar/loader/pkg/core"
)

// Option configures a Loader.
type Option func(*config)

type config struct {
	images         imaging.Decoder
	lenient        bool
	characteristic string
}

// WithImageDecoder replaces the cover art decoder.
func WithImageDecoder(d imaging.Decoder) Option {
	return func(c *config) {
		if d != nil {
			c.images = d
		}
	}
}

// WithLenientCodes skips chart records with unknown codes instead of failing the load.
func WithLenientCodes(lenient bool) Option {
	return func(c *config) {
		c.lenient = lenient
	}
}

// WithCharacteristic selects the game mode to load. Defaults to Standard.
func WithCharacteristic(name string) Option {
	return func(c *config) {
		if name != "" {
			c.characteristic = name
		}
	}
}

// Loader builds Beatmaps. It is immutable and safe for concurrent use.
type Loader struct {
	cfg    config
	parser *parser.Parser
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	cfg := config{
		images:         imaging.Standard{},
		characteristic: parser.CharacteristicStandard,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{
		cfg:    cfg,
		parser: parser.NewParser(parser.Options{Lenient: cfg.lenient}),
	}
}

// Load builds a Beatmap with a Loader configured by opts.
func Load(accessor archive.Accessor, opts ...Option) (core.Beatmap, error) {
	return New(opts...).Load(accessor)
}

// LoadPreview reads the preview with a Loader configured by opts.
func LoadPreview(accessor archive.Accessor, opts ...Option) (core.Preview, []core.DifficultySummary, error) {
	return New(opts...).LoadPreview(accessor)
}

// Load reads the manifest, cover, song and every chart of the selected
// characteristic, and returns the assembled Beatmap. Difficulties are ordered
// by tier and their events by time.
func (l *Loader) Load(accessor archive.Accessor) (core.Beatmap, error) {
	manifest, err := l.readManifest(accessor)
	if err != nil {
		return core.Beatmap{}, err
	}

	cover, err := l.readCover(accessor, manifest)
	if err != nil {
		return core.Beatmap{}, err
	}

	song, ok := accessor.Get(manifest.SongFilename)
	if !ok {
		return core.Beatmap{}, &LoadError{Kind: SongUnreadable, File: manifest.SongFilename}
	}

	refs, err := l.selectCharts(manifest)
	if err != nil {
		return core.Beatmap{}, err
	}

	difficulties := make([]core.Difficulty, 0, len(refs))
	for _, ref := range refs {
		d, err := l.readDifficulty(accessor, manifest, ref)
		if err != nil {
			return core.Beatmap{}, err
		}
		difficulties = append(difficulties, d)
	}

	return core.Beatmap{
		Preview:      convert.PreviewToCore(manifest, cover),
		Song:         song,
		Difficulties: difficulties,
	}, nil
}

// LoadPreview reads only the manifest and cover art, and summarises the
// charts of the selected characteristic without decoding them.
func (l *Loader) LoadPreview(accessor archive.Accessor) (core.Preview, []core.DifficultySummary, error) {
	manifest, err := l.readManifest(accessor)
	if err != nil {
		return core.Preview{}, nil, err
	}

	cover, err := l.readCover(accessor, manifest)
	if err != nil {
		return core.Preview{}, nil, err
	}

	refs, err := l.selectCharts(manifest)
	if err != nil {
		return core.Preview{}, nil, err
	}

	summaries := make([]core.DifficultySummary, 0, len(refs))
	for _, ref := range refs {
		summaries = append(summaries, convert.SummaryToCore(ref))
	}
	return convert.PreviewToCore(manifest, cover), summaries, nil
}

// readManifest tries each manifest name in order and keeps the first that decodes.
func (l *Loader) readManifest(accessor archive.Accessor) (parser.RawManifest, error) {
	var errs []error
	for _, name := range parser.ManifestNames {
		data, ok := accessor.Get(name)
		if !ok {
			continue
		}
		manifest, err := l.parser.ParseManifest(data)
		if err == nil {
			return manifest, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	if len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no manifest entry found, tried %v", parser.ManifestNames))
	}
	return parser.RawManifest{}, &LoadError{Kind: ManifestUnreadable, Err: errors.Join(errs...)}
}

func (l *Loader) readCover(accessor archive.Accessor, manifest parser.RawManifest) (image.Image, error) {
	data, ok := accessor.Get(manifest.CoverImageFilename)
	if !ok {
		return nil, &LoadError{Kind: CoverImageUnreadable, File: manifest.CoverImageFilename}
	}
	img, err := l.cfg.images.Decode(data)
	if err != nil {
		return nil, &LoadError{Kind: CoverImageUnreadable, File: manifest.CoverImageFilename, Err: err}
	}
	if img == nil {
		return nil, &LoadError{Kind: CoverImageUnreadable, File: manifest.CoverImageFilename, Err: fmt.Errorf("decoder returned no image")}
	}
	return img, nil
}

// selectCharts picks the configured characteristic and orders its charts by
// ascending tier. Charts sharing a tier keep their manifest order.
func (l *Loader) selectCharts(manifest parser.RawManifest) ([]parser.ChartReference, error) {
	set, ok := manifest.Set(l.cfg.characteristic)
	if !ok {
		return nil, &LoadError{Kind: StandardModeMissing, File: l.cfg.characteristic}
	}
	refs := slices.Clone(set.Beatmaps)
	slices.SortStableFunc(refs, func(a, b parser.ChartReference) int {
		return cmp.Compare(a.Rank, b.Rank)
	})
	return refs, nil
}

func (l *Loader) readDifficulty(accessor archive.Accessor, manifest parser.RawManifest, ref parser.ChartReference) (core.Difficulty, error) {
	data, ok := accessor.Get(ref.BeatmapFilename)
	if !ok {
		return core.Difficulty{}, &LoadError{Kind: ChartUnreadable, File: ref.BeatmapFilename}
	}

	chart, err := l.parser.ParseChart(ref.BeatmapFilename, data)
	if err != nil {
		return core.Difficulty{}, &LoadError{Kind: ChartUnreadable, File: ref.BeatmapFilename, Err: err}
	}

	notes, obstacles, err := convert.ChartToCore(chart, manifest.BeatsPerMinute, manifest.SongTimeOffset)
	if err != nil {
		return core.Difficulty{}, &LoadError{Kind: ChartUnreadable, File: ref.BeatmapFilename, Err: err}
	}

	return core.NewDifficulty(
		convert.DifficultyName(ref),
		ref.Rank,
		notes,
		obstacles,
		convert.ColorSchemeToCore(ref.CustomData),
	), nil
}
