// Package export writes assembled beatmaps as JSON timelines for external
// players and tooling.
package export

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/beatmapar/loader/pkg/core"
)

// FormatVersion is written to every timeline.
const FormatVersion = 1

// Timeline is the root JSON structure.
// Events are compact arrays, see NoteRow and ObstacleRow for the layouts.
type Timeline struct {
	FormatVersion   int              `json:"formatVersion"`
	SongName        string           `json:"songName"`
	SongSubName     string           `json:"songSubName,omitempty"`
	SongAuthorName  string           `json:"songAuthorName"`
	LevelAuthorName string           `json:"levelAuthorName"`
	BeatsPerMinute  uint             `json:"beatsPerMinute"`
	SongTimeOffset  float64          `json:"songTimeOffset"`
	Window          *Window          `json:"window,omitempty"`
	Difficulties    []DifficultyJSON `json:"difficulties"`
}

// Window is the closed time range a partial export was cut to. An infinite
// bound leaves that side open and is omitted from the JSON.
type Window struct {
	From float64
	To   float64
}

type windowJSON struct {
	From *float64 `json:"from,omitempty"`
	To   *float64 `json:"to,omitempty"`
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// MarshalJSON writes only the finite bounds.
func (w Window) MarshalJSON() ([]byte, error) {
	var out windowJSON
	if finite(w.From) {
		out.From = &w.From
	}
	if finite(w.To) {
		out.To = &w.To
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a missing bound as open.
func (w *Window) UnmarshalJSON(data []byte) error {
	var in windowJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	w.From, w.To = math.Inf(-1), math.Inf(1)
	if in.From != nil {
		w.From = *in.From
	}
	if in.To != nil {
		w.To = *in.To
	}
	return nil
}

// DifficultyJSON is one chart of the timeline.
type DifficultyJSON struct {
	Name      string       `json:"name"`
	Tier      string       `json:"tier"`
	Rank      uint8        `json:"rank"`
	NoteCount int          `json:"noteCount"`
	BombCount int          `json:"bombCount"`
	WallCount int          `json:"wallCount"`
	Colors    *ColorsJSON  `json:"colors,omitempty"`
	Notes     [][]any      `json:"notes"`
	Obstacles [][]any      `json:"obstacles"`
	Duration  float64      `json:"duration"`
	Summary   SummaryStats `json:"summary"`
}

// ColorsJSON holds the per-chart color overrides as [r, g, b] triples.
type ColorsJSON struct {
	Left     []float64 `json:"left,omitempty"`
	Right    []float64 `json:"right,omitempty"`
	Obstacle []float64 `json:"obstacle,omitempty"`
}

// SummaryStats are derived figures shown next to a chart.
type SummaryStats struct {
	FirstEvent     float64 `json:"firstEvent"`
	LastEvent      float64 `json:"lastEvent"`
	NotesPerSecond float64 `json:"notesPerSecond"`
}

// Options controls Export.
type Options struct {
	OutputDir string
	Compress  bool

	// Window restricts events to [From, To] when set.
	Window *Window
}

// NoteRow encodes a note as [time, kind, direction, angle, row, column].
// Bombs carry an empty direction and a zero angle.
func NoteRow(n core.NoteEvent) []any {
	direction := ""
	var angle float32
	if d, ok := n.Note.Direction(); ok {
		direction = d.String()
		angle = d.Angle()
	}
	return []any{
		n.Time,
		n.Note.Kind().String(),
		direction,
		angle,
		uint8(n.Coordinates.Row),
		uint8(n.Coordinates.Column),
	}
}

// ObstacleRow encodes an obstacle as [time, duration, column, orientation, width].
func ObstacleRow(o core.ObstacleEvent) []any {
	return []any{
		o.Time,
		o.Duration,
		uint8(o.Column),
		o.Orientation.String(),
		o.Width,
	}
}

func colorTriple(c *core.Color) []float64 {
	if c == nil {
		return nil
	}
	return []float64{c.R, c.G, c.B}
}

// Build converts b into a Timeline, cut to window when it is not nil.
func Build(b *core.Beatmap, window *Window) Timeline {
	t := Timeline{
		FormatVersion:   FormatVersion,
		SongName:        b.Preview.SongName,
		SongSubName:     b.Preview.SongSubName,
		SongAuthorName:  b.Preview.SongAuthorName,
		LevelAuthorName: b.Preview.LevelAuthorName,
		BeatsPerMinute:  b.Preview.BeatsPerMinute,
		SongTimeOffset:  b.Preview.SongTimeOffset,
		Window:          window,
		Difficulties:    make([]DifficultyJSON, 0, len(b.Difficulties)),
	}

	for i := range b.Difficulties {
		t.Difficulties = append(t.Difficulties, buildDifficulty(&b.Difficulties[i], window))
	}
	return t
}

func buildDifficulty(d *core.Difficulty, window *Window) DifficultyJSON {
	notes := d.Notes()
	obstacles := d.Obstacles()
	if window != nil {
		s := d.Slice(window.From, window.To)
		notes = s.Notes
		obstacles = s.Obstacles.AppendTo(nil)
	}

	out := DifficultyJSON{
		Name:      d.Name(),
		Tier:      d.Tier().String(),
		Rank:      uint8(d.Tier()),
		NoteCount: d.NoteCount(),
		BombCount: d.BombCount(),
		WallCount: d.WallCount(),
		Notes:     make([][]any, 0, len(notes)),
		Obstacles: make([][]any, 0, len(obstacles)),
	}
	if cs := d.Colors(); cs != nil {
		out.Colors = &ColorsJSON{
			Left:     colorTriple(cs.Left),
			Right:    colorTriple(cs.Right),
			Obstacle: colorTriple(cs.Obstacle),
		}
	}

	first, last := math.Inf(1), math.Inf(-1)
	blocks := 0
	for _, n := range notes {
		out.Notes = append(out.Notes, NoteRow(n))
		first = math.Min(first, n.Time)
		last = math.Max(last, n.Time)
		if !n.Note.IsBomb() {
			blocks++
		}
	}
	for _, o := range obstacles {
		out.Obstacles = append(out.Obstacles, ObstacleRow(o))
		first = math.Min(first, o.Time)
		last = math.Max(last, o.End())
	}

	if len(notes)+len(obstacles) > 0 {
		out.Summary.FirstEvent = first
		out.Summary.LastEvent = last
		out.Duration = last - first
		if out.Duration > 0 {
			out.Summary.NotesPerSecond = float64(blocks) / out.Duration
		}
	}
	return out
}

// FileName derives the export file name from the song and level author.
func FileName(b *core.Beatmap, compress bool) string {
	name := sanitize(b.Preview.SongName)
	if name == "" {
		name = "beatmap"
	}
	if author := sanitize(b.Preview.LevelAuthorName); author != "" {
		name += "_" + author
	}
	if compress {
		return name + ".json.gz"
	}
	return name + ".json"
}

var unsafeChars = strings.NewReplacer(" ", "_", ":", "_", "/", "_", "\\", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

func sanitize(s string) string {
	return unsafeChars.Replace(strings.TrimSpace(s))
}

// Export writes the timeline of b into opts.OutputDir and returns the file path.
func Export(b *core.Beatmap, opts Options) (string, error) {
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(opts.OutputDir, FileName(b, opts.Compress))
	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	err = Write(f, Build(b, opts.Window), opts.Compress)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close %s: %w", outputPath, closeErr)
	}
	if err != nil {
		// leave no truncated timeline behind
		os.Remove(outputPath)
		return "", err
	}
	return outputPath, nil
}

// Write encodes t to w, gzipped when compress is set.
func Write(w io.Writer, t Timeline, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(t)
	}

	gzWriter := gzip.NewWriter(w)
	if err := json.NewEncoder(gzWriter).Encode(t); err != nil {
		gzWriter.Close()
		return fmt.Errorf("failed to encode timeline: %w", err)
	}
	return gzWriter.Close()
}
