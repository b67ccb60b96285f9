// Package convert provides functions to convert decoded chart records to core events
package convert

import (
	"image"

	"github.com/beatmapar/loader/internal/parser"
	"github.com/beatmapar/loader/pkg/core"
)

// Fixed tables of the file format. Indexing is always bounds checked
// through lookup so an unvalidated record cannot alias a valid variant.
var (
	directions = [...]core.Direction{
		parser.CutUp:        core.DirectionBottomToTop,
		parser.CutDown:      core.DirectionTopToBottom,
		parser.CutLeft:      core.DirectionRightToLeft,
		parser.CutRight:     core.DirectionLeftToRight,
		parser.CutUpLeft:    core.DirectionBottomRightToTopLeft,
		parser.CutUpRight:   core.DirectionBottomLeftToTopRight,
		parser.CutDownLeft:  core.DirectionTopRightToBottomLeft,
		parser.CutDownRight: core.DirectionTopLeftToBottomRight,
		parser.CutAny:       core.DirectionAny,
	}
	columns = [...]core.Column{
		0: core.ColumnLeftmost,
		1: core.ColumnLeft,
		2: core.ColumnRight,
		3: core.ColumnRightmost,
	}
	rows = [...]core.Row{
		0: core.RowBottom,
		1: core.RowMiddle,
		2: core.RowTop,
	}
	orientations = [...]core.Orientation{
		parser.ObstacleVertical:   core.OrientationVertical,
		parser.ObstacleHorizontal: core.OrientationHorizontal,
	}
)

func lookup[T any, C ~int64](table []T, field string, code C) (T, error) {
	if code < 0 || int64(code) >= int64(len(table)) {
		var zero T
		return zero, &parser.DecodeError{Kind: parser.UnknownCode, Field: field, Value: int64(code), Index: -1}
	}
	return table[code], nil
}

// SecondsPerBeat is 60/bpm, or 0 for a zero tempo.
func SecondsPerBeat(bpm uint) float64 {
	if bpm > 0 {
		return 60.0 / float64(bpm)
	}
	return 0
}

// BeatsToSeconds converts a beat time to absolute song seconds.
func BeatsToSeconds(beat float64, bpm uint, offsetMillis float64) float64 {
	return SecondsPerBeat(bpm)*beat + offsetMillis/1000.0
}

// NoteToCore converts a raw note to a core.NoteEvent.
func NoteToCore(n parser.RawNote, bpm uint, offsetMillis float64) (core.NoteEvent, error) {
	column, err := lookup(columns[:], "_lineIndex", n.LineIndex)
	if err != nil {
		return core.NoteEvent{}, err
	}
	row, err := lookup(rows[:], "_lineLayer", n.LineLayer)
	if err != nil {
		return core.NoteEvent{}, err
	}

	var note core.Note
	switch n.Type {
	case parser.NoteTypeBomb:
		note = core.Bomb()
	case parser.NoteTypeRed, parser.NoteTypeBlue:
		direction, err := lookup(directions[:], "_cutDirection", n.CutDirection)
		if err != nil {
			return core.NoteEvent{}, err
		}
		if n.Type == parser.NoteTypeRed {
			note = core.RedBlock(direction)
		} else {
			note = core.BlueBlock(direction)
		}
	default:
		return core.NoteEvent{}, &parser.DecodeError{Kind: parser.UnknownCode, Field: "_type", Value: int64(n.Type), Index: -1}
	}

	return core.NoteEvent{
		Time:        BeatsToSeconds(n.Time, bpm, offsetMillis),
		Note:        note,
		Coordinates: core.Coordinates{Row: row, Column: column},
	}, nil
}

// ObstacleToCore converts a raw obstacle to a core.ObstacleEvent.
// The duration is scaled by the same tempo; negative durations become zero.
func ObstacleToCore(o parser.RawObstacle, bpm uint, offsetMillis float64) (core.ObstacleEvent, error) {
	column, err := lookup(columns[:], "_lineIndex", o.LineIndex)
	if err != nil {
		return core.ObstacleEvent{}, err
	}
	orientation, err := lookup(orientations[:], "_type", o.Type)
	if err != nil {
		return core.ObstacleEvent{}, err
	}

	duration := o.Duration * SecondsPerBeat(bpm)
	if duration < 0 {
		duration = 0
	}

	return core.ObstacleEvent{
		Time:        BeatsToSeconds(o.Time, bpm, offsetMillis),
		Duration:    duration,
		Column:      column,
		Orientation: orientation,
		Width:       o.Width,
	}, nil
}

// ChartToCore converts every record of a chart, preserving file order.
func ChartToCore(chart parser.RawChart, bpm uint, offsetMillis float64) ([]core.NoteEvent, []core.ObstacleEvent, error) {
	notes := make([]core.NoteEvent, 0, len(chart.Notes))
	for i, n := range chart.Notes {
		event, err := NoteToCore(n, bpm, offsetMillis)
		if err != nil {
			withIndex(err, i)
			return nil, nil, err
		}
		notes = append(notes, event)
	}

	obstacles := make([]core.ObstacleEvent, 0, len(chart.Obstacles))
	for i, o := range chart.Obstacles {
		event, err := ObstacleToCore(o, bpm, offsetMillis)
		if err != nil {
			withIndex(err, i)
			return nil, nil, err
		}
		obstacles = append(obstacles, event)
	}

	return notes, obstacles, nil
}

func withIndex(err error, index int) {
	if de, ok := err.(*parser.DecodeError); ok {
		de.Index = index
	}
}

// colorToCore converts an optional custom data color.
func colorToCore(c *parser.Color) *core.Color {
	if c == nil {
		return nil
	}
	return &core.Color{R: c.R, G: c.G, B: c.B}
}

// ColorSchemeToCore converts the custom colors of a chart reference.
// Returns nil when no color is set.
func ColorSchemeToCore(cd *parser.CustomData) *core.ColorScheme {
	if cd == nil || (cd.ColorLeft == nil && cd.ColorRight == nil && cd.ObstacleColor == nil) {
		return nil
	}
	return &core.ColorScheme{
		Left:     colorToCore(cd.ColorLeft),
		Right:    colorToCore(cd.ColorRight),
		Obstacle: colorToCore(cd.ObstacleColor),
	}
}

// SummaryToCore describes a chart reference without loading it.
func SummaryToCore(ref parser.ChartReference) core.DifficultySummary {
	return core.DifficultySummary{
		Name:     DifficultyName(ref),
		Tier:     ref.Rank,
		Filename: ref.BeatmapFilename,
	}
}

// DifficultyName prefers the custom label, then the tier's display name.
func DifficultyName(ref parser.ChartReference) string {
	if ref.CustomData != nil && ref.CustomData.DifficultyLabel != "" {
		return ref.CustomData.DifficultyLabel
	}
	return ref.Rank.DisplayName()
}

// PreviewToCore builds the song preview from a manifest and its decoded cover.
func PreviewToCore(m parser.RawManifest, cover image.Image) core.Preview {
	return core.Preview{
		SongName:        m.SongName,
		SongSubName:     m.SongSubName,
		SongAuthorName:  m.SongAuthorName,
		LevelAuthorName: m.LevelAuthorName,
		BeatsPerMinute:  m.BeatsPerMinute,
		SongTimeOffset:  m.SongTimeOffset,
		CoverImage:      cover,
	}
}
