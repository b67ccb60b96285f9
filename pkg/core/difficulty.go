// pkg/core/difficulty.go
package core

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"sort"
)

// DifficultyRank is the tier of a chart. The numeric values are the codes
// used by the file format, gaps included.
type DifficultyRank uint8

const (
	RankEasy       DifficultyRank = 1
	RankNormal     DifficultyRank = 3
	RankHard       DifficultyRank = 5
	RankExpert     DifficultyRank = 7
	RankExpertPlus DifficultyRank = 9
)

// Ranks lists every tier in ascending order.
var Ranks = []DifficultyRank{RankEasy, RankNormal, RankHard, RankExpert, RankExpertPlus}

// Valid reports whether r is one of the five known tiers.
func (r DifficultyRank) Valid() bool {
	switch r {
	case RankEasy, RankNormal, RankHard, RankExpert, RankExpertPlus:
		return true
	}
	return false
}

// DisplayName is the label shown to players.
func (r DifficultyRank) DisplayName() string {
	switch r {
	case RankEasy:
		return "Easy"
	case RankNormal:
		return "Normal"
	case RankHard:
		return "Hard"
	case RankExpert:
		return "Expert"
	case RankExpertPlus:
		return "Expert+"
	default:
		return fmt.Sprintf("Rank(%d)", uint8(r))
	}
}

func (r DifficultyRank) String() string {
	if r == RankExpertPlus {
		return "ExpertPlus"
	}
	return r.DisplayName()
}

// Color is an RGB triple with channels in [0, 1].
type Color struct {
	R, G, B float64
}

// ColorScheme holds the per-chart color overrides. Nil members were not set.
type ColorScheme struct {
	Left     *Color
	Right    *Color
	Obstacle *Color
}

// Difficulty is one playable chart with its events sorted by time.
// It is read-only after NewDifficulty and safe for concurrent readers.
type Difficulty struct {
	name      string
	tier      DifficultyRank
	colors    *ColorScheme
	notes     []NoteEvent
	obstacles []ObstacleEvent

	// maxEnd[i] is the latest End() among obstacles[0..i]; non-decreasing,
	// so it can be binary searched for the first obstacle able to reach a window.
	maxEnd []float64

	noteCount int
	bombCount int
	wallCount int
}

// NewDifficulty takes ownership of notes and obstacles, sorts both by time
// (stable, so simultaneous events keep their file order) and computes the
// derived counts.
func NewDifficulty(name string, tier DifficultyRank, notes []NoteEvent, obstacles []ObstacleEvent, colors *ColorScheme) Difficulty {
	slices.SortStableFunc(notes, func(a, b NoteEvent) int { return cmp.Compare(a.Time, b.Time) })
	slices.SortStableFunc(obstacles, func(a, b ObstacleEvent) int { return cmp.Compare(a.Time, b.Time) })

	d := Difficulty{
		name:      name,
		tier:      tier,
		colors:    colors,
		notes:     notes,
		obstacles: obstacles,
		maxEnd:    make([]float64, len(obstacles)),
		wallCount: len(obstacles),
	}

	for _, n := range notes {
		if n.Note.IsBomb() {
			d.bombCount++
		}
	}
	d.noteCount = len(notes) - d.bombCount

	for i, o := range obstacles {
		end := o.End()
		if i > 0 && d.maxEnd[i-1] > end {
			end = d.maxEnd[i-1]
		}
		d.maxEnd[i] = end
	}

	return d
}

// Name is the display name of the chart.
func (d *Difficulty) Name() string { return d.name }

// Tier is the difficulty rank.
func (d *Difficulty) Tier() DifficultyRank { return d.tier }

// Colors returns the custom color overrides, or nil.
func (d *Difficulty) Colors() *ColorScheme { return d.colors }

// Notes returns the notes in ascending time order. Callers must not modify it.
func (d *Difficulty) Notes() []NoteEvent { return d.notes }

// Obstacles returns the obstacles in ascending start time order. Callers must not modify it.
func (d *Difficulty) Obstacles() []ObstacleEvent { return d.obstacles }

// NoteCount is the number of blocks, bombs excluded.
func (d *Difficulty) NoteCount() int { return d.noteCount }

// BombCount is the number of bombs.
func (d *Difficulty) BombCount() int { return d.bombCount }

// WallCount is the number of obstacles.
func (d *Difficulty) WallCount() int { return d.wallCount }

// Slice is the set of events visible in a time window.
type Slice struct {
	// Notes is a view into the difficulty's notes; do not modify.
	Notes     []NoteEvent
	Obstacles ObstacleView
}

// Slice returns the events visible in the closed window [lo, hi].
// A note is included when lo <= t <= hi; an obstacle when [t, t+max(0,dur)]
// touches the window. It does not allocate.
func (d *Difficulty) Slice(lo, hi float64) Slice {
	if !(lo <= hi) {
		return Slice{}
	}
	nStart, nEnd := d.NoteBounds(lo, hi)
	oStart, oEnd := d.ObstacleBounds(lo, hi)
	return Slice{
		Notes: d.notes[nStart:nEnd:nEnd],
		Obstacles: ObstacleView{
			candidates: d.obstacles[oStart:oEnd:oEnd],
			lo:         lo,
		},
	}
}

// NoteBounds returns the index range [start, end) of notes within [lo, hi].
func (d *Difficulty) NoteBounds(lo, hi float64) (start, end int) {
	notes := d.notes
	start = sort.Search(len(notes), func(i int) bool { return notes[i].Time >= lo })
	end = start + sort.Search(len(notes)-start, func(i int) bool { return notes[start+i].Time > hi })
	return start, end
}

// ObstacleBounds returns the index range [start, end) of obstacles that may
// overlap [lo, hi]. Everything outside the range is guaranteed not to overlap;
// members inside it may still end before lo, see ObstacleView.
func (d *Difficulty) ObstacleBounds(lo, hi float64) (start, end int) {
	maxEnd, obstacles := d.maxEnd, d.obstacles
	start = sort.Search(len(maxEnd), func(i int) bool { return maxEnd[i] >= lo })
	end = start + sort.Search(len(obstacles)-start, func(i int) bool { return obstacles[start+i].Time > hi })
	return start, end
}

// ObstacleView lazily filters a candidate range of obstacles down to the
// ones overlapping a window. Every candidate already starts at or before the
// window's upper bound, so only the end needs checking.
type ObstacleView struct {
	candidates []ObstacleEvent
	lo         float64
}

// All yields the overlapping obstacles in start time order.
func (v ObstacleView) All() iter.Seq[ObstacleEvent] {
	return func(yield func(ObstacleEvent) bool) {
		for _, o := range v.candidates {
			if o.End() < v.lo {
				continue
			}
			if !yield(o) {
				return
			}
		}
	}
}

// Len counts the overlapping obstacles.
func (v ObstacleView) Len() int {
	n := 0
	for _, o := range v.candidates {
		if o.End() >= v.lo {
			n++
		}
	}
	return n
}

// AppendTo appends the overlapping obstacles to dst, letting callers reuse a buffer per frame.
func (v ObstacleView) AppendTo(dst []ObstacleEvent) []ObstacleEvent {
	for _, o := range v.candidates {
		if o.End() >= v.lo {
			dst = append(dst, o)
		}
	}
	return dst
}

// Candidates returns the unfiltered candidate range.
func (v ObstacleView) Candidates() []ObstacleEvent { return v.candidates }

// DifficultySummary describes a chart without its events.
type DifficultySummary struct {
	Name     string
	Tier     DifficultyRank
	Filename string
}
