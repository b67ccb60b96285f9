// pkg/core/beatmap.go
package core

import (
	"fmt"
	"image"
	"math"
)

// Preview is the song metadata shown before a chart is picked.
type Preview struct {
	SongName        string
	SongSubName     string
	SongAuthorName  string
	LevelAuthorName string
	BeatsPerMinute  uint
	SongTimeOffset  float64 // milliseconds
	CoverImage      image.Image
}

// Beatmap is a fully loaded song bundle. It is built once by the loader and
// never mutated afterwards.
type Beatmap struct {
	Preview Preview
	Song    []byte

	// Difficulties of the selected characteristic, ascending by tier.
	Difficulties []Difficulty
}

// Difficulty returns the chart with the given tier, if present.
func (b *Beatmap) Difficulty(tier DifficultyRank) (*Difficulty, bool) {
	for i := range b.Difficulties {
		if b.Difficulties[i].tier == tier {
			return &b.Difficulties[i], true
		}
	}
	return nil, false
}

// FormatTime renders seconds as m:ss for display. Negative and non-finite
// values render as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
