package parser

import "github.com/beatmapar/loader/pkg/core"

// Characteristic names found in manifests.
const (
	CharacteristicStandard  = "Standard"
	CharacteristicOneSaber  = "OneSaber"
	CharacteristicNoArrows  = "NoArrows"
	Characteristic360Degree = "360Degree"
	Characteristic90Degree  = "90Degree"
	CharacteristicLightshow = "Lightshow"
	CharacteristicLawless   = "Lawless"
)

// RawManifest is the decoded info.dat. Times are still in beats and
// milliseconds; convert turns it into core values.
type RawManifest struct {
	Version            string
	SongName           string
	SongSubName        string
	SongAuthorName     string
	LevelAuthorName    string
	BeatsPerMinute     uint
	SongTimeOffset     float64 // milliseconds
	SongFilename       string
	CoverImageFilename string
	EnvironmentName    string
	PreviewStartTime   *float64 // seconds
	PreviewDuration    *float64 // seconds
	CharacteristicSets []CharacteristicSet

	// Skipped holds the chart references dropped in lenient mode.
	Skipped []*DecodeError
}

// Set returns the first characteristic set with the given name.
func (m *RawManifest) Set(characteristic string) (*CharacteristicSet, bool) {
	for i := range m.CharacteristicSets {
		if m.CharacteristicSets[i].Characteristic == characteristic {
			return &m.CharacteristicSets[i], true
		}
	}
	return nil, false
}

// CharacteristicSet groups the charts of one game mode.
type CharacteristicSet struct {
	Characteristic string
	Beatmaps       []ChartReference
}

// ChartReference points at one difficulty's chart file.
type ChartReference struct {
	Difficulty              string
	Rank                    core.DifficultyRank
	BeatmapFilename         string
	NoteJumpMovementSpeed   float64
	NoteJumpStartBeatOffset float64
	CustomData              *CustomData
}

// CustomData is the optional per-chart extension block.
type CustomData struct {
	DifficultyLabel string
	ColorLeft       *Color
	ColorRight      *Color
	ObstacleColor   *Color
}

// Color is an RGB triple in [0, 1] as written in custom data.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// RawChart is a decoded difficulty file.
type RawChart struct {
	Version   string
	Notes     []RawNote
	Obstacles []RawObstacle

	// Skipped holds the records dropped in lenient mode.
	Skipped []*DecodeError
}

// RawNote is a note record with validated codes. Time is in beats.
type RawNote struct {
	Time         float64
	LineIndex    LineIndex
	LineLayer    LineLayer
	CutDirection CutDirection
	Type         NoteType
}

// RawObstacle is an obstacle record with validated codes. Time and Duration are in beats.
type RawObstacle struct {
	Time      float64
	Duration  float64
	LineIndex LineIndex
	Type      ObstacleType
	Width     int
}
