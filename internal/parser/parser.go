package parser

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ManifestNames are the manifest entry names, in the order they are tried.
// Producers disagree on the casing.
var ManifestNames = []string{"info.dat", "Info.dat"}

// Options controls decoding policy.
type Options struct {
	// Lenient skips records holding an unknown code or missing a required
	// field instead of failing the whole file. Skipped records are reported
	// in RawChart.Skipped and RawManifest.Skipped.
	Lenient bool
}

// Parser provides pure []byte -> raw record decoding.
// It holds no state besides its options and is safe for concurrent use.
type Parser struct {
	opts Options
}

// NewParser creates a parser with the given policy.
func NewParser(opts Options) *Parser {
	return &Parser{opts: opts}
}

// parseIntFromNumber parses a JSON number that may be an integer ("3") or an
// integral float ("3.0") into int64. Older editors write every number as a float.
func parseIntFromNumber(n json.Number) (int64, error) {
	if v, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%q is not an integer", string(n))
	}
	return int64(f), nil
}

// supportedVersion accepts the 2.x schema family; an absent version is
// treated as legacy 2.0.0.
func supportedVersion(v string) bool {
	return v == "" || v == "2" || strings.HasPrefix(v, "2.")
}

type manifestJSON struct {
	Version            string       `json:"_version"`
	SongName           string       `json:"_songName"`
	SongSubName        string       `json:"_songSubName"`
	SongAuthorName     string       `json:"_songAuthorName"`
	LevelAuthorName    string       `json:"_levelAuthorName"`
	BeatsPerMinute     *json.Number `json:"_beatsPerMinute"`
	SongTimeOffset     float64      `json:"_songTimeOffset"`
	SongFilename       *string      `json:"_songFilename"`
	CoverImageFilename *string      `json:"_coverImageFilename"`
	EnvironmentName    string       `json:"_environmentName"`
	PreviewStartTime   *float64     `json:"_previewStartTime"`
	PreviewDuration    *float64     `json:"_previewDuration"`
	Sets               []setJSON    `json:"_difficultyBeatmapSets"`
}

type setJSON struct {
	Characteristic string            `json:"_beatmapCharacteristicName"`
	Beatmaps       []json.RawMessage `json:"_difficultyBeatmaps"`
}

type chartRefJSON struct {
	Difficulty              string          `json:"_difficulty"`
	Rank                    *json.Number    `json:"_difficultyRank"`
	BeatmapFilename         *string         `json:"_beatmapFilename"`
	NoteJumpMovementSpeed   float64         `json:"_noteJumpMovementSpeed"`
	NoteJumpStartBeatOffset float64         `json:"_noteJumpStartBeatOffset"`
	CustomData              *customDataJSON `json:"_customData"`
}

type customDataJSON struct {
	DifficultyLabel string `json:"_difficultyLabel"`
	ColorLeft       *Color `json:"_colorLeft"`
	ColorRight      *Color `json:"_colorRight"`
	ObstacleColor   *Color `json:"_obstacleColor"`
}

// ParseManifest decodes info.dat bytes.
// Returns a ManifestMalformed DecodeError on any failure.
func (p *Parser) ParseManifest(data []byte) (RawManifest, error) {
	var manifest RawManifest
	var raw manifestJSON

	if err := json.Unmarshal(data, &raw); err != nil {
		return manifest, manifestError(fmt.Errorf("error unmarshalling manifest: %w", err))
	}
	if !supportedVersion(raw.Version) {
		return manifest, manifestError(fmt.Errorf("unsupported schema version %q", raw.Version))
	}

	if raw.BeatsPerMinute == nil {
		return manifest, manifestError(fmt.Errorf("manifest field %q is missing", "_beatsPerMinute"))
	}
	bpm, err := parseIntFromNumber(*raw.BeatsPerMinute)
	if err != nil || bpm < 0 {
		return manifest, manifestError(fmt.Errorf("manifest field %q must be a non-negative integer, got %s", "_beatsPerMinute", raw.BeatsPerMinute.String()))
	}
	if raw.SongFilename == nil {
		return manifest, manifestError(fmt.Errorf("manifest field %q is missing", "_songFilename"))
	}
	if raw.CoverImageFilename == nil {
		return manifest, manifestError(fmt.Errorf("manifest field %q is missing", "_coverImageFilename"))
	}

	manifest = RawManifest{
		Version:            raw.Version,
		SongName:           raw.SongName,
		SongSubName:        raw.SongSubName,
		SongAuthorName:     raw.SongAuthorName,
		LevelAuthorName:    raw.LevelAuthorName,
		BeatsPerMinute:     uint(bpm),
		SongTimeOffset:     raw.SongTimeOffset,
		SongFilename:       *raw.SongFilename,
		CoverImageFilename: *raw.CoverImageFilename,
		EnvironmentName:    raw.EnvironmentName,
		PreviewStartTime:   raw.PreviewStartTime,
		PreviewDuration:    raw.PreviewDuration,
		CharacteristicSets: make([]CharacteristicSet, 0, len(raw.Sets)),
	}

	for _, rs := range raw.Sets {
		set := CharacteristicSet{
			Characteristic: rs.Characteristic,
			Beatmaps:       make([]ChartReference, 0, len(rs.Beatmaps)),
		}
		for i, msg := range rs.Beatmaps {
			ref, err := parseChartReference(msg, i)
			if err != nil {
				if p.opts.Lenient {
					manifest.Skipped = append(manifest.Skipped, err)
					continue
				}
				if err.Kind == UnknownCode {
					return RawManifest{}, manifestError(err)
				}
				return RawManifest{}, err
			}
			set.Beatmaps = append(set.Beatmaps, ref)
		}
		manifest.CharacteristicSets = append(manifest.CharacteristicSets, set)
	}

	return manifest, nil
}

func parseChartReference(msg json.RawMessage, index int) (ChartReference, *DecodeError) {
	var ref ChartReference
	var raw chartRefJSON

	if err := json.Unmarshal(msg, &raw); err != nil {
		return ref, &DecodeError{Kind: ManifestMalformed, Index: index, Err: fmt.Errorf("error unmarshalling difficulty beatmap %d: %w", index, err)}
	}
	if raw.Rank == nil {
		return ref, &DecodeError{Kind: ManifestMalformed, Index: index, Err: fmt.Errorf("difficulty beatmap %d: field %q is missing", index, "_difficultyRank")}
	}
	if raw.BeatmapFilename == nil {
		return ref, &DecodeError{Kind: ManifestMalformed, Index: index, Err: fmt.Errorf("difficulty beatmap %d: field %q is missing", index, "_beatmapFilename")}
	}
	code, err := parseIntFromNumber(*raw.Rank)
	if err != nil {
		return ref, &DecodeError{Kind: ManifestMalformed, Index: index, Err: fmt.Errorf("difficulty beatmap %d: field %q: %w", index, "_difficultyRank", err)}
	}
	rank, err := lookupCode(difficultyRanks, "_difficultyRank", code, index)
	if err != nil {
		return ref, err.(*DecodeError)
	}

	ref = ChartReference{
		Difficulty:              raw.Difficulty,
		Rank:                    rank,
		BeatmapFilename:         *raw.BeatmapFilename,
		NoteJumpMovementSpeed:   raw.NoteJumpMovementSpeed,
		NoteJumpStartBeatOffset: raw.NoteJumpStartBeatOffset,
	}
	if raw.CustomData != nil {
		ref.CustomData = &CustomData{
			DifficultyLabel: raw.CustomData.DifficultyLabel,
			ColorLeft:       raw.CustomData.ColorLeft,
			ColorRight:      raw.CustomData.ColorRight,
			ObstacleColor:   raw.CustomData.ObstacleColor,
		}
	}
	return ref, nil
}

type chartJSON struct {
	Version   string            `json:"_version"`
	Notes     []json.RawMessage `json:"_notes"`
	Obstacles []json.RawMessage `json:"_obstacles"`
}

type noteJSON struct {
	Time         *float64     `json:"_time"`
	LineIndex    *json.Number `json:"_lineIndex"`
	LineLayer    *json.Number `json:"_lineLayer"`
	CutDirection *json.Number `json:"_cutDirection"`
	Type         *json.Number `json:"_type"`
}

type obstacleJSON struct {
	Time      *float64     `json:"_time"`
	Duration  *float64     `json:"_duration"`
	LineIndex *json.Number `json:"_lineIndex"`
	Type      *json.Number `json:"_type"`
	Width     *json.Number `json:"_width"`
}

// ParseChart decodes the bytes of the chart file called name.
// Returns a ChartMalformed DecodeError naming the file on failure.
func (p *Parser) ParseChart(name string, data []byte) (RawChart, error) {
	var chart RawChart
	var raw chartJSON

	if err := json.Unmarshal(data, &raw); err != nil {
		return chart, chartError(name, fmt.Errorf("error unmarshalling chart: %w", err))
	}
	if !supportedVersion(raw.Version) {
		return chart, chartError(name, fmt.Errorf("unsupported schema version %q", raw.Version))
	}

	chart.Version = raw.Version
	chart.Notes = make([]RawNote, 0, len(raw.Notes))
	chart.Obstacles = make([]RawObstacle, 0, len(raw.Obstacles))

	for i, msg := range raw.Notes {
		note, err := parseNote(msg, i)
		if err != nil {
			if p.opts.Lenient {
				chart.Skipped = append(chart.Skipped, err)
				continue
			}
			return RawChart{}, chartError(name, err)
		}
		chart.Notes = append(chart.Notes, note)
	}

	for i, msg := range raw.Obstacles {
		obstacle, err := parseObstacle(msg, i)
		if err != nil {
			if p.opts.Lenient {
				chart.Skipped = append(chart.Skipped, err)
				continue
			}
			return RawChart{}, chartError(name, err)
		}
		chart.Obstacles = append(chart.Obstacles, obstacle)
	}

	return chart, nil
}

// recordDecoder collects the first failure while reading the fields of one record.
type recordDecoder struct {
	kind  string
	index int
	err   *DecodeError
}

func (d *recordDecoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = &DecodeError{
			Kind:  ChartMalformed,
			Index: d.index,
			Err:   fmt.Errorf("%s %d: %s", d.kind, d.index, fmt.Sprintf(format, args...)),
		}
	}
}

func (d *recordDecoder) float(field string, v *float64) float64 {
	if v == nil {
		d.fail("field %q is missing", field)
		return 0
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		d.fail("field %q is not finite", field)
		return 0
	}
	return *v
}

func (d *recordDecoder) integer(field string, n *json.Number) int64 {
	if n == nil {
		d.fail("field %q is missing", field)
		return 0
	}
	v, err := parseIntFromNumber(*n)
	if err != nil {
		d.fail("field %q: %v", field, err)
		return 0
	}
	return v
}

func decodeCode[T any](d *recordDecoder, table map[int64]T, field string, n *json.Number) T {
	var zero T
	code := d.integer(field, n)
	if d.err != nil {
		return zero
	}
	v, err := lookupCode(table, field, code, d.index)
	if err != nil {
		d.err = err.(*DecodeError)
		return zero
	}
	return v
}

func parseNote(msg json.RawMessage, index int) (RawNote, *DecodeError) {
	var raw noteJSON
	if err := json.Unmarshal(msg, &raw); err != nil {
		return RawNote{}, &DecodeError{Kind: ChartMalformed, Index: index, Err: fmt.Errorf("error unmarshalling note %d: %w", index, err)}
	}

	d := &recordDecoder{kind: "note", index: index}
	note := RawNote{
		Time:         d.float("_time", raw.Time),
		LineIndex:    decodeCode(d, lineIndexes, "_lineIndex", raw.LineIndex),
		LineLayer:    decodeCode(d, lineLayers, "_lineLayer", raw.LineLayer),
		CutDirection: decodeCode(d, cutDirections, "_cutDirection", raw.CutDirection),
		Type:         decodeCode(d, noteTypes, "_type", raw.Type),
	}
	if d.err != nil {
		return RawNote{}, d.err
	}
	return note, nil
}

func parseObstacle(msg json.RawMessage, index int) (RawObstacle, *DecodeError) {
	var raw obstacleJSON
	if err := json.Unmarshal(msg, &raw); err != nil {
		return RawObstacle{}, &DecodeError{Kind: ChartMalformed, Index: index, Err: fmt.Errorf("error unmarshalling obstacle %d: %w", index, err)}
	}

	d := &recordDecoder{kind: "obstacle", index: index}
	obstacle := RawObstacle{
		Time:      d.float("_time", raw.Time),
		Duration:  d.float("_duration", raw.Duration),
		LineIndex: decodeCode(d, lineIndexes, "_lineIndex", raw.LineIndex),
		Type:      decodeCode(d, obstacleTypes, "_type", raw.Type),
		Width:     int(d.integer("_width", raw.Width)),
	}
	if d.err != nil {
		return RawObstacle{}, d.err
	}
	return obstacle, nil
}
