package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/beatmapar/loader/internal/archive"
	"github.com/beatmapar/loader/internal/imaging"
	"github.com/beatmapar/loader/internal/parser"
	"github.com/beatmapar/loader/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCover(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

type chartRef struct {
	rank     int
	filename string
	label    string
}

func testManifest(bpm, offset int, characteristic string, refs ...chartRef) string {
	entries := make([]string, 0, len(refs))
	for _, r := range refs {
		custom := ""
		if r.label != "" {
			custom = fmt.Sprintf(`, "_customData": {"_difficultyLabel": %q}`, r.label)
		}
		entries = append(entries, fmt.Sprintf(`{"_difficultyRank": %d, "_beatmapFilename": %q%s}`, r.rank, r.filename, custom))
	}
	return fmt.Sprintf(`{
		"_version": "2.0.0",
		"_songName": "Test Song",
		"_songAuthorName": "Artist",
		"_levelAuthorName": "Mapper",
		"_beatsPerMinute": %d,
		"_songTimeOffset": %d,
		"_songFilename": "song.egg",
		"_coverImageFilename": "cover.png",
		"_difficultyBeatmapSets": [{"_beatmapCharacteristicName": %q, "_difficultyBeatmaps": [%s]}]
	}`, bpm, offset, characteristic, strings.Join(entries, ","))
}

const noteAtBeatTwo = `{"_version": "2.0.0", "_notes": [{"_time": 2, "_lineIndex": 1, "_lineLayer": 0, "_type": 0, "_cutDirection": 1}], "_obstacles": []}`

func testBundle(t *testing.T, manifest string, charts map[string]string) archive.Map {
	t.Helper()
	m := archive.Map{
		"info.dat":  []byte(manifest),
		"song.egg":  []byte("OggS"),
		"cover.png": testCover(t),
	}
	for name, chart := range charts {
		m[name] = []byte(chart)
	}
	return m
}

func TestLoad_NoteTimeFromBeat(t *testing.T) {
	bundle := testBundle(t,
		testManifest(120, 0, "Standard", chartRef{rank: 7, filename: "Expert.dat"}),
		map[string]string{"Expert.dat": noteAtBeatTwo},
	)

	b, err := Load(bundle)
	require.NoError(t, err)

	require.Len(t, b.Difficulties, 1)
	d := b.Difficulties[0]
	require.Len(t, d.Notes(), 1)
	assert.Equal(t, 1.0, d.Notes()[0].Time)
	assert.Equal(t, core.RedBlock(core.DirectionTopToBottom), d.Notes()[0].Note)
	assert.Equal(t, "Expert", d.Name())
	assert.Equal(t, core.RankExpert, d.Tier())
	assert.Equal(t, 1, d.NoteCount())

	assert.Equal(t, "Test Song", b.Preview.SongName)
	assert.Equal(t, "Artist", b.Preview.SongAuthorName)
	assert.Equal(t, "Mapper", b.Preview.LevelAuthorName)
	assert.Equal(t, uint(120), b.Preview.BeatsPerMinute)
	assert.Equal(t, []byte("OggS"), b.Song)
	require.NotNil(t, b.Preview.CoverImage)
	assert.Equal(t, image.Rect(0, 0, 8, 8), b.Preview.CoverImage.Bounds())
}

func TestLoad_OffsetShiftsEvents(t *testing.T) {
	bundle := testBundle(t,
		testManifest(60, 500, "Standard", chartRef{rank: 1, filename: "Easy.dat"}),
		map[string]string{"Easy.dat": `{"_notes": [{"_time": 3, "_lineIndex": 0, "_lineLayer": 0, "_type": 3, "_cutDirection": 0}],
			"_obstacles": [{"_time": 1, "_lineIndex": 0, "_type": 0, "_duration": 2, "_width": 1}]}`},
	)

	b, err := Load(bundle)
	require.NoError(t, err)

	d := b.Difficulties[0]
	assert.Equal(t, 3.5, d.Notes()[0].Time)
	assert.Equal(t, 1, d.BombCount())
	require.Len(t, d.Obstacles(), 1)
	assert.Equal(t, 1.5, d.Obstacles()[0].Time)
	assert.Equal(t, 2.0, d.Obstacles()[0].Duration)
}

func TestLoad_StandardModeMissing(t *testing.T) {
	bundle := testBundle(t,
		testManifest(120, 0, "OneSaber", chartRef{rank: 7, filename: "Expert.dat"}),
		map[string]string{"Expert.dat": noteAtBeatTwo},
	)

	b, err := Load(bundle)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStandardModeMissing)
	assert.Empty(t, b.Difficulties)

	// the other mode loads when asked for
	b, err = Load(bundle, WithCharacteristic(parser.CharacteristicOneSaber))
	require.NoError(t, err)
	assert.Len(t, b.Difficulties, 1)
}

func TestLoad_StandardModeMissingWithoutSets(t *testing.T) {
	bundle := testBundle(t,
		`{"_beatsPerMinute": 120, "_songFilename": "song.egg", "_coverImageFilename": "cover.png"}`,
		nil,
	)

	_, err := Load(bundle)
	assert.ErrorIs(t, err, ErrStandardModeMissing)
}

func TestLoad_DifficultiesSortedByTier(t *testing.T) {
	bundle := testBundle(t,
		testManifest(120, 0, "Standard",
			chartRef{rank: 7, filename: "Expert.dat"},
			chartRef{rank: 3, filename: "Normal.dat"},
		),
		map[string]string{
			"Expert.dat": noteAtBeatTwo,
			"Normal.dat": noteAtBeatTwo,
		},
	)

	b, err := Load(bundle)
	require.NoError(t, err)

	require.Len(t, b.Difficulties, 2)
	assert.Equal(t, core.RankNormal, b.Difficulties[0].Tier())
	assert.Equal(t, core.RankExpert, b.Difficulties[1].Tier())

	d, ok := b.Difficulty(core.RankExpert)
	require.True(t, ok)
	assert.Equal(t, "Expert", d.Name())
}

func TestLoad_MissingChartFails(t *testing.T) {
	bundle := testBundle(t,
		testManifest(120, 0, "Standard",
			chartRef{rank: 3, filename: "Normal.dat"},
			chartRef{rank: 7, filename: "Expert.dat"},
		),
		map[string]string{"Normal.dat": noteAtBeatTwo},
	)

	b, err := Load(bundle)
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ChartUnreadable, le.Kind)
	assert.Equal(t, "Expert.dat", le.File)
	assert.Nil(t, le.Err)
	assert.Empty(t, b.Difficulties, "no partial beatmap")
	assert.Nil(t, b.Song)
}

func TestLoad_Idempotent(t *testing.T) {
	bundle := testBundle(t,
		testManifest(128, 30, "Standard",
			chartRef{rank: 9, filename: "ExpertPlus.dat", label: "Finale"},
			chartRef{rank: 1, filename: "Easy.dat"},
		),
		map[string]string{
			"ExpertPlus.dat": `{"_notes": [
				{"_time": 8, "_lineIndex": 3, "_lineLayer": 2, "_type": 1, "_cutDirection": 5},
				{"_time": 1, "_lineIndex": 0, "_lineLayer": 0, "_type": 3, "_cutDirection": 0}
			], "_obstacles": [{"_time": 4, "_lineIndex": 1, "_type": 1, "_duration": 4, "_width": 2}]}`,
			"Easy.dat": noteAtBeatTwo,
		},
	)

	first, err := Load(bundle)
	require.NoError(t, err)
	second, err := Load(bundle)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Finale", first.Difficulties[1].Name())
}

func TestLoad_ConcurrentUse(t *testing.T) {
	bundle := testBundle(t,
		testManifest(120, 0, "Standard", chartRef{rank: 5, filename: "Hard.dat"}),
		map[string]string{"Hard.dat": noteAtBeatTwo},
	)
	l := New()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = l.Load(bundle)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestLoad_ManifestFallbackName(t *testing.T) {
	bundle := testBundle(t, "", map[string]string{"Easy.dat": noteAtBeatTwo})
	delete(bundle, "info.dat")
	bundle["Info.dat"] = []byte(testManifest(120, 0, "Standard", chartRef{rank: 1, filename: "Easy.dat"}))

	b, err := Load(bundle)
	require.NoError(t, err)
	assert.Len(t, b.Difficulties, 1)
}

func TestLoad_ManifestFallbackAfterMalformed(t *testing.T) {
	bundle := testBundle(t, "{broken", map[string]string{"Easy.dat": noteAtBeatTwo})
	bundle["Info.dat"] = []byte(testManifest(120, 0, "Standard", chartRef{rank: 1, filename: "Easy.dat"}))

	_, err := Load(bundle)
	assert.NoError(t, err)
}

func TestLoad_ManifestUnreadable(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		bundle := testBundle(t, "", nil)
		delete(bundle, "info.dat")

		_, err := Load(bundle)
		assert.ErrorIs(t, err, ErrManifestUnreadable)
	})

	t.Run("malformed", func(t *testing.T) {
		bundle := testBundle(t, `{"_songFilename": "song.egg"}`, nil)

		_, err := Load(bundle)
		assert.ErrorIs(t, err, ErrManifestUnreadable)
		assert.ErrorIs(t, err, parser.ErrManifestMalformed)
	})
}

func TestLoad_CoverImageUnreadable(t *testing.T) {
	manifest := testManifest(120, 0, "Standard")

	t.Run("absent", func(t *testing.T) {
		bundle := testBundle(t, manifest, nil)
		delete(bundle, "cover.png")

		_, err := Load(bundle)
		assert.ErrorIs(t, err, ErrCoverImageUnreadable)
	})

	t.Run("undecodable", func(t *testing.T) {
		bundle := testBundle(t, manifest, nil)
		bundle["cover.png"] = []byte("not a png")

		_, err := Load(bundle)
		var le *LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, CoverImageUnreadable, le.Kind)
		assert.Equal(t, "cover.png", le.File)
		assert.Error(t, le.Err)
	})

	t.Run("custom decoder", func(t *testing.T) {
		bundle := testBundle(t, manifest, nil)
		bundle["cover.png"] = []byte("anything")
		stub := imaging.DecoderFunc(func([]byte) (image.Image, error) {
			return image.NewGray(image.Rect(0, 0, 1, 1)), nil
		})

		b, err := Load(bundle, WithImageDecoder(stub))
		require.NoError(t, err)
		assert.Empty(t, b.Difficulties)
	})
}

func TestLoad_SongUnreadable(t *testing.T) {
	bundle := testBundle(t, testManifest(120, 0, "Standard"), nil)
	delete(bundle, "song.egg")

	_, err := Load(bundle)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, SongUnreadable, le.Kind)
	assert.Equal(t, "song.egg", le.File)
}

func TestLoad_UnknownCode(t *testing.T) {
	bundle := testBundle(t,
		testManifest(120, 0, "Standard", chartRef{rank: 7, filename: "Expert.dat"}),
		map[string]string{"Expert.dat": `{"_notes": [
			{"_time": 1, "_lineIndex": 0, "_lineLayer": 0, "_type": 0, "_cutDirection": 0},
			{"_time": 2, "_lineIndex": 0, "_lineLayer": 0, "_type": 2, "_cutDirection": 0}
		]}`},
	)

	_, err := Load(bundle)
	assert.ErrorIs(t, err, ErrChartUnreadable)
	code, ok := parser.AsUnknownCode(err)
	require.True(t, ok)
	assert.Equal(t, "_type", code.Field)
	assert.Equal(t, int64(2), code.Value)
	assert.Equal(t, 1, code.Index)

	b, err := Load(bundle, WithLenientCodes(true))
	require.NoError(t, err)
	require.Len(t, b.Difficulties, 1)
	assert.Len(t, b.Difficulties[0].Notes(), 1)
}

func TestLoad_ZeroTempo(t *testing.T) {
	bundle := testBundle(t,
		testManifest(0, 1000, "Standard", chartRef{rank: 1, filename: "Easy.dat"}),
		map[string]string{"Easy.dat": `{"_notes": [
			{"_time": 2, "_lineIndex": 1, "_lineLayer": 0, "_type": 0, "_cutDirection": 1},
			{"_time": 64, "_lineIndex": 2, "_lineLayer": 1, "_type": 1, "_cutDirection": 0}
		], "_obstacles": [
			{"_time": 8, "_lineIndex": 0, "_type": 0, "_duration": 4, "_width": 1},
			{"_time": 0.5, "_lineIndex": 3, "_type": 1, "_duration": 16, "_width": 1}
		]}`},
	)

	b, err := Load(bundle)
	require.NoError(t, err)
	d := b.Difficulties[0]

	require.Len(t, d.Notes(), 2)
	for _, n := range d.Notes() {
		assert.Equal(t, 1.0, n.Time)
	}
	require.Len(t, d.Obstacles(), 2)
	for _, o := range d.Obstacles() {
		assert.Equal(t, 1.0, o.Time)
		assert.Equal(t, 0.0, o.Duration)
	}

	s := d.Slice(1, 1)
	assert.Len(t, s.Notes, 2)
	assert.Equal(t, 2, s.Obstacles.Len())
}

func TestLoadPreview(t *testing.T) {
	// charts are not read for a preview, so they may be absent
	bundle := testBundle(t,
		testManifest(120, 0, "Standard",
			chartRef{rank: 9, filename: "ExpertPlus.dat"},
			chartRef{rank: 3, filename: "Normal.dat", label: "Chill"},
		),
		nil,
	)
	delete(bundle, "song.egg")

	p, summaries, err := LoadPreview(bundle)
	require.NoError(t, err)
	assert.Equal(t, "Test Song", p.SongName)
	assert.NotNil(t, p.CoverImage)
	assert.Equal(t, []core.DifficultySummary{
		{Name: "Chill", Tier: core.RankNormal, Filename: "Normal.dat"},
		{Name: "Expert+", Tier: core.RankExpertPlus, Filename: "ExpertPlus.dat"},
	}, summaries)
}

func TestLoadError_Message(t *testing.T) {
	err := &LoadError{Kind: ChartUnreadable, File: "Hard.dat", Err: errors.New("boom")}
	assert.Equal(t, `chart unreadable: "Hard.dat": boom`, err.Error())
	assert.Equal(t, "standard mode missing", (&LoadError{Kind: StandardModeMissing}).Error())
}
