package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beatmapar/loader/pkg/core"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `{
	"_version": "2.0.0",
	"_songName": "Test Song",
	"_songSubName": "Remix",
	"_songAuthorName": "Artist",
	"_levelAuthorName": "Mapper",
	"_beatsPerMinute": 120,
	"_songFilename": "song.egg",
	"_coverImageFilename": "cover.png",
	"_difficultyBeatmapSets": [{
		"_beatmapCharacteristicName": "Standard",
		"_difficultyBeatmaps": [
			{"_difficultyRank": 7, "_beatmapFilename": "Expert.dat"},
			{"_difficultyRank": 3, "_beatmapFilename": "Normal.dat"}
		]
	}]
}`

const (
	expertChart = `{"_notes": [
		{"_time": 2, "_lineIndex": 1, "_lineLayer": 0, "_type": 0, "_cutDirection": 1},
		{"_time": 8, "_lineIndex": 2, "_lineLayer": 1, "_type": 1, "_cutDirection": 8}
	], "_obstacles": [{"_time": 3, "_lineIndex": 0, "_type": 0, "_duration": 2, "_width": 1}]}`
	normalChart = `{"_notes": [], "_obstacles": []}`
)

func bundleFiles(t *testing.T) map[string][]byte {
	t.Helper()
	var cover bytes.Buffer
	require.NoError(t, png.Encode(&cover, image.NewRGBA(image.Rect(0, 0, 16, 8))))
	return map[string][]byte{
		"Info.dat":   []byte(testManifest),
		"song.egg":   []byte("OggS"),
		"cover.png":  cover.Bytes(),
		"Expert.dat": []byte(expertChart),
		"Normal.dat": []byte(normalChart),
	}
}

func writeBundleDir(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, data := range bundleFiles(t) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return dir
}

func writeBundleZip(t *testing.T, path string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range bundleFiles(t) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// testConfigDir writes a config keeping logs, exports and the catalog in a temp dir.
func testConfigDir(t *testing.T) string {
	t.Helper()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	cfg := fmt.Sprintf(`{
		"logLevel": "debug",
		"logsDir": %q,
		"library": {"workers": 1},
		"catalog": {"enabled": true, "driver": "sqlite", "path": %q},
		"export": {"outputDir": %q, "compressOutput": true}
	}`, filepath.Join(dir, "logs"), filepath.Join(dir, "catalog.db"), filepath.Join(dir, "exports"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "beatmap_loader.cfg.json"), []byte(cfg), 0644))
	return dir
}

func runCLI(t *testing.T, configDir string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-config", configDir}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_NoCommand(t *testing.T) {
	_, stderr, err := runCLI(t, testConfigDir(t))
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, stderr, "Usage:")
}

func TestRun_UnknownCommand(t *testing.T) {
	_, _, err := runCLI(t, testConfigDir(t), "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)
}

func TestRun_WritesLogFile(t *testing.T) {
	cfgDir := testConfigDir(t)
	bundle := writeBundleDir(t, filepath.Join(t.TempDir(), "bundle"))

	_, _, err := runCLI(t, cfgDir, "inspect", bundle)
	require.NoError(t, err)

	logs, err := filepath.Glob(filepath.Join(cfgDir, "logs", "beatmap.*.log"))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	data, err := os.ReadFile(logs[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Bundle loaded"`)
	assert.Contains(t, string(data), `"bundle":`)
}

func TestInspect(t *testing.T) {
	cfgDir := testConfigDir(t)
	bundle := writeBundleDir(t, filepath.Join(t.TempDir(), "bundle"))

	out, _, err := runCLI(t, cfgDir, "inspect", bundle)
	require.NoError(t, err)

	assert.Contains(t, out, "Song:    Test Song (Remix)")
	assert.Contains(t, out, "Artist:  Artist")
	assert.Contains(t, out, "BPM:     120")
	assert.Contains(t, out, "Cover:   16x8")
	assert.Contains(t, out, "Audio:   4 bytes")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, []string{"Expert", "Expert", "2", "0", "1", "0:04"}, strings.Fields(lines[len(lines)-1]))
	assert.Equal(t, []string{"Normal", "Normal", "0", "0", "0", "0:00"}, strings.Fields(lines[len(lines)-2]))
}

func TestInspect_Zip(t *testing.T) {
	cfgDir := testConfigDir(t)
	bundle := writeBundleZip(t, filepath.Join(t.TempDir(), "bundle.zip"))

	out, _, err := runCLI(t, cfgDir, "inspect", "-preview", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "Song:    Test Song (Remix)")
	assert.Contains(t, out, "Normal.dat")
	assert.Contains(t, out, "Expert.dat")
	assert.NotContains(t, out, "Audio:")
}

func TestInspect_Errors(t *testing.T) {
	cfgDir := testConfigDir(t)

	_, _, err := runCLI(t, cfgDir, "inspect", filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open bundle")

	_, _, err = runCLI(t, cfgDir, "inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gcs.bucket is not configured")

	broken := filepath.Join(t.TempDir(), "broken")
	writeBundleDir(t, broken)
	require.NoError(t, os.Remove(filepath.Join(broken, "Expert.dat")))
	_, _, err = runCLI(t, cfgDir, "inspect", broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `chart unreadable: "Expert.dat"`)
}

func TestSlice(t *testing.T) {
	cfgDir := testConfigDir(t)
	bundle := writeBundleDir(t, filepath.Join(t.TempDir(), "bundle"))

	out, _, err := runCLI(t, cfgDir, "slice", "-tier", "expert", "-from", "0", "-to", "2", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "# Expert, 1 notes, 1 obstacles")
	assert.Contains(t, out, "red(topToBottom)")
	assert.Contains(t, out, "bottom/left")
	assert.Contains(t, out, "vertical 1.000s w1")
	assert.NotContains(t, out, "blue(any)")

	// defaults to the highest tier and the whole song
	out, _, err = runCLI(t, cfgDir, "slice", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "# Expert, 2 notes, 1 obstacles")
	assert.Contains(t, out, "blue(any)")

	_, _, err = runCLI(t, cfgDir, "slice", "-tier", "Easy", bundle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Easy difficulty")

	_, _, err = runCLI(t, cfgDir, "slice", "-tier", "Legendary", bundle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown difficulty "Legendary"`)
}

func TestExport(t *testing.T) {
	cfgDir := testConfigDir(t)
	bundle := writeBundleDir(t, filepath.Join(t.TempDir(), "bundle"))

	out, _, err := runCLI(t, cfgDir, "export", bundle)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(cfgDir, "exports", "Test_Song_Mapper.json.gz"), path)
	assert.FileExists(t, path)

	outDir := t.TempDir()
	out, _, err = runCLI(t, cfgDir, "export", "-out", outDir, "-gzip=false", "-to", "2", bundle)
	require.NoError(t, err)
	path = strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(outDir, "Test_Song_Mapper.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"window":{"from":0,"to":2}`)
}

func TestLibraryAndList(t *testing.T) {
	cfgDir := testConfigDir(t)
	libDir := t.TempDir()
	writeBundleDir(t, filepath.Join(libDir, "a_unpacked"))
	writeBundleZip(t, filepath.Join(libDir, "b_song.zip"))
	require.NoError(t, os.WriteFile(filepath.Join(libDir, "c_broken.zip"), []byte("nope"), 0644))

	out, _, err := runCLI(t, cfgDir, "library", "-quiet", libDir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 loaded, 0 cached, 1 failed, 0 pruned")
	assert.Contains(t, out, "Normal, Expert")
	assert.Contains(t, out, "error: manifest unreadable")

	out, stderr, err := runCLI(t, cfgDir, "library", libDir)
	require.NoError(t, err)
	assert.Contains(t, out, "0 loaded, 2 cached, 1 failed, 0 pruned")
	assert.Contains(t, stderr, "Scanning library")

	out, _, err = runCLI(t, cfgDir, "list", "-author", "mapper")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Test Song"))
	assert.Contains(t, out, filepath.Join(libDir, "b_song.zip"))

	out, _, err = runCLI(t, cfgDir, "list", "-search", "nothing like it")
	require.NoError(t, err)
	assert.NotContains(t, out, "Test Song")
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want core.DifficultyRank
	}{
		{"Easy", core.RankEasy},
		{"normal", core.RankNormal},
		{"ExpertPlus", core.RankExpertPlus},
		{"Expert+", core.RankExpertPlus},
		{"5", core.RankHard},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTier(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseTier("4")
	assert.Error(t, err)
}

func TestLastEvent(t *testing.T) {
	d := core.NewDifficulty("Hard", core.RankHard,
		[]core.NoteEvent{{Time: 1}, {Time: 3}},
		[]core.ObstacleEvent{{Time: 2, Duration: 5}},
		nil)
	assert.Equal(t, 7.0, lastEvent(&d))

	empty := core.NewDifficulty("Easy", core.RankEasy, nil, nil, nil)
	assert.Equal(t, 0.0, lastEvent(&empty))
}

func TestExport_OpenEndedWindow(t *testing.T) {
	cfgDir := testConfigDir(t)
	bundle := writeBundleDir(t, filepath.Join(t.TempDir(), "bundle"))
	outDir := t.TempDir()

	out, _, err := runCLI(t, cfgDir, "export", "-out", outDir, "-gzip=false", "-from", "1", bundle)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(outDir, "Test_Song_Mapper.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"window":{"from":1}`)
}

func TestCloseBundle_LogsError(t *testing.T) {
	var logs bytes.Buffer
	a := &app{logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	a.closeBundle(context.Background(), func() error { return errors.New("zip already closed") })
	assert.Contains(t, logs.String(), "Failed to close bundle")
	assert.Contains(t, logs.String(), "zip already closed")

	logs.Reset()
	a.closeBundle(context.Background(), noClose)
	assert.Empty(t, logs.String())
}
