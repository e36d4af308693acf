package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/wav"
)

func TestInspectFile_Finalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	w, err := wav.Create(path, models.DefaultWavFormat, wav.Options{})
	require.NoError(t, err)
	w.Append(make([]byte, 32000))
	require.NoError(t, w.Finalize())

	info, err := inspectFile(path)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultWavFormat, info.Format)
	assert.Equal(t, int64(32000), info.DataBytes)
	assert.Equal(t, int64(1000), info.DurationMs)
	assert.True(t, info.Finalized)
}

func TestInspectFile_NotFinalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crash.wav")
	data := append(wav.EncodeHeader(models.DefaultWavFormat, 0), make([]byte, 640)...)
	require.NoError(t, os.WriteFile(path, data, 0644))

	info, err := inspectFile(path)
	require.NoError(t, err)
	assert.False(t, info.Finalized)
	assert.Equal(t, int64(0), info.DurationMs)
}

func TestInspectFile_NotWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0644))

	_, err := inspectFile(path)
	assert.ErrorIs(t, err, wav.ErrInvalidHeader)
}

func TestLevelBar_Width(t *testing.T) {
	for _, peak := range []float64{-1, 0, 0.5, 1, 2} {
		bar := levelBar(models.RecordingLevel{Peak: peak}, 10)
		cells := strings.Count(bar, "█") + strings.Count(bar, "░")
		assert.Equal(t, 10, cells, "peak %v", peak)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"record", "devices", "deps", "inspect", "permissions", "config", "version"}
	for _, name := range want {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}
