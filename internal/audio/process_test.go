//go:build !windows

package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/wav"
)

func selfLocator() Locator {
	return Locator{Name: "fake", Override: os.Args[0]}
}

type recordedEvents struct {
	mu       sync.Mutex
	errs     []error
	progress []models.RecordingProgress
	levels   []models.RecordingLevel
	formats  []models.WavFormat
	first    chan struct{}
	once     sync.Once
}

func newRecordedEvents() *recordedEvents {
	return &recordedEvents{first: make(chan struct{})}
}

func (r *recordedEvents) events() Events {
	return Events{
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.once.Do(func() { close(r.first) })
		},
		OnProgress: func(p models.RecordingProgress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
			r.once.Do(func() { close(r.first) })
		},
		OnLevel: func(l models.RecordingLevel) {
			r.mu.Lock()
			r.levels = append(r.levels, l)
			r.mu.Unlock()
		},
		OnFormat: func(f models.WavFormat) {
			r.mu.Lock()
			r.formats = append(r.formats, f)
			r.mu.Unlock()
		},
	}
}

func (r *recordedEvents) waitFirst(t *testing.T) {
	t.Helper()
	select {
	case <-r.first:
	case <-time.After(10 * time.Second):
		t.Fatal("backend produced no events")
	}
}

func (r *recordedEvents) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newFakeHelper(t *testing.T, tracker *Tracker, grace time.Duration) *HelperAdapter {
	timing := fastTiming
	timing.StopGrace = grace
	return NewHelperAdapter(HelperConfig{
		ID:      "fake-helper",
		Label:   "Fake helper",
		Locator: selfLocator(),
		Format:  models.DefaultWavFormat,
		Timing:  timing,
	}, tracker, zaptest.NewLogger(t))
}

func newFakeStream(t *testing.T, tracker *Tracker, preset StreamPreset) *StreamAdapter {
	preset.ID = "fake-stream"
	preset.Label = "Fake stream"
	preset.Locator = selfLocator()
	preset.Args = func(StartOptions) []string { return nil }
	preset.Timing = fastTiming
	return NewStreamAdapter(preset, tracker, zaptest.NewLogger(t))
}

func TestHelperAdapter_StartStop(t *testing.T) {
	t.Setenv(fakeBackendEnv, "helper")
	tracker := NewTracker(nil)
	a := newFakeHelper(t, tracker, 2*time.Second)
	path := filepath.Join(t.TempDir(), "nested", "take.wav")
	rec := newRecordedEvents()

	require.NoError(t, a.Start(context.Background(), StartOptions{OutputPath: path, Format: models.DefaultWavFormat}, rec.events()))
	assert.Equal(t, 1, tracker.Len())
	assert.ErrorIs(t, a.Start(context.Background(), StartOptions{OutputPath: path, Format: models.DefaultWavFormat}, Events{}), ErrAlreadyRunning)
	rec.waitFirst(t)

	result, err := a.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, result.FilePath)
	require.NotNil(t, result.BytesWritten)
	assert.Equal(t, int64(3200), *result.BytesWritten)
	assert.Equal(t, int64(100), *result.DurationMs)
	assert.Empty(t, rec.errors())
	assert.Zero(t, tracker.Len())

	h, err := wav.ReadFileHeader(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3200), h.DataSize)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.levels)
	assert.InDelta(t, 0.25, rec.levels[0].RMS, 1e-9)
	require.NotEmpty(t, rec.formats)
	assert.Equal(t, models.DefaultWavFormat, rec.formats[0])
}

func TestHelperAdapter_CrashIsReportedOnce(t *testing.T) {
	t.Setenv(fakeBackendEnv, "helper-crash")
	a := newFakeHelper(t, NewTracker(nil), 2*time.Second)
	rec := newRecordedEvents()

	path := filepath.Join(t.TempDir(), "crash.wav")
	require.NoError(t, a.Start(context.Background(), StartOptions{OutputPath: path, Format: models.DefaultWavFormat}, rec.events()))
	rec.waitFirst(t)

	result, err := a.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, path, result.FilePath)

	errs := rec.errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "device lost")
}

func TestHelperAdapter_ExitWithoutStopIsUnexpected(t *testing.T) {
	t.Setenv(fakeBackendEnv, "helper-exit")
	a := newFakeHelper(t, NewTracker(nil), 2*time.Second)
	rec := newRecordedEvents()

	require.NoError(t, a.Start(context.Background(), StartOptions{
		OutputPath: filepath.Join(t.TempDir(), "exit.wav"),
		Format:     models.DefaultWavFormat,
	}, rec.events()))
	rec.waitFirst(t)

	errs := rec.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnexpectedExit)
	var ee *ExitError
	require.True(t, errors.As(errs[0], &ee))
	assert.Equal(t, 0, ee.Code)

	_, err := a.Stop(context.Background())
	assert.NoError(t, err)
}

func TestHelperAdapter_ForceKillAfterGrace(t *testing.T) {
	t.Setenv(fakeBackendEnv, "helper-stubborn")
	tracker := NewTracker(nil)
	a := newFakeHelper(t, tracker, 200*time.Millisecond)
	rec := newRecordedEvents()

	path := filepath.Join(t.TempDir(), "stubborn.wav")
	require.NoError(t, a.Start(context.Background(), StartOptions{OutputPath: path, Format: models.DefaultWavFormat}, rec.events()))
	rec.waitFirst(t)

	started := time.Now()
	result, err := a.Stop(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 10*time.Second)
	assert.Equal(t, int64(640), *result.BytesWritten)
	assert.Equal(t, int64(20), *result.DurationMs)
	assert.Empty(t, rec.errors())
	assert.Zero(t, tracker.Len())
}

func TestHelperAdapter_RejectsOtherFormats(t *testing.T) {
	a := newFakeHelper(t, NewTracker(nil), time.Second)
	err := a.Start(context.Background(), StartOptions{
		OutputPath: filepath.Join(t.TempDir(), "x.wav"),
		Format:     models.WavFormat{SampleRateHz: 48000, Channels: 2, BitDepth: 16, Codec: models.CodecPCMS16LE},
	}, Events{})
	assert.ErrorIs(t, err, ErrFormatRejected)
}

func TestStreamAdapter_WritesStdoutToWav(t *testing.T) {
	t.Setenv(fakeBackendEnv, "stream")
	tracker := NewTracker(nil)
	a := newFakeStream(t, tracker, StreamPreset{})
	rec := newRecordedEvents()

	path := filepath.Join(t.TempDir(), "stream.wav")
	require.NoError(t, a.Start(context.Background(), StartOptions{OutputPath: path, Format: models.DefaultWavFormat}, rec.events()))
	rec.waitFirst(t)

	result, err := a.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.BytesWritten)
	assert.Positive(t, *result.BytesWritten)
	assert.Equal(t, models.DefaultWavFormat.DurationMs(*result.BytesWritten), *result.DurationMs)
	assert.Zero(t, tracker.Len())

	h, err := wav.ReadFileHeader(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(*result.BytesWritten), h.DataSize)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.levels)
	assert.InDelta(t, 0.5, rec.levels[0].Peak, 1e-9)
}

func TestStreamAdapter_AcceptCodes(t *testing.T) {
	t.Setenv(fakeBackendEnv, "stream-255")

	strict := newFakeStream(t, NewTracker(nil), StreamPreset{})
	rec := newRecordedEvents()
	require.NoError(t, strict.Start(context.Background(), StartOptions{
		OutputPath: filepath.Join(t.TempDir(), "strict.wav"),
		Format:     models.DefaultWavFormat,
	}, rec.events()))
	rec.waitFirst(t)
	_, err := strict.Stop(context.Background())
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 255, ee.Code)

	lenient := newFakeStream(t, NewTracker(nil), StreamPreset{AcceptCodes: []int{255}})
	rec = newRecordedEvents()
	require.NoError(t, lenient.Start(context.Background(), StartOptions{
		OutputPath: filepath.Join(t.TempDir(), "lenient.wav"),
		Format:     models.DefaultWavFormat,
	}, rec.events()))
	rec.waitFirst(t)
	_, err = lenient.Stop(context.Background())
	assert.NoError(t, err)
}

func TestStreamAdapter_CrashKeepsCapturedAudio(t *testing.T) {
	t.Setenv(fakeBackendEnv, "stream-crash")
	a := newFakeStream(t, NewTracker(nil), StreamPreset{})
	rec := newRecordedEvents()

	path := filepath.Join(t.TempDir(), "crash.wav")
	require.NoError(t, a.Start(context.Background(), StartOptions{OutputPath: path, Format: models.DefaultWavFormat}, rec.events()))

	require.Eventually(t, func() bool { return len(rec.errors()) > 0 }, 10*time.Second, 10*time.Millisecond)
	var ee *ExitError
	require.ErrorAs(t, rec.errors()[0], &ee)
	assert.Equal(t, 1, ee.Code)
	assert.Contains(t, ee.Stderr, "device gone")

	result, err := a.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(320), *result.BytesWritten)

	h, err := wav.ReadFileHeader(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(320), h.DataSize)
	assert.Len(t, rec.errors(), 1)
}

func TestStreamAdapter_DecodesStderrErrors(t *testing.T) {
	t.Setenv(fakeBackendEnv, "stream-tee-error")
	a := newFakeStream(t, NewTracker(nil), StreamPreset{DecodeStderr: DecodeAudioTeeLine})
	var hooked []string
	a.setErrorHook(func(msg string) { hooked = append(hooked, msg) })
	rec := newRecordedEvents()

	require.NoError(t, a.Start(context.Background(), StartOptions{
		OutputPath: filepath.Join(t.TempDir(), "tee.wav"),
		Format:     models.DefaultWavFormat,
	}, rec.events()))
	rec.waitFirst(t)

	_, err := a.Stop(context.Background())
	require.NoError(t, err)

	errs := rec.errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "not authorized")
	assert.ErrorIs(t, errs[0], ErrBackendProcess)
	assert.Equal(t, []string{"not authorized"}, hooked)
}

func TestTracker_DrainKillsOrphanedBackend(t *testing.T) {
	t.Setenv(fakeBackendEnv, "stream")
	tracker := NewTracker(nil)
	a := newFakeStream(t, tracker, StreamPreset{})
	rec := newRecordedEvents()

	require.NoError(t, a.Start(context.Background(), StartOptions{
		OutputPath: filepath.Join(t.TempDir(), "orphan.wav"),
		Format:     models.DefaultWavFormat,
	}, rec.events()))
	rec.waitFirst(t)

	require.NoError(t, tracker.Drain(context.Background()))
	require.Eventually(t, func() bool { return tracker.Len() == 0 }, 10*time.Second, 10*time.Millisecond)

	_, err := a.Stop(context.Background())
	assert.NoError(t, err)
}
