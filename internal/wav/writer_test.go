package wav

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

func stereo48k() models.WavFormat {
	return models.WavFormat{SampleRateHz: 48000, Channels: 2, BitDepth: 16, Codec: models.CodecPCMS16LE}
}

func TestCreate_WritesPlaceholderHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")

	w, err := Create(path, models.DefaultWavFormat, Options{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, HeaderSize)

	h, err := ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h.DataSize)
	assert.Equal(t, uint32(36), h.RiffSize)

	require.NoError(t, w.Finalize())
}

func TestEncodeHeader_ByteLayout(t *testing.T) {
	b := EncodeHeader(models.DefaultWavFormat, 3200)
	require.Len(t, b, HeaderSize)

	le := binary.LittleEndian
	assert.Equal(t, "RIFF", string(b[0:4]))
	assert.Equal(t, uint32(36+3200), le.Uint32(b[4:8]))
	assert.Equal(t, "WAVE", string(b[8:12]))
	assert.Equal(t, "fmt ", string(b[12:16]))
	assert.Equal(t, uint32(16), le.Uint32(b[16:20]))
	assert.Equal(t, uint16(1), le.Uint16(b[20:22]))
	assert.Equal(t, uint16(1), le.Uint16(b[22:24]))
	assert.Equal(t, uint32(16000), le.Uint32(b[24:28]))
	assert.Equal(t, uint32(32000), le.Uint32(b[28:32]))
	assert.Equal(t, uint16(2), le.Uint16(b[32:34]))
	assert.Equal(t, uint16(16), le.Uint16(b[34:36]))
	assert.Equal(t, "data", string(b[36:40]))
	assert.Equal(t, uint32(3200), le.Uint32(b[40:44]))
}

func TestWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	format := stereo48k()

	w, err := Create(path, format, Options{})
	require.NoError(t, err)

	var want []byte
	for i := 0; i < 10; i++ {
		chunk := bytes.Repeat([]byte{byte(i)}, 100+i*4)
		want = append(want, chunk...)
		w.Append(chunk)
	}
	require.NoError(t, w.Finalize())
	assert.Equal(t, int64(len(want)), w.BytesWritten())

	h, err := ReadFileHeader(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(want)), h.DataSize)
	assert.Equal(t, uint32(36+len(want)), h.RiffSize)
	assert.Equal(t, uint32(format.ByteRate()), h.ByteRate)
	assert.Equal(t, uint16(format.BlockAlign()), h.BlockAlign)
	assert.Equal(t, format, h.Format())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, data[HeaderSize:])
}

func TestWriter_ConcurrentAppendsKeepEveryByte(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.wav")
	w, err := Create(path, models.DefaultWavFormat, Options{})
	require.NoError(t, err)

	const workers, perWorker, size = 8, 50, 64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			chunk := bytes.Repeat([]byte{b}, size)
			for j := 0; j < perWorker; j++ {
				w.Append(chunk)
			}
		}(byte(i + 1))
	}
	wg.Wait()
	require.NoError(t, w.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	body := data[HeaderSize:]
	require.Len(t, body, workers*perWorker*size)

	// chunks never interleave: every size-aligned block is uniform
	for off := 0; off < len(body); off += size {
		block := body[off : off+size]
		assert.Equal(t, bytes.Repeat(block[:1], size), block, "block at %d", off)
	}
}

func TestWriter_AppendAfterFinalizeIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.wav")
	w, err := Create(path, models.DefaultWavFormat, Options{})
	require.NoError(t, err)

	w.Append([]byte{1, 2, 3, 4})
	require.NoError(t, w.Finalize())

	w.Append([]byte{5, 6})
	assert.Equal(t, int64(4), w.BytesWritten())
	assert.NoError(t, w.Finalize())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(HeaderSize+4), info.Size())
}

func TestWriter_DurationFollowsFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.wav")
	w, err := Create(path, models.DefaultWavFormat, Options{})
	require.NoError(t, err)

	w.Append(make([]byte, 32000))
	require.NoError(t, w.Finalize())

	h, err := ReadFileHeader(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), h.DurationMs())
}

func TestWriter_WriteFailureReportedOnce(t *testing.T) {
	var calls atomic.Int32
	failed := make(chan error, 4)
	w, err := Create(filepath.Join(t.TempDir(), "lost.wav"), models.DefaultWavFormat, Options{
		OnError: func(err error) {
			calls.Add(1)
			failed <- err
		},
	})
	require.NoError(t, err)

	w.Append(make([]byte, 64))
	require.Eventually(t, func() bool { return w.BytesWritten() == 64 }, 5*time.Second, time.Millisecond)

	// pull the file out from under the writer
	require.NoError(t, w.file.Close())
	w.Append(make([]byte, 64))
	w.Append(make([]byte, 64))

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrIO)
	case <-time.After(5 * time.Second):
		t.Fatal("write failure was not reported")
	}

	assert.ErrorIs(t, w.Finalize(), ErrIO)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(64), w.BytesWritten())
	assert.ErrorIs(t, w.Err(), ErrIO)

	w.Append(make([]byte, 64))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreate_RejectsInvalidFormat(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "bad.wav"), models.WavFormat{SampleRateHz: 16000, Channels: 1, BitDepth: 24, Codec: "pcm_s24le"}, Options{})
	assert.Error(t, err)
}

func TestCreate_UnwritablePath(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "x.wav"), models.DefaultWavFormat, Options{})
	assert.ErrorIs(t, err, ErrIO)
}

func TestReadHeader_RejectsGarbage(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader(bytes.Repeat([]byte("x"), HeaderSize)))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = ReadHeader(bytes.NewReader([]byte("RIFF")))
	assert.Error(t, err)
}
