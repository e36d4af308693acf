package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

// HeaderSize is the length of the canonical PCM WAV header
const HeaderSize = 44

const maxDataSize = 0xFFFFFFFF - 36

// ErrInvalidHeader is returned when a file does not start with a canonical PCM header
var ErrInvalidHeader = errors.New("invalid wav header")

// Header mirrors the 44-byte canonical PCM header, field for field
type Header struct {
	RiffID        [4]byte
	RiffSize      uint32
	WaveID        [4]byte
	FmtID         [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataID        [4]byte
	DataSize      uint32
}

// NewHeader builds the header for format with dataSize bytes of audio
func NewHeader(format models.WavFormat, dataSize int64) Header {
	size := clampDataSize(dataSize)
	return Header{
		RiffID:        [4]byte{'R', 'I', 'F', 'F'},
		RiffSize:      36 + size,
		WaveID:        [4]byte{'W', 'A', 'V', 'E'},
		FmtID:         [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRateHz),
		ByteRate:      uint32(format.ByteRate()),
		BlockAlign:    uint16(format.BlockAlign()),
		BitsPerSample: uint16(format.BitDepth),
		DataID:        [4]byte{'d', 'a', 't', 'a'},
		DataSize:      size,
	}
}

// EncodeHeader returns the little-endian header bytes
func EncodeHeader(format models.WavFormat, dataSize int64) []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	h := NewHeader(format, dataSize)
	// writes into a bytes.Buffer cannot fail
	_ = binary.Write(&buf, binary.LittleEndian, &h)
	return buf.Bytes()
}

// ReadHeader decodes and validates a canonical header from r
func ReadHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("failed to read wav header: %w", err)
	}
	if string(h.RiffID[:]) != "RIFF" || string(h.WaveID[:]) != "WAVE" {
		return h, fmt.Errorf("%w: missing RIFF/WAVE markers", ErrInvalidHeader)
	}
	if string(h.FmtID[:]) != "fmt " || h.FmtSize != 16 {
		return h, fmt.Errorf("%w: unexpected fmt chunk", ErrInvalidHeader)
	}
	if string(h.DataID[:]) != "data" {
		return h, fmt.Errorf("%w: data chunk not at offset 36", ErrInvalidHeader)
	}
	return h, nil
}

// ReadFileHeader opens path and decodes its header
func ReadFileHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	return ReadHeader(f)
}

// Format returns the PCM format described by the header
func (h Header) Format() models.WavFormat {
	return models.WavFormat{
		SampleRateHz: int(h.SampleRate),
		Channels:     int(h.NumChannels),
		BitDepth:     int(h.BitsPerSample),
		Codec:        models.CodecPCMS16LE,
	}
}

// DurationMs returns the audio length the header declares
func (h Header) DurationMs() int64 {
	if h.ByteRate == 0 {
		return 0
	}
	return int64(h.DataSize) * 1000 / int64(h.ByteRate)
}

func clampDataSize(n int64) uint32 {
	if n < 0 {
		return 0
	}
	if n > maxDataSize {
		return maxDataSize
	}
	return uint32(n)
}
