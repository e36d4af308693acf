package audio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
)

const maxLineSize = 1 << 20

// MessageKind classifies a side-channel line
type MessageKind string

const (
	KindProgress MessageKind = "progress"
	KindLevel    MessageKind = "level"
	KindError    MessageKind = "error"
	KindFormat   MessageKind = "format"
	// KindLog covers informational lines that carry no telemetry
	KindLog MessageKind = "log"
)

// Message is one decoded side-channel line
type Message struct {
	Kind     MessageKind
	Progress models.RecordingProgress
	Level    models.RecordingLevel
	Format   models.WavFormat
	Text     string
}

// Decoder turns a raw line into a message; ok is false for lines to ignore
type Decoder func(line []byte) (msg Message, ok bool)

// ScanLines reads r line by line, decodes each line and hands it to handle.
// Blank, malformed and unknown lines are skipped. Returns when r is exhausted.
func ScanLines(r io.Reader, decode Decoder, handle func(Message)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if msg, ok := decode(line); ok {
			handle(msg)
		}
	}
	return sc.Err()
}

// drainLines is ScanLines for a live pipe: after a scan failure the rest of
// the stream is discarded so the backend never blocks on a full pipe
func drainLines(r io.Reader, decode Decoder, handle func(Message), logger *zap.Logger) error {
	if err := ScanLines(r, decode, handle); err != nil {
		logger.Warn("side channel unreadable, discarding", zap.Error(err))
		_, err = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

type helperLine struct {
	Type         string   `json:"type"`
	DurationMs   *float64 `json:"durationMs"`
	BytesWritten *float64 `json:"bytesWritten"`
	RMS          float64  `json:"rms"`
	Peak         float64  `json:"peak"`
	Clipped      bool     `json:"clipped"`
	Message      string   `json:"message"`
	SampleRateHz int      `json:"sampleRateHz"`
	Channels     int      `json:"channels"`
	BitDepth     int      `json:"bitDepth"`
	Codec        string   `json:"codec"`
}

// DecodeHelperLine decodes the {"type": ...} lines a native helper prints on stdout
func DecodeHelperLine(line []byte) (Message, bool) {
	var h helperLine
	if err := json.Unmarshal(line, &h); err != nil {
		return Message{}, false
	}

	switch MessageKind(h.Type) {
	case KindProgress:
		var p models.RecordingProgress
		if h.DurationMs != nil {
			p.DurationMs = int64(*h.DurationMs)
		}
		if h.BytesWritten != nil {
			p.BytesWritten = int64(*h.BytesWritten)
		}
		return Message{Kind: KindProgress, Progress: p}, true
	case KindLevel:
		return Message{Kind: KindLevel, Level: models.RecordingLevel{RMS: h.RMS, Peak: h.Peak, Clipped: h.Clipped}}, true
	case KindError:
		msg := h.Message
		if msg == "" {
			msg = "helper reported an error"
		}
		return Message{Kind: KindError, Text: msg}, true
	case KindFormat:
		return Message{Kind: KindFormat, Format: models.WavFormat{
			SampleRateHz: h.SampleRateHz,
			Channels:     h.Channels,
			BitDepth:     h.BitDepth,
			Codec:        h.Codec,
		}}, true
	default:
		return Message{}, false
	}
}

type audioTeeLine struct {
	MessageType string `json:"message_type"`
	Data        struct {
		Message string `json:"message"`
	} `json:"data"`
}

// DecodeAudioTeeLine decodes the {"message_type": ..., "data": {...}} log lines
// audiotee prints on stderr. Errors are telemetry; info and debug are logs.
func DecodeAudioTeeLine(line []byte) (Message, bool) {
	var a audioTeeLine
	if err := json.Unmarshal(line, &a); err != nil {
		return Message{}, false
	}

	switch a.MessageType {
	case "error":
		msg := a.Data.Message
		if msg == "" {
			msg = "AudioTee error."
		}
		return Message{Kind: KindError, Text: msg}, true
	case "info", "debug", "metadata", "stream_start", "stream_stop":
		return Message{Kind: KindLog, Text: a.Data.Message}, true
	default:
		return Message{}, false
	}
}

// DecodeNothing ignores every line; used for backends whose stderr is only kept as a tail
func DecodeNothing([]byte) (Message, bool) {
	return Message{}, false
}

// tail keeps the end of a backend's stderr for crash diagnostics
type tail struct {
	mu  sync.Mutex
	buf strings.Builder
}

const (
	tailLimit = 8000
	tailKeep  = 4000
)

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if t.buf.Len() > tailLimit {
		s := t.buf.String()
		t.buf.Reset()
		t.buf.WriteString(s[len(s)-tailKeep:])
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
