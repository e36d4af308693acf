package audio

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/kartoza/kartoza-audio-capture/internal/models"
	"github.com/kartoza/kartoza-audio-capture/internal/wav"
)

// fakeBackendEnv makes the test binary act as a capture backend when re-executed
const fakeBackendEnv = "AUDIO_FAKE_BACKEND"

var fastTiming = Timing{
	StopGrace:        2 * time.Second,
	LevelInterval:    time.Millisecond,
	ProgressInterval: time.Millisecond,
}

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeBackendEnv); mode != "" {
		os.Exit(runFakeBackend(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func runFakeBackend(mode string, args []string) int {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	switch mode {
	case "helper":
		return fakeHelper(args, stop)
	case "helper-crash":
		emit(map[string]any{"type": "error", "message": "device lost"})
		return 3
	case "helper-exit":
		return 0
	case "helper-stubborn":
		signal.Ignore(syscall.SIGINT, syscall.SIGTERM)
		path := argValue(args, "--output")
		_ = os.WriteFile(path, append(wav.EncodeHeader(models.DefaultWavFormat, 640), make([]byte, 640)...), 0644)
		emit(map[string]any{"type": "progress", "durationMs": 20, "bytesWritten": 640})
		time.Sleep(time.Minute)
		return 0
	case "stream", "stream-255":
		code := 0
		if mode == "stream-255" {
			code = 255
		}
		return fakeStream(stop, code)
	case "stream-crash":
		_, _ = os.Stdout.Write(pcmChunk(160, 1000))
		fmt.Fprintln(os.Stderr, "fatal: device gone")
		return 1
	case "stream-tee-error":
		line, _ := json.Marshal(map[string]any{"message_type": "error", "data": map[string]string{"message": "not authorized"}})
		fmt.Fprintln(os.Stderr, string(line))
		return 1
	}
	fmt.Fprintln(os.Stderr, "unknown fake backend mode", mode)
	return 2
}

// fakeHelper writes the file itself and reports on stdout like the native helper
func fakeHelper(args []string, stop <-chan os.Signal) int {
	path := argValue(args, "--output")
	w, err := wav.Create(path, models.DefaultWavFormat, wav.Options{})
	if err != nil {
		emit(map[string]any{"type": "error", "message": err.Error()})
		return 1
	}
	w.Append(pcmChunk(1600, 8000))

	emit(map[string]any{"type": "format", "sampleRateHz": 16000, "channels": 1, "bitDepth": 16, "codec": "pcm_s16le"})
	emit(map[string]any{"type": "level", "rms": 0.25, "peak": 0.5, "clipped": false})
	emit(map[string]any{"type": "progress", "durationMs": 100, "bytesWritten": 3200})

	<-stop
	if err := w.Finalize(); err != nil {
		return 1
	}
	return 0
}

func fakeStream(stop <-chan os.Signal, code int) int {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return code
		case <-ticker.C:
			if _, err := os.Stdout.Write(pcmChunk(160, 16384)); err != nil {
				return 1
			}
		}
	}
}

func emit(v map[string]any) {
	line, _ := json.Marshal(v)
	fmt.Fprintln(os.Stdout, string(line))
}

func argValue(args []string, name string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == name {
			return args[i+1]
		}
	}
	return ""
}

// pcmChunk returns n mono samples of constant value v
func pcmChunk(n int, v int16) []byte {
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}
