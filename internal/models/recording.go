package models

import "time"

// RecordingState represents the current state of the recording session manager
type RecordingState string

const (
	StateIdle      RecordingState = "idle"
	StateStarting  RecordingState = "starting"
	StateRecording RecordingState = "recording"
	StateStopping  RecordingState = "stopping"
	StateError     RecordingState = "error"
)

// IsActive reports whether a session is being set up, captured or torn down.
func (s RecordingState) IsActive() bool {
	return s == StateStarting || s == StateRecording || s == StateStopping
}

// RecordingSession identifies one capture attempt
type RecordingSession struct {
	SessionID string    `json:"session_id"`
	FilePath  string    `json:"file_path"`
	Format    WavFormat `json:"format"`
	StartedAt time.Time `json:"started_at"`
}

// Elapsed returns the time since the session started.
func (s RecordingSession) Elapsed(now time.Time) time.Duration {
	if now.Before(s.StartedAt) {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// RecordingResult is produced once per session, on stop or on error cleanup
type RecordingResult struct {
	FilePath     string    `json:"file_path"`
	Format       WavFormat `json:"format"`
	DurationMs   *int64    `json:"duration_ms,omitempty"`
	BytesWritten *int64    `json:"bytes_written,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
}

// Duration returns the recorded duration, or zero when unknown.
func (r RecordingResult) Duration() time.Duration {
	if r.DurationMs == nil {
		return 0
	}
	return time.Duration(*r.DurationMs) * time.Millisecond
}

// Int64 returns a pointer to v. Used for the optional result fields.
func Int64(v int64) *int64 {
	return &v
}

