//go:build linux

package audio

// ffmpegDefaults records the PulseAudio default source
func ffmpegDefaults() (inputFormat, device string) {
	return "pulse", "default"
}
