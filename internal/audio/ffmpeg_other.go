//go:build !linux && !darwin && !windows

package audio

func ffmpegDefaults() (inputFormat, device string) {
	return "pulse", "default"
}
