//go:build darwin

package audio

// ffmpegDefaults records the first avfoundation audio device with no video input
func ffmpegDefaults() (inputFormat, device string) {
	return "avfoundation", ":0"
}
