//go:build windows

package audio

// ffmpegDefaults records the DirectShow microphone. Run
// `kartoza-audio-capture devices --adapter ffmpeg` to find other names.
func ffmpegDefaults() (inputFormat, device string) {
	return "dshow", "audio=Microphone"
}
