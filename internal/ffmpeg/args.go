package ffmpeg

import "fmt"

// MuxSpec describes a video+audio merge into one container file.
type MuxSpec struct {
	VideoPath string
	AudioPath string
	OutPath   string
}

// AudioSpec describes an audio-only re-encode to mp3.
type AudioSpec struct {
	InputPath string
	OutPath   string
}

// BuildMuxArgs builds the merge invocation: video stream-copied, audio
// re-encoded to aac, container chosen by the output extension.
func BuildMuxArgs(spec MuxSpec) ([]string, error) {
	if spec.VideoPath == "" || spec.AudioPath == "" || spec.OutPath == "" {
		return nil, fmt.Errorf("mux spec incomplete: %+v", spec)
	}
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", spec.VideoPath,
		"-i", spec.AudioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		spec.OutPath,
	}, nil
}

// BuildAudioArgs builds the audio-only transcode invocation.
func BuildAudioArgs(spec AudioSpec) ([]string, error) {
	if spec.InputPath == "" || spec.OutPath == "" {
		return nil, fmt.Errorf("audio spec incomplete: %+v", spec)
	}
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", spec.InputPath,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		spec.OutPath,
	}, nil
}
