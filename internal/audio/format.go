package audio

import "voicebubble/internal/ports"

const (
	DefaultSampleRate      = 44100
	DefaultChannels        = 1
	DefaultFramesPerBuffer = 1024
)

func withDefaults(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	return cfg
}
