package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	RecognizerDeepgram = "deepgram"
	RecognizerGoogle   = "google"
	RecognizerScripted = "scripted"

	CaptureNative = "native"
	CaptureFFMPEG = "ffmpeg"
	CaptureFake   = "fake"
)

// Config stores runtime configuration.
type Config struct {
	Env        string
	Locale     string
	Recognizer string
	Deepgram   DeepgramConfig
	Google     GoogleConfig
	Scripted   ScriptedConfig
	Audio      AudioConfig
	Storage    StorageConfig
	Session    SessionConfig
	Gesture    GestureConfig
	Permission PermissionConfig
}

type DeepgramConfig struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

type GoogleConfig struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

type ScriptedConfig struct {
	Results []string
}

type AudioConfig struct {
	Capture         string
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

type StorageConfig struct {
	RecordingsDir string
	LogDir        string
}

type SessionConfig struct {
	CommitGrace time.Duration
}

type GestureConfig struct {
	LongPress time.Duration
}

type PermissionConfig struct {
	AllowRecognition bool
	AllowMicrophone  bool
	RecheckDenied    bool
}

type envConfig struct {
	Env        string `env:"VOICEBUBBLE_ENV" envDefault:"production"`
	Locale     string `env:"VOICEBUBBLE_LOCALE" envDefault:"zh-CN"`
	Recognizer string `env:"VOICEBUBBLE_RECOGNIZER" envDefault:"deepgram"`

	DeepgramAPIKey      string `env:"DEEPGRAM_API_KEY"`
	DeepgramAPIBase     string `env:"DEEPGRAM_API_BASE" envDefault:"https://api.deepgram.com/v1"`
	DeepgramModel       string `env:"DEEPGRAM_MODEL" envDefault:"nova-2"`
	DeepgramSmartFormat bool   `env:"DEEPGRAM_SMART_FORMAT" envDefault:"true"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"long"`

	ScriptedResults []string `env:"VOICEBUBBLE_SCRIPTED_RESULTS" envSeparator:"," envDefault:"你,你好,你好世界"`

	Capture          string `env:"VOICEBUBBLE_CAPTURE" envDefault:"native"`
	FFMPEGCommand    string `env:"VOICEBUBBLE_FFMPEG_COMMAND" envDefault:"ffmpeg"`
	AudioInputFormat string `env:"VOICEBUBBLE_AUDIO_INPUT_FORMAT" envDefault:"pulse"`
	AudioInputDevice string `env:"VOICEBUBBLE_AUDIO_INPUT_DEVICE" envDefault:"default"`
	SampleRate       int    `env:"VOICEBUBBLE_SAMPLE_RATE" envDefault:"44100"`
	Channels         int    `env:"VOICEBUBBLE_CHANNELS" envDefault:"1"`
	FramesPerBuffer  int    `env:"VOICEBUBBLE_FRAMES_PER_BUFFER" envDefault:"1024"`

	StorageDir string `env:"VOICEBUBBLE_STORAGE_DIR"`
	LogDir     string `env:"VOICEBUBBLE_LOG_DIR"`

	CommitGraceMS int `env:"SESSION_COMMIT_GRACE_MS" envDefault:"0"`
	LongPressMS   int `env:"GESTURE_LONG_PRESS_MS" envDefault:"500"`

	AllowRecognition bool `env:"PERMISSION_ALLOW_RECOGNITION" envDefault:"true"`
	AllowMicrophone  bool `env:"PERMISSION_ALLOW_MICROPHONE" envDefault:"true"`
	RecheckDenied    bool `env:"PERMISSION_RECHECK_DENIED" envDefault:"false"`
}

// Load resolves configuration from the environment, seeded from a .env file
// (VOICEBUBBLE_ENV_FILE, default ./.env) when one exists. Variables already
// set win over the file.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("environment variables are invalid: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Config{
		Env:        strings.ToLower(strings.TrimSpace(raw.Env)),
		Locale:     strings.TrimSpace(raw.Locale),
		Recognizer: strings.ToLower(strings.TrimSpace(raw.Recognizer)),
		Deepgram: DeepgramConfig{
			APIKey:      strings.TrimSpace(raw.DeepgramAPIKey),
			APIBaseURL:  strings.TrimSpace(raw.DeepgramAPIBase),
			Model:       strings.TrimSpace(raw.DeepgramModel),
			SmartFormat: raw.DeepgramSmartFormat,
		},
		Google: GoogleConfig{
			ProjectID:       strings.TrimSpace(raw.GoogleCloudProjectID),
			CredentialsJSON: raw.GoogleCloudCredentialsJSON,
			Location:        strings.TrimSpace(raw.GoogleCloudSpeechLocation),
			Model:           strings.TrimSpace(raw.GoogleCloudSpeechModel),
		},
		Scripted: ScriptedConfig{Results: trimAll(raw.ScriptedResults)},
		Audio: AudioConfig{
			Capture:         strings.ToLower(strings.TrimSpace(raw.Capture)),
			RecorderCommand: strings.TrimSpace(raw.FFMPEGCommand),
			InputFormat:     strings.TrimSpace(raw.AudioInputFormat),
			InputDevice:     strings.TrimSpace(raw.AudioInputDevice),
			SampleRate:      raw.SampleRate,
			Channels:        raw.Channels,
			FramesPerBuffer: raw.FramesPerBuffer,
		},
		Storage: StorageConfig{
			RecordingsDir: firstNonEmpty(raw.StorageDir, filepath.Join(home, ".local", "share", "voicebubble", "recordings")),
			LogDir:        firstNonEmpty(raw.LogDir, filepath.Join(home, ".local", "state", "voicebubble")),
		},
		Session: SessionConfig{
			CommitGrace: time.Duration(raw.CommitGraceMS) * time.Millisecond,
		},
		Gesture: GestureConfig{
			LongPress: time.Duration(raw.LongPressMS) * time.Millisecond,
		},
		Permission: PermissionConfig{
			AllowRecognition: raw.AllowRecognition,
			AllowMicrophone:  raw.AllowMicrophone,
			RecheckDenied:    raw.RecheckDenied,
		},
	}

	if cfg.Locale == "" {
		cfg.Locale = "zh-CN"
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 44100
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		cfg.Audio.FramesPerBuffer = 1024
	}
	if cfg.Audio.RecorderCommand == "" {
		cfg.Audio.RecorderCommand = "ffmpeg"
	}
	if cfg.Session.CommitGrace < 0 {
		cfg.Session.CommitGrace = 0
	}
	if cfg.Gesture.LongPress <= 0 {
		cfg.Gesture.LongPress = 500 * time.Millisecond
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	switch c.Recognizer {
	case RecognizerDeepgram, RecognizerGoogle, RecognizerScripted:
	default:
		return fmt.Errorf("VOICEBUBBLE_RECOGNIZER must be one of deepgram, google, scripted; got %q", c.Recognizer)
	}
	switch c.Audio.Capture {
	case CaptureNative, CaptureFFMPEG, CaptureFake:
	default:
		return fmt.Errorf("VOICEBUBBLE_CAPTURE must be native, ffmpeg or fake; got %q", c.Audio.Capture)
	}
	if c.Audio.Channels > 2 {
		return fmt.Errorf("VOICEBUBBLE_CHANNELS must be 1 or 2; got %d", c.Audio.Channels)
	}
	return nil
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func loadDotEnv() error {
	path := firstNonEmpty(os.Getenv("VOICEBUBBLE_ENV_FILE"), ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
