package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()

	// What to record
	v.SetDefault("record.video", false)
	v.SetDefault("record.audio", true)
	v.SetDefault("record.timecode", false)

	v.SetDefault("video.codec", "h264")
	v.SetDefault("video.bitrate", 0)
	v.SetDefault("video.preset", "1080p29.97")

	v.SetDefault("audio.codec", "lpcm")
	v.SetDefault("audio.bitrate", 0)
	v.SetDefault("audio.mode", "auto")

	// Output defaults to the platform movies directory
	v.SetDefault("output.dir", xdg.UserDirs.Videos)
	v.SetDefault("output.prefix", "capture-")
	v.SetDefault("output.format", "mp4")
	v.SetDefault("output.path", "")

	v.SetDefault("timescale", 0)
	v.SetDefault("writer.queue_depth", 0)
	v.SetDefault("writer.part_duration", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")

	// Environment variables, RECORDER_AUDIO_CODEC for audio.codec
	v.SetEnvPrefix("recorder")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("log.level", "RECORDER_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("metrics.addr", "RECORDER_METRICS_ADDR", "METRICS_ADDR")
	v.BindEnv("output.dir", "RECORDER_OUTPUT_DIR", "RECORDER_HOME")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		"$HOME/.recorder",
		"/etc/recorder",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
	}
}

// Recorder is the typed recording configuration.
type Recorder struct {
	RecordVideo    bool
	RecordAudio    bool
	RecordTimecode bool

	VideoCodec   string
	VideoBitrate int
	VideoPreset  string

	AudioCodec   string
	AudioBitrate int
	AudioMode    string

	OutputDir    string
	OutputPrefix string
	OutputFormat string
	OutputPath   string

	Timescale    uint32
	QueueDepth   int
	PartDuration time.Duration

	LogLevel    string
	MetricsAddr string
}

// Load returns the current configuration.
func Load() Recorder {
	return Recorder{
		RecordVideo:    v.GetBool("record.video"),
		RecordAudio:    v.GetBool("record.audio"),
		RecordTimecode: v.GetBool("record.timecode"),
		VideoCodec:     v.GetString("video.codec"),
		VideoBitrate:   v.GetInt("video.bitrate"),
		VideoPreset:    v.GetString("video.preset"),
		AudioCodec:     v.GetString("audio.codec"),
		AudioBitrate:   v.GetInt("audio.bitrate"),
		AudioMode:      v.GetString("audio.mode"),
		OutputDir:      v.GetString("output.dir"),
		OutputPrefix:   v.GetString("output.prefix"),
		OutputFormat:   v.GetString("output.format"),
		OutputPath:     v.GetString("output.path"),
		Timescale:      v.GetUint32("timescale"),
		QueueDepth:     v.GetInt("writer.queue_depth"),
		PartDuration:   v.GetDuration("writer.part_duration"),
		LogLevel:       GetLogLevel(),
		MetricsAddr:    GetMetricsAddr(),
	}
}

// GetLogLevel returns the configured slog level name
func GetLogLevel() string {
	return v.GetString("log.level")
}

// GetMetricsAddr returns the listen address of the metrics endpoint, empty
// when disabled
func GetMetricsAddr() string {
	return v.GetString("metrics.addr")
}

// GetOutputDir returns the directory auto-named recordings go to
func GetOutputDir() string {
	return v.GetString("output.dir")
}

// ConfigFile returns the config file in use, if any
func ConfigFile() string {
	return v.ConfigFileUsed()
}
