package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.False(t, cfg.RecordVideo)
	assert.True(t, cfg.RecordAudio)
	assert.False(t, cfg.RecordTimecode)
	assert.Equal(t, "h264", cfg.VideoCodec)
	assert.Equal(t, "1080p29.97", cfg.VideoPreset)
	assert.Equal(t, "lpcm", cfg.AudioCodec)
	assert.Equal(t, "auto", cfg.AudioMode)
	assert.Equal(t, "capture-", cfg.OutputPrefix)
	assert.Equal(t, "mp4", cfg.OutputFormat)
	assert.Empty(t, cfg.OutputPath)
	assert.Equal(t, time.Second, cfg.PartDuration)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RECORDER_AUDIO_CODEC", "aac")
	t.Setenv("RECORDER_AUDIO_MODE", "wide")
	t.Setenv("RECORDER_RECORD_VIDEO", "true")
	t.Setenv("RECORDER_WRITER_PART_DURATION", "250ms")
	t.Setenv("RECORDER_TIMESCALE", "90000")
	t.Setenv("METRICS_ADDR", ":9464")

	cfg := Load()
	assert.Equal(t, "aac", cfg.AudioCodec)
	assert.Equal(t, "wide", cfg.AudioMode)
	assert.True(t, cfg.RecordVideo)
	assert.Equal(t, 250*time.Millisecond, cfg.PartDuration)
	assert.Equal(t, uint32(90000), cfg.Timescale)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
	assert.Equal(t, ":9464", GetMetricsAddr())
}

func TestOutputDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RECORDER_OUTPUT_DIR", dir)
	assert.Equal(t, dir, GetOutputDir())
}
