package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadMissingFile 配置文件缺失时以默认配置启动，不报错
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no_such_config.json"))

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 60, cfg.CheckInterval)
	assert.Equal(t, 8501, cfg.StreamlitPort)
	assert.True(t, cfg.SystemChecks.CPU)
}

// TestLoadInvalidJSON 配置解析失败时降级为默认配置，同时把错误交给调用方记录
func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cfg, err := Load(path)

	require.Error(t, err)
	require.NotNil(t, cfg, "坏配置不能让服务崩溃")
	assert.Equal(t, 60, cfg.CheckInterval)
	assert.Equal(t, float64(90), cfg.Thresholds.CPUCritical)
}

// TestSaveLoadRoundTrip 保存再加载后关键字段保持一致
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health_check_config.json")

	cfg := Default()
	cfg.CheckInterval = 30
	cfg.StreamlitURL = "http://10.0.0.5"
	cfg.StreamlitPort = 9000
	cfg.SystemChecks.Disk = false
	cfg.Thresholds.MemoryCritical = 95
	cfg.Dependencies.APIEndpoints = []APIEndpoint{
		{Name: "auth", URL: "http://auth.internal/ping", Timeout: 3},
	}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, loaded.CheckInterval)
	assert.Equal(t, "http://10.0.0.5", loaded.StreamlitURL)
	assert.Equal(t, 9000, loaded.StreamlitPort)
	assert.False(t, loaded.SystemChecks.Disk)
	assert.True(t, loaded.SystemChecks.CPU)
	assert.Equal(t, float64(95), loaded.Thresholds.MemoryCritical)
	require.Len(t, loaded.Dependencies.APIEndpoints, 1)
	assert.Equal(t, "auth", loaded.Dependencies.APIEndpoints[0].Name)
	assert.Equal(t, 3, loaded.Dependencies.APIEndpoints[0].Timeout)
}

// TestSaveMissingDir 目录不存在的保存失败可被 errors.Is 识别
func TestSaveMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no_such_dir", "config.json")

	err := Save(path, Default())
	require.ErrorIs(t, err, ErrConfigNotFound)
}

// TestLoadEnvOverride 环境变量以 HEALTHCHECK_ 前缀覆盖文件配置
func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	t.Setenv("HEALTHCHECK_CHECK_INTERVAL", "15")
	t.Setenv("HEALTHCHECK_STREAMLIT_PORT", "8600")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.CheckInterval)
	assert.Equal(t, 8600, cfg.StreamlitPort)
}

// TestInterval 非法周期回退为 60 秒
func TestInterval(t *testing.T) {
	assert.Equal(t, 60*time.Second, (&Config{CheckInterval: 0}).Interval())
	assert.Equal(t, 60*time.Second, (&Config{CheckInterval: -5}).Interval())
	assert.Equal(t, 10*time.Second, (&Config{CheckInterval: 10}).Interval())
}
