package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 保存配置时可区分的失败类型，调用方通过 errors.Is 分支处理。
var (
	ErrConfigNotFound   = errors.New("config path not found")
	ErrConfigPermission = errors.New("config path permission denied")
	ErrConfigEncode     = errors.New("config encode failed")
)

// SystemChecks 系统资源检查开关
type SystemChecks struct {
	CPU    bool `mapstructure:"cpu" json:"cpu"`
	Memory bool `mapstructure:"memory" json:"memory"`
	Disk   bool `mapstructure:"disk" json:"disk"`
}

// APIEndpoint 外部 API 依赖探测配置
type APIEndpoint struct {
	Name    string `mapstructure:"name" json:"name"`
	URL     string `mapstructure:"url" json:"url"`
	Timeout int    `mapstructure:"timeout" json:"timeout"` // 秒
}

// DatabaseDep 数据库依赖配置（检查未实现，保留占位）
type DatabaseDep struct {
	Name             string `mapstructure:"name" json:"name"`
	Type             string `mapstructure:"type" json:"type"`
	ConnectionString string `mapstructure:"connection_string" json:"connection_string"`
}

// Dependencies 依赖列表
type Dependencies struct {
	APIEndpoints []APIEndpoint `mapstructure:"api_endpoints" json:"api_endpoints"`
	Databases    []DatabaseDep `mapstructure:"databases" json:"databases"`
}

// Thresholds 系统检查阈值（usage ≥ critical → critical；≥ warning → warning）。
// 约定 critical ≥ warning，加载时不强制校验。
type Thresholds struct {
	CPUWarning     float64 `mapstructure:"cpu_warning" json:"cpu_warning"`
	CPUCritical    float64 `mapstructure:"cpu_critical" json:"cpu_critical"`
	MemoryWarning  float64 `mapstructure:"memory_warning" json:"memory_warning"`
	MemoryCritical float64 `mapstructure:"memory_critical" json:"memory_critical"`
	DiskWarning    float64 `mapstructure:"disk_warning" json:"disk_warning"`
	DiskCritical   float64 `mapstructure:"disk_critical" json:"disk_critical"`
}

// HTTPConfig 查询服务 HTTP 配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr" json:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" json:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age" json:"max_age"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level" json:"level"`
	Format string           `mapstructure:"format" json:"format"`
	File   LumberjackConfig `mapstructure:"file" json:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable" json:"enable"`
	Path   string `mapstructure:"path" json:"path"`
}

// RateLimitConfig 查询接口限流配置
type RateLimitConfig struct {
	Enable     bool `mapstructure:"enable" json:"enable"`
	RatePerSec int  `mapstructure:"rate_per_sec" json:"rate_per_sec"`
	Burst      int  `mapstructure:"burst" json:"burst"`
}

// ErrorStoreConfig 页面错误库配置。Path 为空时使用每用户数据目录下的默认库。
type ErrorStoreConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// Config 顶层配置结构。check_interval/streamlit_* 等键与持久化 JSON 架构一致。
type Config struct {
	CheckInterval int          `mapstructure:"check_interval" json:"check_interval"` // 秒
	StreamlitURL  string       `mapstructure:"streamlit_url" json:"streamlit_url"`
	StreamlitPort int          `mapstructure:"streamlit_port" json:"streamlit_port"`
	SystemChecks  SystemChecks `mapstructure:"system_checks" json:"system_checks"`
	Dependencies  Dependencies `mapstructure:"dependencies" json:"dependencies"`
	Thresholds    Thresholds   `mapstructure:"thresholds" json:"thresholds"`

	HTTP       HTTPConfig       `mapstructure:"http" json:"http"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" json:"metrics"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" json:"rate_limit"`
	ErrorStore ErrorStoreConfig `mapstructure:"error_store" json:"error_store"`
}

// Interval 检查周期
func (c *Config) Interval() time.Duration {
	if c.CheckInterval <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CheckInterval) * time.Second
}

// Load 从 JSON 配置文件与环境变量加载配置。
// 文件缺失时使用默认配置；文件解析失败时同样降级为默认配置，
// 并把解析错误一并返回给调用方记录——服务不能因坏配置而崩溃。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("health_check_config")
		v.SetConfigType("json")
	}

	setDefaults(v)

	// 环境变量覆盖：前缀 HEALTHCHECK_，点号替换为下划线
	v.SetEnvPrefix("HEALTHCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			// 首次运行允许缺少配置文件
			return Default(), nil
		}
		return Default(), fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Save 将配置序列化为 JSON 写入 path，失败类型可由调用方区分。
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigEncode, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		switch {
		case os.IsNotExist(err):
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		case os.IsPermission(err):
			return fmt.Errorf("%w: %s", ErrConfigPermission, path)
		default:
			return fmt.Errorf("write config: %w", err)
		}
	}
	return nil
}

// Default 返回默认配置：60 秒周期、本机 8501 端口、全部系统检查开启、
// 一个示例 API 依赖、70/90 阈值。
func Default() *Config {
	return &Config{
		CheckInterval: 60,
		StreamlitURL:  "http://localhost",
		StreamlitPort: 8501,
		SystemChecks:  SystemChecks{CPU: true, Memory: true, Disk: true},
		Dependencies: Dependencies{
			APIEndpoints: []APIEndpoint{
				{Name: "example_api", URL: "https://httpbin.org/get", Timeout: 5},
			},
			Databases: []DatabaseDep{
				{Name: "main_db", Type: "postgres", ConnectionString: "..."},
			},
		},
		Thresholds: Thresholds{
			CPUWarning: 70, CPUCritical: 90,
			MemoryWarning: 70, MemoryCritical: 90,
			DiskWarning: 70, DiskCritical: 90,
		},
		HTTP: HTTPConfig{
			Addr:         ":8000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LumberjackConfig{
				Filename:   "logs/healthcheck.log",
				MaxSizeMB:  100,
				MaxBackups: 7,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
		Metrics:   MetricsConfig{Enable: true, Path: "/metrics"},
		RateLimit: RateLimitConfig{Enable: true, RatePerSec: 50, Burst: 100},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("check_interval", 60)
	v.SetDefault("streamlit_url", "http://localhost")
	v.SetDefault("streamlit_port", 8501)

	v.SetDefault("system_checks.cpu", true)
	v.SetDefault("system_checks.memory", true)
	v.SetDefault("system_checks.disk", true)

	v.SetDefault("thresholds.cpu_warning", 70)
	v.SetDefault("thresholds.cpu_critical", 90)
	v.SetDefault("thresholds.memory_warning", 70)
	v.SetDefault("thresholds.memory_critical", 90)
	v.SetDefault("thresholds.disk_warning", 70)
	v.SetDefault("thresholds.disk_critical", 90)

	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/healthcheck.log")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 7)
	v.SetDefault("logging.file.max_age", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.enable", true)
	v.SetDefault("rate_limit.rate_per_sec", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("error_store.path", "")
}
