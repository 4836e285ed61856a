package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	apperrors "github.com/wfunc/button-monitor/internal/errors"
)

// Config 全局配置结构体
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Serial SerialConfig `mapstructure:"serial"`
	Button ButtonConfig `mapstructure:"button"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig HTTP服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"` // 0 表示不限制，长轮询需要
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SerialConfig 串口配置
type SerialConfig struct {
	Port         string        `mapstructure:"port"` // 设备路径，"auto" 表示自动检测
	BaudRate     int           `mapstructure:"baud_rate"`
	DataBits     int           `mapstructure:"data_bits"`
	StopBits     int           `mapstructure:"stop_bits"`
	Parity       string        `mapstructure:"parity"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	LineBuffer   int           `mapstructure:"line_buffer"`
	PollInterval time.Duration `mapstructure:"poll_interval"` // 读取出错后的重试间隔
	MockMode     bool          `mapstructure:"mock_mode"`     // 使用模拟设备
	MockInterval time.Duration `mapstructure:"mock_interval"` // 模拟设备按键间隔，0 表示不自动按键
}

// ButtonConfig 按键检测配置
type ButtonConfig struct {
	Sentinel    string        `mapstructure:"sentinel"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	mu sync.RWMutex
	v  *viper.Viper
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "BUTTON_MONITOR"

// Load 读取配置。configPath 为空时在 ./config 与当前目录查找 config.yaml，
// 找不到配置文件时使用默认值。flags 中已设置的命令行参数优先级最高。
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	nv := viper.New()

	if configPath != "" {
		nv.SetConfigFile(configPath)
	} else {
		nv.SetConfigName("config")
		nv.SetConfigType("yaml")
		nv.AddConfigPath("./config")
		nv.AddConfigPath(".")
	}

	nv.SetEnvPrefix(EnvPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	SetDefaults(nv)

	if flags != nil {
		if err := bindFlags(nv, flags); err != nil {
			return nil, err
		}
	}

	if err := nv.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, apperrors.Wrap(err, apperrors.ErrConfigLoad, "read config")
		}
	}

	loaded := &Config{}
	if err := nv.Unmarshal(loaded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigLoad, "unmarshal config")
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	v = nv
	mu.Unlock()

	return loaded, nil
}

// flagKeys 命令行参数与配置项的对应关系
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"device":       "serial.port",
	"baud":         "serial.baud_rate",
	"mock":         "serial.mock_mode",
	"sentinel":     "button.sentinel",
	"wait-timeout": "button.wait_timeout",
	"log-level":    "log.level",
}

func bindFlags(nv *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := nv.BindPFlag(key, f); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrConfigLoad, "bind flag %s", name)
		}
	}
	return nil
}

// SetDefaults 设置默认配置值
func SetDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 串口默认配置
	v.SetDefault("serial.port", "/dev/ttyACM0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.read_timeout", "1s")
	v.SetDefault("serial.line_buffer", 64)
	v.SetDefault("serial.poll_interval", "100ms")
	v.SetDefault("serial.mock_mode", false)
	v.SetDefault("serial.mock_interval", "0s")

	// 按键默认配置
	v.SetDefault("button.sentinel", "BUTTON_PRESSED")
	v.SetDefault("button.wait_timeout", "30s")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "button-monitor.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return apperrors.Newf(apperrors.ErrConfigValidate, "invalid server.port %d", c.Server.Port)
	case c.Server.Mode != "debug" && c.Server.Mode != "release" && c.Server.Mode != "test":
		return apperrors.Newf(apperrors.ErrConfigValidate, "invalid server.mode %q", c.Server.Mode)
	case c.Serial.BaudRate <= 0:
		return apperrors.Newf(apperrors.ErrConfigValidate, "invalid serial.baud_rate %d", c.Serial.BaudRate)
	case c.Serial.LineBuffer <= 0:
		return apperrors.Newf(apperrors.ErrConfigValidate, "invalid serial.line_buffer %d", c.Serial.LineBuffer)
	case c.Button.Sentinel == "":
		return apperrors.Newf(apperrors.ErrConfigValidate, "button.sentinel must not be empty")
	case c.Button.WaitTimeout <= 0:
		return apperrors.Newf(apperrors.ErrConfigValidate, "invalid button.wait_timeout %s", c.Button.WaitTimeout)
	case c.Serial.PollInterval <= 0:
		return apperrors.Newf(apperrors.ErrConfigValidate, "invalid serial.poll_interval %s", c.Serial.PollInterval)
	}
	return nil
}

// Default 返回仅包含默认值的配置
func Default() *Config {
	nv := viper.New()
	SetDefaults(nv)
	c := &Config{}
	// 默认值都是合法类型，不会解析失败
	_ = nv.Unmarshal(c)
	return c
}

// ConfigFile 返回实际使用的配置文件路径，未使用配置文件时为空
func ConfigFile() string {
	mu.RLock()
	defer mu.RUnlock()
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// Watch 监听配置文件变化。只有在加载了配置文件时才生效。
func Watch(callback func(*Config)) {
	mu.RLock()
	nv := v
	mu.RUnlock()
	if nv == nil || nv.ConfigFileUsed() == "" {
		return
	}

	nv.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := nv.Unmarshal(newCfg); err != nil {
			fmt.Printf("config reload failed: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("config reload rejected (%s): %v\n", e.Name, err)
			return
		}

		if callback != nil {
			callback(newCfg)
		}
	})
	nv.WatchConfig()
}
