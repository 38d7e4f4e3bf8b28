package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Duet/internal/domain"
)

type Config struct {
	Log   Log   `mapstructure:"log" yaml:"log"`
	Relay Relay `mapstructure:"relay" yaml:"relay"`
	Call  Call  `mapstructure:"call" yaml:"call"`
}

type Log struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Console    bool   `mapstructure:"console" yaml:"console"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

type Relay struct {
	Mode        string        `mapstructure:"mode" yaml:"mode"`
	Port        int           `mapstructure:"port" yaml:"port"`
	SendQueue   int           `mapstructure:"send_queue" yaml:"send_queue"`
	KickSlow    bool          `mapstructure:"kick_slow" yaml:"kick_slow"`
	LoginLimit  int           `mapstructure:"login_limit" yaml:"login_limit"`
	LoginWindow time.Duration `mapstructure:"login_window" yaml:"login_window"`
	Pairs       [][]string    `mapstructure:"pairs" yaml:"pairs"`
}

type Call struct {
	Username  string     `mapstructure:"username" yaml:"username"`
	Partner   string     `mapstructure:"partner" yaml:"partner,omitempty"`
	SignalURL string     `mapstructure:"signal_url" yaml:"signal_url"`
	SendQueue int        `mapstructure:"send_queue" yaml:"send_queue"`
	Reconnect Reconnect  `mapstructure:"reconnect" yaml:"reconnect"`
	ICE       ICE        `mapstructure:"ice" yaml:"ice"`
	Quality   Quality    `mapstructure:"quality" yaml:"quality"`
	Audio     Audio      `mapstructure:"audio" yaml:"audio"`
	WakeLock  bool       `mapstructure:"wake_lock" yaml:"wake_lock"`
	Pairs     [][]string `mapstructure:"pairs" yaml:"pairs"`
}

type Reconnect struct {
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls" yaml:"urls"`
	Username   string   `mapstructure:"username" yaml:"username,omitempty"`
	Credential string   `mapstructure:"credential" yaml:"credential,omitempty"`
}

type ICE struct {
	Servers             []ICEServer   `mapstructure:"servers" yaml:"servers"`
	DisconnectedTimeout time.Duration `mapstructure:"disconnected_timeout" yaml:"disconnected_timeout"`
	FailedTimeout       time.Duration `mapstructure:"failed_timeout" yaml:"failed_timeout"`
	KeepaliveInterval   time.Duration `mapstructure:"keepalive_interval" yaml:"keepalive_interval"`
}

type Quality struct {
	Interval         time.Duration `mapstructure:"interval" yaml:"interval"`
	LowBandwidthKbps float64       `mapstructure:"low_bandwidth_kbps" yaml:"low_bandwidth_kbps"`
	LowBitrate       int           `mapstructure:"low_bitrate" yaml:"low_bitrate"`
	NormalBitrate    int           `mapstructure:"normal_bitrate" yaml:"normal_bitrate"`
}

type Audio struct {
	// Output receives remote audio on the default route: "discard" or an
	// ogg file path.
	Output string `mapstructure:"output" yaml:"output"`
	// SpeakerOutput receives remote audio while routed to the loudspeaker.
	SpeakerOutput string `mapstructure:"speaker_output" yaml:"speaker_output"`
	Capture       bool   `mapstructure:"capture" yaml:"capture"`
}

// flagKeys maps command-line flags onto config keys. Flags missing from a
// binary's flag set are skipped.
var flagKeys = map[string]string{
	"log-level":   "log.level",
	"log-file":    "log.file",
	"mode":        "relay.mode",
	"port":        "relay.port",
	"username":    "call.username",
	"partner":     "call.partner",
	"signal-url":  "call.signal_url",
	"output":      "call.audio.output",
	"no-capture":  "call.audio.no_capture",
	"no-wakelock": "call.no_wake_lock",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("relay.mode", "release")
	v.SetDefault("relay.port", 8080)
	v.SetDefault("relay.send_queue", 32)
	v.SetDefault("relay.kick_slow", false)
	v.SetDefault("relay.login_limit", 10)
	v.SetDefault("relay.login_window", "1m")
	v.SetDefault("relay.pairs", defaultPairs())

	v.SetDefault("call.username", "user1")
	v.SetDefault("call.signal_url", "ws://localhost:8080/ws")
	v.SetDefault("call.send_queue", 32)
	v.SetDefault("call.reconnect.max_retries", 10)
	v.SetDefault("call.reconnect.initial_interval", "500ms")
	v.SetDefault("call.reconnect.max_interval", "30s")
	v.SetDefault("call.ice.servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
	v.SetDefault("call.ice.disconnected_timeout", "5s")
	v.SetDefault("call.ice.failed_timeout", "25s")
	v.SetDefault("call.ice.keepalive_interval", "2s")
	v.SetDefault("call.quality.interval", "5s")
	v.SetDefault("call.quality.low_bandwidth_kbps", 500)
	v.SetDefault("call.quality.low_bitrate", 20000)
	v.SetDefault("call.quality.normal_bitrate", 64000)
	v.SetDefault("call.audio.output", "discard")
	v.SetDefault("call.audio.speaker_output", "speaker.ogg")
	v.SetDefault("call.audio.capture", true)
	v.SetDefault("call.wake_lock", true)
	v.SetDefault("call.pairs", defaultPairs())
}

func defaultPairs() [][]string {
	out := make([][]string, 0, len(domain.DefaultPairs))
	for _, p := range domain.DefaultPairs {
		out = append(out, []string{p[0], p[1]})
	}
	return out
}

// Load reads config/config.<CONFIG_ENV>.yaml, then applies flags from fs.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	setDefaults(v)

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// Negative switches read better on the command line.
	if v.GetBool("call.audio.no_capture") {
		cfg.Call.Audio.Capture = false
	}
	if v.GetBool("call.no_wake_lock") {
		cfg.Call.WakeLock = false
	}
	return &cfg, nil
}

// Pairing builds the partner convention from configured pairs.
func Pairing(pairs [][]string) (*domain.Pairing, error) {
	out := make([][2]string, 0, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("pair %v: want exactly two peer ids", p)
		}
		out = append(out, [2]string{p[0], p[1]})
	}
	return domain.NewPairing(out), nil
}

// Dump renders the effective configuration.
func Dump(cfg *Config) ([]byte, error) {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("dump config: %w", err)
	}
	return b, nil
}
