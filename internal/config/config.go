package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	Auth     AuthConfig     `mapstructure:"auth"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	WebRTC   WebRTCConfig   `mapstructure:"webrtc"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type ChatConfig struct {
	MaxLength     int           `mapstructure:"max_length"`
	BannedWords   []string      `mapstructure:"banned_words"`
	Replacement   string        `mapstructure:"replacement"`
	RejectOnMatch bool          `mapstructure:"reject_on_match"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateInterval  time.Duration `mapstructure:"rate_interval"`
}

type SessionsConfig struct {
	JoinEarly time.Duration `mapstructure:"join_early"`
}

type WebRTCConfig struct {
	ICEServers []string `mapstructure:"ice_servers"`
	UDPPortMin uint16   `mapstructure:"udp_port_min"`
	UDPPortMax uint16   `mapstructure:"udp_port_max"`
}

// ReplacementRune returns the single character used to redact banned words.
func (c ChatConfig) ReplacementRune() (rune, error) {
	r := []rune(c.Replacement)
	if len(r) != 1 {
		return 0, fmt.Errorf("chat.replacement must be a single character, got %q", c.Replacement)
	}
	return r[0], nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "live")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("chat.max_length", 1000)
	v.SetDefault("chat.banned_words", []string{})
	v.SetDefault("chat.replacement", "*")
	v.SetDefault("chat.reject_on_match", false)
	v.SetDefault("chat.rate_limit", 5)
	v.SetDefault("chat.rate_interval", "3s")

	v.SetDefault("sessions.join_early", "10m")

	v.SetDefault("webrtc.ice_servers", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault("webrtc.udp_port_min", 0)
	v.SetDefault("webrtc.udp_port_max", 0)
}

// New returns a viper instance with defaults and LIVE_* environment overrides, without reading a file.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("live")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func Load() (*Config, error) {
	v := New()

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return Decode(v)
}

func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required (LIVE_AUTH_JWT_SECRET)")
	}
	if cfg.PingPeriod >= cfg.PongWait {
		return nil, fmt.Errorf("ping_period (%s) must be shorter than pong_wait (%s)", cfg.PingPeriod, cfg.PongWait)
	}
	if cfg.WebRTC.UDPPortMax < cfg.WebRTC.UDPPortMin {
		return nil, fmt.Errorf("webrtc.udp_port_max (%d) is below udp_port_min (%d)", cfg.WebRTC.UDPPortMax, cfg.WebRTC.UDPPortMin)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}
