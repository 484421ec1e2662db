package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"livecast/native/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultSTUNURL = "stun:stun.l.google.com:19302"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("wsurl", validateWebSocketURL)
	return v
}

// validateWebSocketURL accepts ws:// and wss:// URLs with a host.
func validateWebSocketURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return (u.Scheme == "ws" || u.Scheme == "wss") && u.Host != ""
}

// Config holds the client configuration.
type Config struct {
	SignalURL          string        `yaml:"signal_url" validate:"required,wsurl"`
	ICE                ICEConfig     `yaml:"ice"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout" validate:"gte=0"`
	PingInterval       time.Duration `yaml:"ping_interval" validate:"gte=0"`
	MetricsAddr        string        `yaml:"metrics_addr"`
	Media              MediaConfig   `yaml:"media"`
	Log                LogConfig     `yaml:"log"`
}

// ICEConfig is one STUN server plus one authenticated TURN server. When
// ConfigURL is set the TURN entry may instead come from the backend.
type ICEConfig struct {
	STUNURL      string `yaml:"stun_url" validate:"required,startswith=stun:|startswith=stuns:"`
	TURNURL      string `yaml:"turn_url" validate:"required_without=ConfigURL,omitempty,startswith=turn:|startswith=turns:"`
	TURNUsername string `yaml:"turn_username" validate:"required_with=TURNURL"`
	TURNPassword string `yaml:"turn_password" validate:"required_with=TURNURL"`
	ConfigURL    string `yaml:"config_url" validate:"omitempty,url"`
	Token        string `yaml:"token"`
}

// MediaConfig names the files the broadcaster plays as camera and microphone.
type MediaConfig struct {
	VideoSource string `yaml:"video_source"`
	AudioSource string `yaml:"audio_source"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
}

// ICEServers returns the statically configured STUN and TURN servers.
func (c ICEConfig) ICEServers() []domain.ICEServer {
	servers := []domain.ICEServer{{URLs: []string{c.STUNURL}}}
	if c.TURNURL != "" {
		servers = append(servers, domain.ICEServer{
			URLs:       []string{c.TURNURL},
			Username:   c.TURNUsername,
			Credential: c.TURNPassword,
		})
	}
	return servers
}

// Load reads configuration from a .env file (if present), an optional YAML
// file named by LIVECAST_CONFIG, and environment variables, in increasing
// order of precedence.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	cfg := &Config{
		ICE:                ICEConfig{STUNURL: defaultSTUNURL},
		NegotiationTimeout: 30 * time.Second,
		PingInterval:       20 * time.Second,
		Log:                LogConfig{Level: "info"},
	}

	if path := os.Getenv("LIVECAST_CONFIG"); path != "" {
		if err := readYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) error {
	setString(&cfg.SignalURL, "LIVECAST_SIGNAL_URL")
	setString(&cfg.ICE.STUNURL, "LIVECAST_STUN_URL")
	setString(&cfg.ICE.TURNURL, "LIVECAST_TURN_URL")
	setString(&cfg.ICE.TURNUsername, "LIVECAST_TURN_USERNAME")
	setString(&cfg.ICE.TURNPassword, "LIVECAST_TURN_PASSWORD")
	setString(&cfg.ICE.ConfigURL, "LIVECAST_ICE_CONFIG_URL")
	setString(&cfg.ICE.Token, "LIVECAST_TOKEN")
	setString(&cfg.MetricsAddr, "LIVECAST_METRICS_ADDR")
	setString(&cfg.Media.VideoSource, "LIVECAST_VIDEO_SOURCE")
	setString(&cfg.Media.AudioSource, "LIVECAST_AUDIO_SOURCE")
	setString(&cfg.Log.Level, "LIVECAST_LOG_LEVEL")

	if err := setDuration(&cfg.NegotiationTimeout, "LIVECAST_NEGOTIATION_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&cfg.PingInterval, "LIVECAST_PING_INTERVAL")
}

// RelayConfig holds the relay server configuration.
type RelayConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	Path            string        `yaml:"path" validate:"required,startswith=/"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	Log             LogConfig     `yaml:"log"`
}

// LoadRelay reads the relay configuration the same way Load does, from
// RELAY_CONFIG and RELAY_* variables.
func LoadRelay() (*RelayConfig, error) {
	_ = godotenv.Load()

	cfg := &RelayConfig{
		Address:         ":8090",
		Path:            "/ws",
		ShutdownTimeout: 15 * time.Second,
		Log:             LogConfig{Level: "info"},
	}

	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		if err := readYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	setString(&cfg.Address, "RELAY_ADDRESS")
	setString(&cfg.Path, "RELAY_PATH")
	setString(&cfg.Log.Level, "RELAY_LOG_LEVEL")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid relay configuration: %w", err)
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
