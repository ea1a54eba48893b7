package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ICEServer is a STUN/TURN server entry used when building peer transports.
type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// AppConfig carries everything the call engine needs to reach its
// collaborators: the signaling relay, the appointment and identity services,
// and the ICE servers handed to every peer transport.
type AppConfig struct {
	RelayURL        string `mapstructure:"relay_url"`
	AppointmentHost string `mapstructure:"appointment_host"`
	IdentityHost    string `mapstructure:"identity_host"`

	ICEServers         []ICEServer `mapstructure:"ice_servers"`
	ICETransportPolicy string      `mapstructure:"ice_transport_policy"` // "all" or "relay"

	LogPath  string `mapstructure:"log_path"`
	LogLevel string `mapstructure:"log_level"`
}

// GetAppConfig loads configuration from an optional config file and the
// MEDORA_* environment, with workable defaults for local development.
func GetAppConfig() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("medora")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("relay_url", "ws://localhost:4000/signal")
	v.SetDefault("appointment_host", "http://localhost:4000")
	v.SetDefault("identity_host", "http://localhost:4000")
	v.SetDefault("ice_transport_policy", "all")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env and defaults cover every field.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = DefaultICEServers()
	}
	return &cfg, nil
}

// DefaultICEServers returns the public STUN servers used when no ICE servers
// are configured.
func DefaultICEServers() []ICEServer {
	return []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
	}
}
