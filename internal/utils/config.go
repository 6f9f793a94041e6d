package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/pkg/file"
	"github.com/benmeehan/shipment-tracker/pkg/location"
	"github.com/go-ini/ini"
	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Config represents the structure of the configuration file.
type Config struct {
	Tracker struct {
		Interval                time.Duration     `yaml:"interval" validate:"gt=0"`      // Delay between polling cycles
		FetchTimeout            time.Duration     `yaml:"fetch_timeout" validate:"gt=0"` // Upper bound for a single location request
		Endpoint                string            `yaml:"endpoint" validate:"required,url"`
		RestartOnSameCredential *bool             `yaml:"restart_on_same_credential"` // Restart the tracker when the active credential is sent again
		Credential              models.Credential `yaml:"credential"`                 // Optional credential to start with
		CredentialFile          string            `yaml:"credential_file"`            // Optional INI file with token/barcode
	} `yaml:"tracker"`

	Server struct {
		WebsocketAddr string        `yaml:"websocket_addr" validate:"required"`
		StaticAddr    string        `yaml:"static_addr" validate:"required"`
		StaticDir     string        `yaml:"static_dir" validate:"required"`
		WriteTimeout  time.Duration `yaml:"write_timeout" validate:"gt=0"` // Deadline for a single frame write
	} `yaml:"server"`

	Broadcast struct {
		Workers int `yaml:"workers" validate:"min=1"` // Concurrent deliveries per broadcast
	} `yaml:"broadcast"`

	Console struct {
		Enabled    bool   `yaml:"enabled"`
		MapsAPIKey string `yaml:"maps_api_key"` // Google maps API key for reverse geocoding
	} `yaml:"console"`

	MQTT struct {
		Enabled        bool          `yaml:"enabled"`
		Broker         string        `yaml:"broker" validate:"required_if=Enabled true"`
		ClientID       string        `yaml:"client_id"`
		CACertificate  string        `yaml:"ca_certificate"`
		LocationTopic  string        `yaml:"location_topic"`
		StatusTopic    string        `yaml:"status_topic"`
		QOS            int           `yaml:"qos" validate:"min=0,max=2"`
		StatusInterval time.Duration `yaml:"status_interval" validate:"gt=0"`
	} `yaml:"mqtt"`

	Log struct {
		Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// EnvOverrides are read from the environment and take precedence over the file.
type EnvOverrides struct {
	Token      string `env:"TRACKER_TOKEN"`
	Barcode    string `env:"TRACKER_BARCODE"`
	LogLevel   string `env:"TRACKER_LOG_LEVEL"`
	WsAddr     string `env:"TRACKER_WS_ADDR"`
	StaticAddr string `env:"TRACKER_STATIC_ADDR"`
}

// LoadConfig loads the YAML configuration from the specified file, fills in
// defaults, applies environment overrides and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	return LoadConfigWith(context.Background(), filename, fileClient, envconfig.OsLookuper())
}

// LoadConfigWith is LoadConfig with an explicit environment source.
func LoadConfigWith(ctx context.Context, filename string, fileClient file.FileOperations, lookuper envconfig.Lookuper) (*Config, error) {
	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}
	config.applyDefaults()

	var env EnvOverrides
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	config.applyEnv(env)

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Tracker.Interval == 0 {
		c.Tracker.Interval = 30 * time.Second
	}
	if c.Tracker.FetchTimeout == 0 {
		c.Tracker.FetchTimeout = 10 * time.Second
	}
	if c.Tracker.Endpoint == "" {
		c.Tracker.Endpoint = location.DefaultEndpoint
	}
	if c.Tracker.RestartOnSameCredential == nil {
		restart := true
		c.Tracker.RestartOnSameCredential = &restart
	}
	if c.Server.WebsocketAddr == "" {
		c.Server.WebsocketAddr = ":8765"
	}
	if c.Server.StaticAddr == "" {
		c.Server.StaticAddr = ":8000"
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "map_server"
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Second
	}
	if c.Broadcast.Workers == 0 {
		c.Broadcast.Workers = 8
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "shipment-tracker"
	}
	if c.MQTT.LocationTopic == "" {
		c.MQTT.LocationTopic = "shipment/location"
	}
	if c.MQTT.StatusTopic == "" {
		c.MQTT.StatusTopic = "shipment/status"
	}
	if c.MQTT.StatusInterval == 0 {
		c.MQTT.StatusInterval = 60 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv(env EnvOverrides) {
	if env.Token != "" {
		c.Tracker.Credential.Token = env.Token
	}
	if env.Barcode != "" {
		c.Tracker.Credential.Barcode = env.Barcode
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.WsAddr != "" {
		c.Server.WebsocketAddr = env.WsAddr
	}
	if env.StaticAddr != "" {
		c.Server.StaticAddr = env.StaticAddr
	}
}

// StartupCredential resolves the credential the supervisor starts with.
// Fields already set (environment or YAML) win over the credential file.
// The result may be incomplete, in which case the supervisor starts idle.
func (c *Config) StartupCredential(fileClient file.FileOperations) (models.Credential, error) {
	credential := c.Tracker.Credential
	if credential.Complete() || c.Tracker.CredentialFile == "" {
		return credential, nil
	}

	exists, err := fileClient.IsFileExists(c.Tracker.CredentialFile)
	if err != nil {
		return credential, fmt.Errorf("failed to check credential file %s: %w", c.Tracker.CredentialFile, err)
	}
	if !exists {
		return credential, fmt.Errorf("credential file %s does not exist", c.Tracker.CredentialFile)
	}

	fromFile, err := LoadCredentialFile(c.Tracker.CredentialFile)
	if err != nil {
		return credential, err
	}
	if credential.Token == "" {
		credential.Token = fromFile.Token
	}
	if credential.Barcode == "" {
		credential.Barcode = fromFile.Barcode
	}
	return credential, nil
}

// LoadCredentialFile reads token and barcode from the DEFAULT section of an
// INI file.
func LoadCredentialFile(path string) (models.Credential, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return models.Credential{}, fmt.Errorf("failed to load credential file %s: %w", path, err)
	}
	section := cfg.Section(ini.DefaultSection)
	return models.Credential{
		Token:   section.Key("token").String(),
		Barcode: section.Key("barcode").String(),
	}, nil
}
