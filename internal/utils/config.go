package utils

import (
	"fmt"

	"github.com/esp32-home/iot-gateway/internal/constants"
	"github.com/esp32-home/iot-gateway/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		Username      string `yaml:"username"`       // Broker username (optional)
		Password      string `yaml:"password"`       // Broker password (optional)
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate (optional)
		QOS           int    `yaml:"qos"`            // MQTT QoS level for all gateway traffic
	} `yaml:"mqtt"`

	Database struct {
		Driver string `yaml:"driver"` // "postgres" | "mysql" | "" (no persistence)
		DSN    string `yaml:"dsn"`    // Driver-specific DSN
	} `yaml:"database"`

	Gateway struct {
		TopicPrefix  string   `yaml:"topic_prefix"`   // Topic namespace shared with the devices
		Devices      []string `yaml:"devices"`        // Managed device identifiers, resync order
		SensorNodeID string   `yaml:"sensor_node_id"` // Device id attributed to per-metric telemetry topics
	} `yaml:"gateway"`

	Liveness struct {
		Timeout      Duration `yaml:"timeout"`       // Silence duration after which the link is considered down
		TickInterval Duration `yaml:"tick_interval"` // Periodic sweep interval
		Evidence     string   `yaml:"evidence"`      // "heartbeat" (strict) or "any"
	} `yaml:"liveness"`

	Commands struct {
		AckTimeout Duration `yaml:"ack_timeout"` // Window to wait for a device acknowledgement
		Coalesce   *bool    `yaml:"coalesce"`    // Supersede an in-flight command instead of rejecting; defaults to true
	} `yaml:"commands"`

	Telemetry struct {
		MinSaveInterval  Duration `yaml:"min_save_interval"` // Floor between persisted readings
		TemperatureDelta float64  `yaml:"temperature_delta"` // Change admitting an early save
		HumidityDelta    float64  `yaml:"humidity_delta"`
		LightDelta       float64  `yaml:"light_delta"`
	} `yaml:"telemetry"`

	Resync struct {
		PacingDelay Duration `yaml:"pacing_delay"` // Delay between per-device resync publishes
	} `yaml:"resync"`

	HTTP struct {
		Enabled    bool   `yaml:"enabled"`     // Enable/disable the HTTP adapter
		ListenAddr string `yaml:"listen_addr"` // Bind address for the HTTP adapter
	} `yaml:"http"`
}

// LoadConfig loads the YAML configuration from the specified file and
// fills in defaults for unset values.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	if len(config.Gateway.Devices) == 0 {
		return nil, fmt.Errorf("configuration lists no managed devices")
	}
	if len(SliceToSet(config.Gateway.Devices)) != len(config.Gateway.Devices) {
		return nil, fmt.Errorf("configuration lists duplicate device identifiers")
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Gateway.TopicPrefix == "" {
		config.Gateway.TopicPrefix = constants.DefaultTopicPrefix
	}
	if config.Gateway.SensorNodeID == "" {
		config.Gateway.SensorNodeID = config.Gateway.TopicPrefix
	}
	if config.Liveness.Timeout == 0 {
		config.Liveness.Timeout = Duration(constants.DefaultLivenessTimeout)
	}
	if config.Liveness.TickInterval == 0 {
		config.Liveness.TickInterval = Duration(constants.DefaultLivenessTick)
	}
	if config.Liveness.Evidence == "" {
		config.Liveness.Evidence = constants.EvidenceHeartbeat
	}
	if config.Commands.AckTimeout == 0 {
		config.Commands.AckTimeout = Duration(constants.DefaultAckTimeout)
	}
	if config.Commands.Coalesce == nil {
		coalesce := true
		config.Commands.Coalesce = &coalesce
	}
	if config.Telemetry.MinSaveInterval == 0 {
		config.Telemetry.MinSaveInterval = Duration(constants.DefaultMinSaveInterval)
	}
	if config.Telemetry.TemperatureDelta == 0 {
		config.Telemetry.TemperatureDelta = constants.DefaultTemperatureDelta
	}
	if config.Telemetry.HumidityDelta == 0 {
		config.Telemetry.HumidityDelta = constants.DefaultHumidityDelta
	}
	if config.Telemetry.LightDelta == 0 {
		config.Telemetry.LightDelta = constants.DefaultLightDelta
	}
	if config.Resync.PacingDelay == 0 {
		config.Resync.PacingDelay = Duration(constants.DefaultResyncPacing)
	}
	if config.HTTP.ListenAddr == "" {
		config.HTTP.ListenAddr = constants.DefaultHTTPListenAddress
	}
}
