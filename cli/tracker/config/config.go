package config

/*
Configuration file description for the fleet tracking daemon.
*/

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"gopkg.in/yaml.v2"
)

type Settings struct {
	// TrackingURL is the websocket base of the tracking backend,
	// e.g. "ws://backend:8000".
	TrackingURL string `yaml:"tracking_url"`
	// Buses lists the entity ids tracked at startup.
	Buses []string `yaml:"buses"`

	ReconnectDelayMS int     `yaml:"reconnect_delay_ms"`
	ReconnectJitter  float64 `yaml:"reconnect_jitter"`
	PingIntervalSec  int     `yaml:"ping_interval_sec"`
	// RefreshCron, when set, requests a full resync on every channel on a
	// schedule, e.g. "0 */10 * * * *".
	RefreshCron string `yaml:"refresh_cron"`

	ApiPort int `yaml:"api_port"`

	RosterURL  string `yaml:"roster_url"`
	GeocodeURL string `yaml:"geocode_url"`

	LogLevel      string `yaml:"log_level"`
	LogFilePath   string `yaml:"log_file_path"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`

	// SkipIdleSnapshots drops snapshots without an active trip from the
	// storage fan-out; parked buses then produce no archive noise.
	SkipIdleSnapshots bool `yaml:"skip_idle_snapshots"`

	Store          map[string]map[string]string `yaml:"storage"`
	MigrationsPath string                       `yaml:"migrations_path"`
}

func (s *Settings) GetLogLevel() log.Level {
	var lvl log.Level

	switch s.LogLevel {
	case "DEBUG":
		lvl = log.DebugLevel
	case "INFO":
		lvl = log.InfoLevel
	case "WARN":
		lvl = log.WarnLevel
	case "ERROR":
		lvl = log.ErrorLevel
	default:
		lvl = log.InfoLevel
	}
	return lvl
}

func (s *Settings) GetReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelayMS) * time.Millisecond
}

func (s *Settings) GetPingInterval() time.Duration {
	return time.Duration(s.PingIntervalSec) * time.Second
}

func (s *Settings) GetListenAddress() string {
	return fmt.Sprintf(":%d", s.ApiPort)
}

func New(confPath string) (Settings, error) {
	c := Settings{}
	data, err := os.ReadFile(confPath)
	if err != nil {
		return c, err
	}
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return c, err
	}

	if c.TrackingURL == "" {
		return c, fmt.Errorf("tracking_url is required")
	}

	if c.ReconnectDelayMS == 0 {
		c.ReconnectDelayMS = 3000
	}
	if c.PingIntervalSec == 0 {
		c.PingIntervalSec = 30
	}
	if c.ApiPort == 0 {
		c.ApiPort = 8080
	}

	if c.ReconnectDelayMS < 0 {
		log.Errorf("Invalid reconnect_delay_ms (%d). Defaulting to 3000.", c.ReconnectDelayMS)
		c.ReconnectDelayMS = 3000
	}

	return c, err
}
