package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Site represents optional site-wide configuration loaded from
// tunnelbench.json. Everything in here has a working zero-value default, so
// the file is not required for normal runs.
type Site struct {
	// Logging configuration
	Logging struct {
		// File is the path to the log file. If empty, logs to stdout only
		File string `json:"file"`
		// MaxSizeMB is the maximum size of log file before rotation
		MaxSizeMB int `json:"max_size_mb"`
		// RetentionDays is how many days of rotated logs to keep
		RetentionDays int `json:"retention_days"`
	} `json:"logging"`

	// Pushgateway configuration for the `push` subcommand
	Pushgateway struct {
		// URL is the Prometheus Pushgateway base URL
		URL string `json:"url"`
		// Job is the Pushgateway job name
		Job string `json:"job"`
	} `json:"pushgateway"`

	// Exporter configuration for the `exporter` subcommand
	Exporter struct {
		// Listen is the address the /metrics endpoint binds to
		Listen string `json:"listen"`
		// WGInterface is the WireGuard interface to report on
		WGInterface string `json:"wg_interface"`
		// IPsecCheck enables the strongSwan status collector
		IPsecCheck bool `json:"ipsec_check"`
		// CollectIntervalSeconds is how often collectors run
		CollectIntervalSeconds int `json:"collect_interval_seconds"`
		// PingTargets are tunnel endpoints probed for latency
		PingTargets []string `json:"ping_targets"`
	} `json:"exporter"`
}

// LoadSite loads site configuration from a JSON file. A missing file is not
// an error; defaults are returned instead.
func LoadSite(path string) (*Site, error) {
	if path == "" {
		path = "tunnelbench.json"
	}

	var site Site
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &site); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %v", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	// Set defaults if not specified
	if site.Logging.MaxSizeMB == 0 {
		site.Logging.MaxSizeMB = 50
	}
	if site.Logging.RetentionDays == 0 {
		site.Logging.RetentionDays = 7
	}
	if site.Pushgateway.URL == "" {
		site.Pushgateway.URL = "http://localhost:9091"
	}
	if site.Pushgateway.Job == "" {
		site.Pushgateway.Job = "iperf_test"
	}
	if site.Exporter.Listen == "" {
		site.Exporter.Listen = ":9100"
	}
	if site.Exporter.WGInterface == "" {
		site.Exporter.WGInterface = "wg0"
	}
	if site.Exporter.CollectIntervalSeconds == 0 {
		site.Exporter.CollectIntervalSeconds = 10
	}

	return &site, nil
}

// InitializeLogging sets up the standard logger based on site config. When a
// log file is configured, output goes to both stdout and a rotated file.
func (s *Site) InitializeLogging() error {
	if s.Logging.File == "" {
		return nil
	}
	logDir := filepath.Dir(s.Logging.File)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}
	logWriter := &lumberjack.Logger{
		Filename:   s.Logging.File,
		MaxSize:    s.Logging.MaxSizeMB,
		MaxAge:     s.Logging.RetentionDays,
		MaxBackups: 3,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, logWriter))
	return nil
}
