package main

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bluenviron/mediastream"
	"github.com/bluenviron/mediastream/pkg/base"
	"github.com/bluenviron/mediastream/pkg/mp4capture"
)

// Config is the configuration of the program.
type Config struct {
	URI          string                       `yaml:"uri"`
	Transport    string                       `yaml:"transport"`
	WebSocketURL string                       `yaml:"websocketURL"`
	Proxy        string                       `yaml:"proxy"`
	StartTime    float64                      `yaml:"startTime"`
	Output       string                       `yaml:"output"`
	Capture      CaptureConfig                `yaml:"capture"`
	Log          LogConfig                    `yaml:"log"`
	Headers      map[string]map[string]string `yaml:"headers"`
}

// CaptureConfig is the configuration of a bounded MP4 capture.
type CaptureConfig struct {
	// file that receives the capture. Capture is disabled when empty.
	Output  string `yaml:"output"`
	MaxSize int    `yaml:"maxSize"`
}

// LogConfig is the logging configuration.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the configuration from a YAML file.
// A non-empty uri replaces the one in the file.
func Load(path string, uri string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return parse(data, uri)
}

func parse(data []byte, uri string) (*Config, error) {
	var conf Config
	err := yaml.Unmarshal(data, &conf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if uri != "" {
		conf.URI = uri
	}

	conf.setDefaults()

	err = conf.validate()
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &conf, nil
}

func (c *Config) setDefaults() {
	if c.Transport == "" {
		c.Transport = string(mediastream.TransportTCP)
	}
	if c.Output == "" {
		c.Output = "out.mp4"
	}
	if c.Capture.MaxSize == 0 {
		c.Capture.MaxSize = mp4capture.DefaultMaxSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
}

func (c *Config) validate() error {
	if c.URI == "" {
		return fmt.Errorf("uri is missing")
	}

	u, err := url.Parse(c.URI)
	if err != nil {
		return fmt.Errorf("invalid uri: %w", err)
	}
	if u.Scheme != "rtsp" {
		return fmt.Errorf("invalid uri: unsupported scheme '%s'", u.Scheme)
	}

	switch mediastream.Transport(c.Transport) {
	case mediastream.TransportTCP:

	case mediastream.TransportWebSocket:
		if c.WebSocketURL == "" {
			return fmt.Errorf("websocketURL is required with the websocket transport")
		}
		if c.Proxy != "" {
			return fmt.Errorf("proxy is supported with the tcp transport only")
		}

	default:
		return fmt.Errorf("invalid transport: %s (must be one of: tcp, websocket)", c.Transport)
	}

	if c.StartTime < 0 {
		return fmt.Errorf("invalid startTime: %v (must be non-negative)", c.StartTime)
	}

	if c.Capture.MaxSize < 0 {
		return fmt.Errorf("invalid capture maxSize: %d (must be non-negative)", c.Capture.MaxSize)
	}

	switch c.Log.Level {
	case "debug", "info", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warning, error)", c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be one of: text, json)", c.Log.Format)
	}

	for method := range c.Headers {
		switch base.Method(strings.ToUpper(method)) {
		case base.Options, base.Describe, base.Setup, base.Play, base.Pause, base.Teardown:
		default:
			return fmt.Errorf("invalid headers: unsupported method '%s'", method)
		}
	}

	return nil
}

// RequestHeaders returns the request headers, grouped by method.
func (c *Config) RequestHeaders() map[base.Method]base.Header {
	if len(c.Headers) == 0 {
		return nil
	}

	ret := make(map[base.Method]base.Header, len(c.Headers))

	for method, vals := range c.Headers {
		h := make(base.Header, len(vals))
		for k, v := range vals {
			h.Set(k, v)
		}
		ret[base.Method(strings.ToUpper(method))] = h
	}

	return ret
}
