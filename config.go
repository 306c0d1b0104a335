package gelf

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFacility is returned when no facility is configured.
	ErrMissingFacility = errors.New("gelf: facility is required")

	// ErrMissingHost is returned when no collector host is configured.
	ErrMissingHost = errors.New("gelf: host is required")

	// ErrInvalidPort is returned for ports outside 1..65535.
	ErrInvalidPort = errors.New("gelf: invalid port")

	// ErrConflictingCertificates is returned when both a certificate path
	// and a certificate name are configured.
	ErrConflictingCertificates = errors.New("gelf: clientCertificatePath and clientCertificateName cannot both be set")
)

// Config describes the collector endpoint and transport security. It is
// read, never written, by a Client.
type Config struct {
	Facility string `json:"facility" yaml:"facility"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	UseSSL   bool   `json:"useSsl" yaml:"useSsl"`

	UseCompression   bool `json:"useCompression" yaml:"useCompression"`
	CompressionLevel int  `json:"compressionLevel,omitempty" yaml:"compressionLevel,omitempty"`

	ClientCertificatePath     string `json:"clientCertificatePath,omitempty" yaml:"clientCertificatePath,omitempty"`
	ClientCertificateName     string `json:"clientCertificateName,omitempty" yaml:"clientCertificateName,omitempty"`
	ClientCertificatePassword string `json:"clientCertificatePassword,omitempty" yaml:"clientCertificatePassword,omitempty"`

	// RequestTimeoutSeconds bounds a single attempt. Zero or less keeps the
	// transport default.
	RequestTimeoutSeconds int `json:"requestTimeout" yaml:"requestTimeout"`

	// ExpectContinue sends "Expect: 100-continue" before the body.
	ExpectContinue bool `json:"expectContinue" yaml:"expectContinue"`
}

// Override redirects a single attempt to another endpoint. Zero fields keep
// the configured value.
type Override struct {
	Host   string
	Port   int
	UseSSL *bool
}

// DefaultConfig returns a Config with the GELF HTTP port and compression on.
func DefaultConfig() Config {
	return Config{
		Port:             DefaultPort,
		UseCompression:   true,
		CompressionLevel: gzip.DefaultCompression,
	}
}

// LoadConfig reads a JSON or YAML file over DefaultConfig. The format is
// chosen by extension; anything other than .yaml or .yml is read as JSON.
func LoadConfig(path string) (Config, error) {
	conf := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("gelf: read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &conf)
	default:
		err = json.Unmarshal(data, &conf)
	}
	if err != nil {
		return conf, fmt.Errorf("gelf: parse config %s: %w", path, err)
	}

	return conf, nil
}

// Validate reports the first precondition the configuration violates.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Facility) == "" {
		return ErrMissingFacility
	}
	if strings.TrimSpace(c.Host) == "" {
		return ErrMissingHost
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	return c.checkCertificateSources()
}

func (c Config) checkCertificateSources() error {
	if strings.TrimSpace(c.ClientCertificatePath) != "" && strings.TrimSpace(c.ClientCertificateName) != "" {
		return ErrConflictingCertificates
	}
	return nil
}

// RequestTimeout returns the configured per-attempt timeout, or zero.
func (c Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// URL returns the GELF endpoint, applying the override when given.
func (c Config) URL(o *Override) string {
	host, port, useSSL := c.Host, c.Port, c.UseSSL
	if o != nil {
		if o.Host != "" {
			host = o.Host
		}
		if o.Port != 0 {
			port = o.Port
		}
		if o.UseSSL != nil {
			useSSL = *o.UseSSL
		}
	}

	scheme := "http"
	if useSSL {
		scheme = "https"
	}

	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)) + gelfPath
}
