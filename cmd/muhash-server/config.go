package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config specifies the file format of config files.
type Config struct {
	ServerAddr  string     `yaml:"addr"`
	MetricsAddr string     `yaml:"metrics-addr"`
	TLSConfig   *TLSConfig `yaml:"tls"`
	tlsConfig   *tls.Config

	DatabaseFile string `yaml:"database"`
	Workers      int    `yaml:"workers"` // Goroutines used to hash a batch. Zero means one per CPU.

	LogLevel string `yaml:"log-level"`
	logLevel logrus.Level
}

// TLSConfig specifies the API server's TLS config. When TLS is enabled, the
// server also starts requiring a valid client certificate.
type TLSConfig struct {
	Cert     string `yaml:"cert"`
	Key      string `yaml:"key"`
	ClientCA string `yaml:"client-ca"` // CA for validating client certificates.
}

func ReadConfig(filename string) (*Config, error) {
	// Read from file and parse.
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return parseConfig(raw)
}

func parseConfig(raw []byte) (*Config, error) {
	var parsed Config
	if err := yaml.UnmarshalStrict(raw, &parsed); err != nil {
		return nil, err
	}

	// Check that all required fields are populated.
	if parsed.ServerAddr == "" {
		return nil, fmt.Errorf("field not provided: addr")
	} else if parsed.DatabaseFile == "" {
		return nil, fmt.Errorf("field not provided: database")
	} else if parsed.Workers < 0 {
		return nil, fmt.Errorf("field must not be negative: workers")
	}

	if parsed.LogLevel == "" {
		parsed.logLevel = logrus.InfoLevel
	} else {
		level, err := logrus.ParseLevel(parsed.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to parse log-level: %v", err)
		}
		parsed.logLevel = level
	}

	// Parse TLS config if necessary.
	if parsed.TLSConfig != nil {
		cert, err := tls.LoadX509KeyPair(parsed.TLSConfig.Cert, parsed.TLSConfig.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate/key: %v", err)
		}

		certPool := x509.NewCertPool()
		caCerts, err := os.ReadFile(parsed.TLSConfig.ClientCA)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS client CA: %v", err)
		} else if ok := certPool.AppendCertsFromPEM(caCerts); !ok {
			return nil, fmt.Errorf("no client CA certificates successfully parsed from file")
		}

		parsed.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    certPool,
		}
	}

	return &parsed, nil
}
