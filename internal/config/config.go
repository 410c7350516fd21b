// Package config provides functionality for managing configuration options
// for the server using command-line flags, a JSON file and environment
// variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	BackendLocal    = "local"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Duration is a time.Duration read from "1h30m"-style text in flags,
// JSON and environment variables.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Options holds the configuration values for the server.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"addr" env:"GOPHOTP_ADDR"`

	// Backend selects where encrypted blobs live: local, postgres or s3.
	Backend string `json:"backend" env:"GOPHOTP_BACKEND"`
	// DataDir is the directory of the local backend.
	DataDir string `json:"data_dir" env:"GOPHOTP_DATA_DIR"`
	// DatabaseDSN holds the connection string of the postgres backend.
	DatabaseDSN string `json:"database_dsn" env:"DATABASE_DSN"`

	S3Bucket    string `json:"s3_bucket" env:"GOPHOTP_S3_BUCKET"`
	S3Prefix    string `json:"s3_prefix" env:"GOPHOTP_S3_PREFIX"`
	S3Region    string `json:"s3_region" env:"AWS_REGION"`
	S3Endpoint  string `json:"s3_endpoint" env:"GOPHOTP_S3_ENDPOINT"`
	S3AccessKey string `json:"s3_access_key" env:"AWS_ACCESS_KEY_ID"`
	S3SecretKey string `json:"s3_secret_key" env:"AWS_SECRET_ACCESS_KEY"`
	S3PathStyle bool   `json:"s3_path_style" env:"GOPHOTP_S3_PATH_STYLE"`

	// Algorithm is the cipher for a newly created store.
	Algorithm string `json:"algorithm" env:"GOPHOTP_ALGORITHM"`

	TLSCert string `json:"tls_cert" env:"GOPHOTP_TLS_CERT"`
	TLSKey  string `json:"tls_key" env:"GOPHOTP_TLS_KEY"`
	TLSCA   string `json:"tls_ca" env:"GOPHOTP_TLS_CA"`

	// TLSCAKey enables device enrollment when set.
	TLSCAKey string `json:"tls_ca_key" env:"GOPHOTP_TLS_CA_KEY"`

	LogLevel string `json:"log_level" env:"GOPHOTP_LOG_LEVEL"`

	// HistoryInterval and HistoryRetention drive the postgres history cleaner.
	HistoryInterval  Duration `json:"history_interval" env:"GOPHOTP_HISTORY_INTERVAL"`
	HistoryRetention Duration `json:"history_retention" env:"GOPHOTP_HISTORY_RETENTION"`

	// ListHistory and RestoreHistory are one-shot postgres maintenance
	// commands; they are only read from flags.
	ListHistory    bool  `json:"-"`
	RestoreHistory int64 `json:"-"`

	// Config is the path to the Config file.
	Config string `json:"-" env:"CONFIG"`
}

// Default returns the built-in defaults.
func Default() Options {
	return Options{
		Addr:             "localhost:8443",
		Backend:          BackendLocal,
		DataDir:          "data",
		Algorithm:        "aes-256-gcm",
		TLSCert:          "certs/server.crt",
		TLSKey:           "certs/server.key",
		TLSCA:            "certs/ca.crt",
		LogLevel:         "info",
		HistoryInterval:  Duration(time.Hour),
		HistoryRetention: Duration(30 * 24 * time.Hour),
		Config:           "config.json",
	}
}

// Parse builds Options from args (without the program name). Precedence,
// lowest first: defaults, the JSON config file, environment variables,
// flags given on the command line. A missing config file is not an error.
func Parse(args []string) (*Options, error) {
	defaults := Default()
	flags := defaults

	fset := flag.NewFlagSet("gophotp-server", flag.ContinueOnError)
	fset.StringVar(&flags.Addr, "a", defaults.Addr, "run on ip:port server")
	fset.StringVar(&flags.Backend, "backend", defaults.Backend, "storage backend: local, postgres or s3")
	fset.StringVar(&flags.DataDir, "data", defaults.DataDir, "directory of the local backend")
	fset.StringVar(&flags.DatabaseDSN, "d", defaults.DatabaseDSN, "db address")
	fset.StringVar(&flags.S3Bucket, "s3-bucket", defaults.S3Bucket, "S3 bucket")
	fset.StringVar(&flags.S3Prefix, "s3-prefix", defaults.S3Prefix, "S3 key prefix")
	fset.StringVar(&flags.S3Region, "s3-region", defaults.S3Region, "S3 region")
	fset.StringVar(&flags.S3Endpoint, "s3-endpoint", defaults.S3Endpoint, "S3-compatible endpoint URL")
	fset.BoolVar(&flags.S3PathStyle, "s3-path-style", defaults.S3PathStyle, "use path-style S3 addressing")
	fset.StringVar(&flags.Algorithm, "algorithm", defaults.Algorithm, "cipher for a new store: aes-256-gcm or aes-256-cbc")
	fset.StringVar(&flags.TLSCert, "tls-cert", defaults.TLSCert, "server certificate")
	fset.StringVar(&flags.TLSKey, "tls-key", defaults.TLSKey, "server private key")
	fset.StringVar(&flags.TLSCA, "tls-ca", defaults.TLSCA, "CA for client certificates")
	fset.StringVar(&flags.TLSCAKey, "tls-ca-key", defaults.TLSCAKey, "CA private key; enables device enrollment")
	fset.StringVar(&flags.LogLevel, "log-level", defaults.LogLevel, "log level")
	fset.TextVar(&flags.HistoryInterval, "history-interval", defaults.HistoryInterval, "postgres history cleaner interval")
	fset.TextVar(&flags.HistoryRetention, "history-retention", defaults.HistoryRetention, "postgres history retention")
	fset.BoolVar(&flags.ListHistory, "list-history", false, "list archived config versions and exit (postgres)")
	fset.Int64Var(&flags.RestoreHistory, "restore-history", 0, "restore an archived config version by id and exit (postgres)")
	fset.StringVar(&flags.Config, "config", defaults.Config, "path to config file")
	fset.StringVar(&flags.Config, "c", defaults.Config, "path to config file (shorthand)")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	given := map[string]bool{}
	fset.Visit(func(f *flag.Flag) { given[f.Name] = true })

	opts := defaults
	opts.Config = flags.Config
	if !given["config"] && !given["c"] {
		if p := os.Getenv("CONFIG"); p != "" {
			opts.Config = p
		}
	}

	if opts.Config != "" {
		data, err := os.ReadFile(opts.Config)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := json.Unmarshal(data, &opts); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(&opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	// Explicit flags win.
	apply := map[string]func(){
		"a":                 func() { opts.Addr = flags.Addr },
		"backend":           func() { opts.Backend = flags.Backend },
		"data":              func() { opts.DataDir = flags.DataDir },
		"d":                 func() { opts.DatabaseDSN = flags.DatabaseDSN },
		"s3-bucket":         func() { opts.S3Bucket = flags.S3Bucket },
		"s3-prefix":         func() { opts.S3Prefix = flags.S3Prefix },
		"s3-region":         func() { opts.S3Region = flags.S3Region },
		"s3-endpoint":       func() { opts.S3Endpoint = flags.S3Endpoint },
		"s3-path-style":     func() { opts.S3PathStyle = flags.S3PathStyle },
		"algorithm":         func() { opts.Algorithm = flags.Algorithm },
		"tls-cert":          func() { opts.TLSCert = flags.TLSCert },
		"tls-key":           func() { opts.TLSKey = flags.TLSKey },
		"tls-ca":            func() { opts.TLSCA = flags.TLSCA },
		"tls-ca-key":        func() { opts.TLSCAKey = flags.TLSCAKey },
		"log-level":         func() { opts.LogLevel = flags.LogLevel },
		"history-interval":  func() { opts.HistoryInterval = flags.HistoryInterval },
		"history-retention": func() { opts.HistoryRetention = flags.HistoryRetention },
		"config":            func() { opts.Config = flags.Config },
		"c":                 func() { opts.Config = flags.Config },
	}
	for name := range given {
		if f, ok := apply[name]; ok {
			f()
		}
	}
	opts.ListHistory = flags.ListHistory
	opts.RestoreHistory = flags.RestoreHistory

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate checks backend-specific requirements.
func (o *Options) Validate() error {
	switch o.Backend {
	case BackendLocal:
		if o.DataDir == "" {
			return errors.New("local backend requires a data directory")
		}
	case BackendPostgres:
		if o.DatabaseDSN == "" {
			return errors.New("postgres backend requires a database DSN")
		}
	case BackendS3:
		if o.S3Bucket == "" {
			return errors.New("s3 backend requires a bucket")
		}
	default:
		return fmt.Errorf("unknown backend %q", o.Backend)
	}
	if (o.ListHistory || o.RestoreHistory != 0) && o.Backend != BackendPostgres {
		return errors.New("history commands require the postgres backend")
	}
	if o.HistoryInterval <= 0 {
		return errors.New("history interval must be positive")
	}
	return nil
}
