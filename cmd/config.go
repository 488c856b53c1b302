package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"study-tutor/internal/integrations/paramstore"
)

const (
	defaultAppURL    = "http://localhost:3000"
	defaultIngestURL = "http://127.0.0.1:8000"
	defaultTimeout   = 120 * time.Second
	envProduction    = "production"
)

// Config is the resolved client configuration.
type Config struct {
	AppBaseURL    string
	IngestBaseURL string
	Timeout       time.Duration
	Difficulty    string
	LogFile       string
	Env           string
	ParamPrefix   string
}

// fileConfig is the YAML file layout.
type fileConfig struct {
	AppBaseURL     string `yaml:"app_base_url"`
	IngestBaseURL  string `yaml:"ingest_base_url"`
	RequestTimeout string `yaml:"request_timeout"`
	Difficulty     string `yaml:"difficulty"`
	LogFile        string `yaml:"log_file"`
	Env            string `yaml:"env"`
	ParamPrefix    string `yaml:"param_prefix"`
}

// EndpointResolver looks up endpoint overrides under a parameter prefix.
type EndpointResolver interface {
	ResolveEndpoints(ctx context.Context, prefix string) (paramstore.Endpoints, error)
}

// loadConfig layers flags over environment over the config file over defaults.
func loadConfig(opts Options, getenv func(string) string, readFile func(string) ([]byte, error)) (Config, error) {
	var file fileConfig
	path := first(opts.Config, getenv("TUTOR_CONFIG"))
	if path != "" {
		raw, err := readFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg := Config{
		AppBaseURL:    first(opts.AppURL, getenv("TUTOR_APP_URL"), file.AppBaseURL, defaultAppURL),
		IngestBaseURL: first(opts.IngestURL, getenv("TUTOR_INGEST_URL"), file.IngestBaseURL, defaultIngestURL),
		Difficulty:    first(opts.Difficulty, getenv("TUTOR_DIFFICULTY"), file.Difficulty),
		LogFile:       first(opts.LogFile, getenv("TUTOR_LOG_FILE"), file.LogFile),
		Env:           strings.ToLower(first(opts.Env, getenv("TUTOR_ENV"), file.Env, "development")),
		ParamPrefix:   first(opts.ParamPrefix, getenv("TUTOR_PARAM_PREFIX"), file.ParamPrefix),
		Timeout:       defaultTimeout,
	}

	if raw := first(opts.Timeout, getenv("TUTOR_REQUEST_TIMEOUT"), file.RequestTimeout); raw != "" {
		d, err := parseTimeout(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// applyParameters overrides endpoints with values from the parameter store. Values
// given as flags win.
func applyParameters(ctx context.Context, cfg Config, opts Options, resolver EndpointResolver) (Config, error) {
	if cfg.ParamPrefix == "" {
		return cfg, nil
	}
	if resolver == nil {
		return Config{}, errors.New("parameter prefix set but no parameter store client")
	}
	ep, err := resolver.ResolveEndpoints(ctx, cfg.ParamPrefix)
	if err != nil {
		return Config{}, fmt.Errorf("resolve endpoints under %s: %w", cfg.ParamPrefix, err)
	}
	if ep.AppBaseURL != "" && opts.AppURL == "" {
		cfg.AppBaseURL = ep.AppBaseURL
	}
	if ep.IngestBaseURL != "" && opts.IngestURL == "" {
		cfg.IngestBaseURL = ep.IngestBaseURL
	}
	return cfg, nil
}

// parseTimeout accepts a Go duration or a whole number of seconds.
func parseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid request timeout %q", raw)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid request timeout %q", raw)
	}
	return d, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
