package main

// Options are the command-line flags. The struct tags are interpreted by
// github.com/jessevdk/go-flags. Empty values fall through to the environment,
// then the config file, then defaults.
type Options struct {
	Config      string `short:"f" long:"config" description:"YAML config file path"`
	AppURL      string `long:"app-url" description:"base URL of the study app that proxies /api/chat"`
	IngestURL   string `long:"ingest-url" description:"base URL of the ingestion service"`
	Timeout     string `short:"t" long:"timeout" description:"per-request timeout such as 90s (0 disables)"`
	Difficulty  string `short:"d" long:"difficulty" description:"difficulty hint sent with every question"`
	LogFile     string `long:"log-file" description:"rotated JSON log file"`
	Env         string `long:"env" description:"development or production"`
	ParamPrefix string `long:"param-prefix" description:"SSM parameter prefix holding endpoint overrides"`
	Plain       bool   `long:"plain" description:"disable colored output"`
	Debug       bool   `long:"debug" description:"log at debug level to stderr"`
}
