// Package config assembles server settings from defaults, an optional HCL
// file, the environment and command-line flags, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"

	"github.com/azybler/route_finder/pkg/graph"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "ROUTER_"

// ErrHelp is returned by Load when -h or -help was requested.
var ErrHelp = flag.ErrHelp

// Config holds everything the server process needs.
type Config struct {
	Region         string        // resolved against GraphDir when Graph is empty
	GraphDir       string        // directory holding <region-slug>.graph.bin artifacts
	Graph          string        // explicit artifact path or mysql:// location
	ListenAddr     string        // host part of the listen address
	Port           int           // HTTP port
	RequestTimeout time.Duration // per-request routing budget
	MaxConcurrent  int           // in-flight routing requests before shedding
	CORSOrigins    []string      // allowed origins, "*" for all
	MaxSnapMeters  float64       // 0 disables the snap distance limit
	LogLevel       string        // debug, info, warn, error
	LogFormat      string        // json or console
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		GraphDir:       "data",
		ListenAddr:     "0.0.0.0",
		Port:           5000,
		RequestTimeout: 5 * time.Second,
		MaxConcurrent:  64,
		CORSOrigins:    []string{"*"},
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddr, c.Port)
}

// GraphLocation returns what graph.Load should be given: the explicit
// graph location if set, otherwise the region's artifact in GraphDir.
func (c Config) GraphLocation() string {
	if c.Graph != "" {
		return c.Graph
	}
	return graph.RegionPath(c.GraphDir, c.Region)
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Graph == "" && c.Region == "" {
		errs = append(errs, errors.New("one of graph or region is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout %s is negative", c.RequestTimeout))
	}
	if c.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent))
	}
	if c.MaxSnapMeters < 0 {
		errs = append(errs, fmt.Errorf("max_snap_meters %g is negative", c.MaxSnapMeters))
	}
	for _, o := range c.CORSOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("cors origin %q must be \"*\" or start with http:// or https://", o))
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log_level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("invalid log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Load builds the configuration from args (without the program name) and
// the process environment. A .env file in the working directory is read
// when present; real environment variables take precedence over it.
func Load(args []string, output io.Writer) (*Config, error) {
	return load(args, output, os.LookupEnv)
}

type lookupFunc func(key string) (string, bool)

func load(args []string, output io.Writer, lookupEnv lookupFunc) (*Config, error) {
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	flags.SetOutput(output)

	def := Default()
	configFile := flags.String("config", "", "Path to an HCL config file")
	envFile := flags.String("env-file", ".env", "Path to a dotenv file (ignored if missing)")
	region := flags.String("region", def.Region, "Region name, e.g. \"Bangalore, India\"")
	graphDir := flags.String("graph-dir", def.GraphDir, "Directory of region graph artifacts")
	graphLoc := flags.String("graph", def.Graph, "Graph artifact path (.bin, .json) or mysql:// location")
	listenAddr := flags.String("listen-addr", def.ListenAddr, "Listen host")
	port := flags.Int("port", def.Port, "HTTP port")
	timeout := flags.Duration("request-timeout", def.RequestTimeout, "Per-request routing timeout")
	maxConc := flags.Int("max-concurrent", def.MaxConcurrent, "Max in-flight routing requests")
	cors := flags.String("cors-origins", strings.Join(def.CORSOrigins, ","), "Comma-separated allowed CORS origins")
	maxSnap := flags.Float64("max-snap-meters", def.MaxSnapMeters, "Max distance from a query point to the road network (0 = unlimited)")
	logLevel := flags.String("log-level", def.LogLevel, "Log level: debug, info, warn, error")
	logFormat := flags.String("log-format", def.LogFormat, "Log format: json or console")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := def

	// HCL file.
	path := *configFile
	if path == "" {
		path, _ = lookupEnv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	// Environment, falling back to the dotenv file.
	dotenv, err := godotenv.Read(*envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", *envFile, err)
	}
	env := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, env); err != nil {
		return nil, err
	}

	// Flags set explicitly on the command line.
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "region":
			cfg.Region = *region
		case "graph-dir":
			cfg.GraphDir = *graphDir
		case "graph":
			cfg.Graph = *graphLoc
		case "listen-addr":
			cfg.ListenAddr = *listenAddr
		case "port":
			cfg.Port = *port
		case "request-timeout":
			cfg.RequestTimeout = *timeout
		case "max-concurrent":
			cfg.MaxConcurrent = *maxConc
		case "cors-origins":
			cfg.CORSOrigins = splitList(*cors)
		case "max-snap-meters":
			cfg.MaxSnapMeters = *maxSnap
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// fileConfig mirrors Config for HCL decoding. Absent attributes stay nil.
type fileConfig struct {
	Region         *string   `hcl:"region,optional"`
	GraphDir       *string   `hcl:"graph_dir,optional"`
	Graph          *string   `hcl:"graph,optional"`
	ListenAddr     *string   `hcl:"listen_addr,optional"`
	Port           *int      `hcl:"port,optional"`
	RequestTimeout *string   `hcl:"request_timeout,optional"`
	MaxConcurrent  *int      `hcl:"max_concurrent,optional"`
	CORSOrigins    *[]string `hcl:"cors_origins,optional"`
	MaxSnapMeters  *float64  `hcl:"max_snap_meters,optional"`
	LogLevel       *string   `hcl:"log_level,optional"`
	LogFormat      *string   `hcl:"log_format,optional"`
}

func applyFile(cfg *Config, path string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	setIf(&cfg.Region, fc.Region)
	setIf(&cfg.GraphDir, fc.GraphDir)
	setIf(&cfg.Graph, fc.Graph)
	setIf(&cfg.ListenAddr, fc.ListenAddr)
	setIf(&cfg.Port, fc.Port)
	setIf(&cfg.MaxConcurrent, fc.MaxConcurrent)
	setIf(&cfg.CORSOrigins, fc.CORSOrigins)
	setIf(&cfg.MaxSnapMeters, fc.MaxSnapMeters)
	setIf(&cfg.LogLevel, fc.LogLevel)
	setIf(&cfg.LogFormat, fc.LogFormat)
	if fc.RequestTimeout != nil {
		d, err := time.ParseDuration(*fc.RequestTimeout)
		if err != nil {
			return fmt.Errorf("%s: request_timeout: %w", path, err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func applyEnv(cfg *Config, env lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := env(EnvPrefix + key); ok {
			*dst = v
		}
	}
	parsed := func(key string, parse func(string) error) {
		if v, ok := env(EnvPrefix + key); ok {
			if err := parse(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			}
		}
	}

	str("REGION", &cfg.Region)
	str("GRAPH_DIR", &cfg.GraphDir)
	str("GRAPH", &cfg.Graph)
	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	parsed("PORT", func(v string) (err error) {
		cfg.Port, err = strconv.Atoi(v)
		return err
	})
	parsed("REQUEST_TIMEOUT", func(v string) (err error) {
		cfg.RequestTimeout, err = time.ParseDuration(v)
		return err
	})
	parsed("MAX_CONCURRENT", func(v string) (err error) {
		cfg.MaxConcurrent, err = strconv.Atoi(v)
		return err
	})
	parsed("MAX_SNAP_METERS", func(v string) (err error) {
		cfg.MaxSnapMeters, err = strconv.ParseFloat(v, 64)
		return err
	})
	parsed("CORS_ORIGINS", func(v string) error {
		cfg.CORSOrigins = splitList(v)
		return nil
	})
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
