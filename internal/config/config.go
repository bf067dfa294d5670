// Package config implements the layered configuration loader (spec §6):
// compiled defaults, overridden by a system file, then a user file, then
// NETOPT_-prefixed env vars, then CLI flags, each layer only ever
// overriding what's present beneath it.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var ErrConfig = errors.New("config: invalid configuration")

// Config holds every recognized key from spec §6, already coerced to its
// native type. The zero value is not the compiled defaults; use Defaults.
type Config struct {
	mu sync.RWMutex

	PriorityEthernet int
	PriorityWifi     int
	PriorityMobile   int
	PriorityUnknown  int

	MaxLatency     float64
	LatencyDivisor float64
	MinWeight      int
	MaxWeight      int
	LossExcludePct float64

	PingCount       int
	PingTimeout     int // seconds
	ProbeJumbo      bool
	CacheTTL        int // seconds
	ParallelTimeout int // seconds
	MaxConcurrency  int

	EnableBGP bool

	EnableCheckpoints    bool
	CheckpointRetention  int

	EnableWatchdog     bool
	WatchdogTimeout    int // seconds
	MaxWatchdogExtend  int // seconds

	TCPCongestionControl string
	TCPFastopen          int
	RmemMax              int
	WmemMax              int

	DNSServers        []string
	ExcludeInterfaces string
}

// Defaults returns the compiled-in defaults documented across spec §4.5,
// §4.3, and §6.
func Defaults() *Config {
	return &Config{
		PriorityEthernet: 0,
		PriorityWifi:     1,
		PriorityMobile:   2,
		PriorityUnknown:  3,

		MaxLatency:     200,
		LatencyDivisor: 10,
		MinWeight:      1,
		MaxWeight:      20,
		LossExcludePct: 75,

		PingCount:       2,
		PingTimeout:     1,
		ProbeJumbo:      false,
		CacheTTL:        60,
		ParallelTimeout: 5,
		MaxConcurrency:  4,

		EnableBGP: false,

		EnableCheckpoints:   true,
		CheckpointRetention: 10,

		EnableWatchdog:    true,
		WatchdogTimeout:   300,
		MaxWatchdogExtend: 1800,

		TCPCongestionControl: "cubic",
		TCPFastopen:          0,
		RmemMax:              0,
		WmemMax:              0,

		DNSServers:        nil,
		ExcludeInterfaces: `^lo$|^docker|^veth|^br-|^virbr`,
	}
}

// fieldSetters maps each recognized key to the function that writes its
// parsed value onto cfg. In Apply, unknown keys are
// rejected with ErrConfig rather than silently ignored — a typo'd key in
// /etc/netopt/netopt.conf should fail loudly, not be a silent no-op.
var fieldSetters = map[string]func(cfg *Config, value string) error{
	"PRIORITY_ETHERNET": intSetter(func(c *Config) *int { return &c.PriorityEthernet }),
	"PRIORITY_WIFI":     intSetter(func(c *Config) *int { return &c.PriorityWifi }),
	"PRIORITY_MOBILE":   intSetter(func(c *Config) *int { return &c.PriorityMobile }),
	"PRIORITY_UNKNOWN":  intSetter(func(c *Config) *int { return &c.PriorityUnknown }),

	"MAX_LATENCY":      floatSetter(func(c *Config) *float64 { return &c.MaxLatency }),
	"LATENCY_DIVISOR":  floatSetter(func(c *Config) *float64 { return &c.LatencyDivisor }),
	"MIN_WEIGHT":       intSetter(func(c *Config) *int { return &c.MinWeight }),
	"MAX_WEIGHT":       intSetter(func(c *Config) *int { return &c.MaxWeight }),
	"LOSS_EXCLUDE_PCT": floatSetter(func(c *Config) *float64 { return &c.LossExcludePct }),

	"PING_COUNT":       intSetter(func(c *Config) *int { return &c.PingCount }),
	"PING_TIMEOUT":     intSetter(func(c *Config) *int { return &c.PingTimeout }),
	"PROBE_JUMBO":      boolSetter(func(c *Config) *bool { return &c.ProbeJumbo }),
	"CACHE_TTL":        intSetter(func(c *Config) *int { return &c.CacheTTL }),
	"PARALLEL_TIMEOUT": intSetter(func(c *Config) *int { return &c.ParallelTimeout }),
	"MAX_CONCURRENCY":  intSetter(func(c *Config) *int { return &c.MaxConcurrency }),

	"ENABLE_BGP": boolSetter(func(c *Config) *bool { return &c.EnableBGP }),

	"ENABLE_CHECKPOINTS":   boolSetter(func(c *Config) *bool { return &c.EnableCheckpoints }),
	"CHECKPOINT_RETENTION": intSetter(func(c *Config) *int { return &c.CheckpointRetention }),

	"ENABLE_WATCHDOG":       boolSetter(func(c *Config) *bool { return &c.EnableWatchdog }),
	"WATCHDOG_TIMEOUT":      intSetter(func(c *Config) *int { return &c.WatchdogTimeout }),
	"MAX_WATCHDOG_EXTEND":   intSetter(func(c *Config) *int { return &c.MaxWatchdogExtend }),

	"TCP_CONGESTION_CONTROL": stringSetter(func(c *Config) *string { return &c.TCPCongestionControl }),
	"TCP_FASTOPEN":           intSetter(func(c *Config) *int { return &c.TCPFastopen }),
	"RMEM_MAX":               intSetter(func(c *Config) *int { return &c.RmemMax }),
	"WMEM_MAX":               intSetter(func(c *Config) *int { return &c.WmemMax }),

	"DNS_SERVERS": func(c *Config, v string) error {
		c.DNSServers = splitList(v)
		return nil
	},
	"EXCLUDE_INTERFACES": stringSetter(func(c *Config) *string { return &c.ExcludeInterfaces }),
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatSetter(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func stringSetter(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = strings.TrimSpace(v)
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Apply parses KEY=value lines (shell-heritage format: '#' comments,
// blank lines ignored, values may be quoted) and overrides cfg's fields in
// place.
func (c *Config) Apply(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("%w: line %d: missing '=': %q", ErrConfig, lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))

		setter, known := fieldSetters[key]
		if !known {
			return fmt.Errorf("%w: line %d: unrecognized key %q", ErrConfig, lineNo, key)
		}
		if err := setter(c, value); err != nil {
			return fmt.Errorf("%w: line %d: key %q: %v", ErrConfig, lineNo, key, err)
		}
	}
	return scanner.Err()
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' && v[len(v)-1] == '"' || v[0] == '\'' && v[len(v)-1] == '\'') {
		return v[1 : len(v)-1]
	}
	return v
}

// ApplyEnv overrides cfg from NETOPT_-prefixed environment variables,
// e.g. NETOPT_MAX_LATENCY=150.
func (c *Config) ApplyEnv(environ []string) error {
	const prefix = "NETOPT_"
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		key = strings.TrimPrefix(key, prefix)
		c.mu.Lock()
		setter, known := fieldSetters[key]
		if known {
			err := setter(c, value)
			c.mu.Unlock()
			if err != nil {
				return fmt.Errorf("%w: env %s%s: %v", ErrConfig, prefix, key, err)
			}
			continue
		}
		c.mu.Unlock()
	}
	return nil
}

// ExcludeInterfacesPattern compiles the configured regex once it's fully
// layered; kept here rather than in the inventory package so config
// validation (ConfigParseable in the preflight check) can catch a bad
// regex before any probing begins.
func (c *Config) ExcludeInterfacesPattern() (*regexp.Regexp, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return regexp.Compile(c.ExcludeInterfaces)
}

// Load builds a Config by layering compiled defaults < system file <
// user file < environment, in that order. Missing files at either layer
// are not an error; a present-but-unparseable file is.
func Load(systemPath, userPath string, environ []string) (*Config, error) {
	cfg := Defaults()

	for _, path := range []string{systemPath, userPath} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", ErrConfig, path, err)
		}
		if err := cfg.Apply(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, err
	}

	return cfg, nil
}
