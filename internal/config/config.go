// Package config loads service settings from SKYPASS_* environment variables
// and an optional config file named by SKYPASS_CONFIG.
//
// Keys are dotted (search.max_days); the environment form replaces dots with
// underscores (SKYPASS_SEARCH_MAX_DAYS). Malformed values are logged and
// replaced by their defaults. Only settings that make the service unsafe to
// start are returned as errors.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/star/skypass/internal/auth"
	"github.com/star/skypass/internal/timesys"
	"github.com/star/skypass/internal/tracing"
	"github.com/star/skypass/internal/transform"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "SKYPASS"

// FileEnv names the variable holding an optional config file path.
const FileEnv = "SKYPASS_CONFIG"

// Config is the full service configuration.
type Config struct {
	HTTPAddr   string
	LogLevel   slog.Level
	TrustProxy bool
	Auth       auth.Config
	Search     SearchConfig
	Model      transform.Model
	TLE        TLEConfig
	Stream     StreamConfig
	Tracing    tracing.Config
}

// SearchConfig bounds pass searches.
type SearchConfig struct {
	Workers            int
	MaxDays            float64
	Budget             time.Duration // 0 disables the wall-clock budget
	MaxPositions       int           // cap on samples returned in positions mode
	MaxConcurrentPerIP int
	MaxConcurrent      int
}

// StreamConfig bounds live-tracking SSE streams.
type StreamConfig struct {
	MaxConcurrentPerIP int
	MaxConcurrent      int
	KeepaliveInterval  time.Duration
}

// TLEConfig controls the catalog fetcher.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	Keep            int
	MaxAge          time.Duration
	RefreshInterval time.Duration
}

var defaults = map[string]any{
	"http.addr":                    ":8080",
	"http.trust_proxy":             false,
	"log.level":                    "info",
	"auth.enabled":                 false,
	"auth.token":                   "",
	"search.workers":               runtime.NumCPU(),
	"search.max_days":              30.0,
	"search.budget":                "30s",
	"search.max_positions":         10080,
	"search.max_concurrent_per_ip": 4,
	"search.max_concurrent":        64,
	"model.equatorial_radius":      transform.WGS84.EquatorialRadius,
	"model.eccentricity":           transform.WGS84.Eccentricity,
	"model.rotation_rate":          transform.WGS84.RotationRate,
	"model.axial_tilt":             transform.WGS84.AxialTilt,
	"model.axial_tilt_rate":        transform.WGS84.AxialTiltRate,
	"model.time_of_day":            "truncated",
	"tle.fetch_enabled":            true,
	"tle.source_url":               "",
	"tle.extra_urls":               "https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
	"tle.cache_dir":                "/tmp/skypass/tle",
	"tle.keep":                     5,
	"tle.max_age":                  "24h",
	"tle.refresh_interval":         "1h",
	"stream.max_concurrent_per_ip": 10,
	"stream.max_concurrent":        1000,
	"stream.keepalive_interval":    "30s",
	"tracing.enabled":              false,
	"tracing.service_name":         "skypass",
	"tracing.exporter":             "stdout",
	"tracing.sample_ratio":         1.0,
}

// Load reads configuration from the environment and, if SKYPASS_CONFIG is
// set, from that file. Environment values take precedence over the file.
func Load(logger *slog.Logger) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if path := os.Getenv(FileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		logger.Info("config file loaded", "path", v.ConfigFileUsed())
	}

	l := &loader{v: v, logger: logger}
	cfg := Config{
		HTTPAddr:   v.GetString("http.addr"),
		LogLevel:   l.level("log.level"),
		TrustProxy: l.boolean("http.trust_proxy"),
		Search: SearchConfig{
			Workers:            l.positiveInt("search.workers"),
			MaxDays:            l.positiveFloat("search.max_days"),
			Budget:             l.duration("search.budget", true),
			MaxPositions:       l.positiveInt("search.max_positions"),
			MaxConcurrentPerIP: l.positiveInt("search.max_concurrent_per_ip"),
			MaxConcurrent:      l.positiveInt("search.max_concurrent"),
		},
		Model: l.model(),
		TLE: TLEConfig{
			EnableFetch:     l.boolean("tle.fetch_enabled"),
			SourceURL:       strings.TrimSpace(v.GetString("tle.source_url")),
			ExtraSourceURLs: l.list("tle.extra_urls"),
			CacheDir:        v.GetString("tle.cache_dir"),
			Keep:            l.positiveInt("tle.keep"),
			MaxAge:          l.duration("tle.max_age", false),
			RefreshInterval: l.duration("tle.refresh_interval", false),
		},
		Stream: StreamConfig{
			MaxConcurrentPerIP: l.positiveInt("stream.max_concurrent_per_ip"),
			MaxConcurrent:      l.positiveInt("stream.max_concurrent"),
			KeepaliveInterval:  l.duration("stream.keepalive_interval", false),
		},
		Tracing: tracing.Config{
			Enabled:     l.boolean("tracing.enabled"),
			ServiceName: v.GetString("tracing.service_name"),
			Exporter:    strings.ToLower(v.GetString("tracing.exporter")),
			SampleRatio: l.ratio("tracing.sample_ratio"),
		},
	}

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = defaults["http.addr"].(string)
	}

	authCfg, err := l.auth()
	if err != nil {
		return Config{}, err
	}
	cfg.Auth = authCfg
	if cfg.Auth.Enabled {
		logger.Info("auth enabled")
	}

	logger.Info("search config",
		"workers", cfg.Search.Workers,
		"max_days", cfg.Search.MaxDays,
		"budget_seconds", cfg.Search.Budget.Seconds(),
		"max_positions", cfg.Search.MaxPositions,
		"max_concurrent_per_ip", cfg.Search.MaxConcurrentPerIP,
	)
	logger.Info("TLE config",
		"fetch_enabled", cfg.TLE.EnableFetch,
		"source_url", cfg.TLE.SourceURL,
		"extra_urls", cfg.TLE.ExtraSourceURLs,
		"cache_dir", cfg.TLE.CacheDir,
		"max_age_seconds", cfg.TLE.MaxAge.Seconds(),
	)
	return cfg, nil
}

// EnvKey returns the environment variable name for a dotted key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (l *loader) warn(key, value string, def any) {
	l.logger.Warn("invalid "+EnvKey(key)+" value, using default", "value", value, "default", def)
}

func (l *loader) boolean(key string) bool {
	s := l.v.GetString(key)
	b, err := strconv.ParseBool(s)
	if err != nil {
		def := defaults[key].(bool)
		l.warn(key, s, def)
		return def
	}
	return b
}

func (l *loader) positiveInt(key string) int {
	s := l.v.GetString(key)
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		def := defaults[key].(int)
		l.warn(key, s, def)
		return def
	}
	return n
}

func (l *loader) float(key string) (float64, string, bool) {
	s := l.v.GetString(key)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, s, err == nil
}

func (l *loader) positiveFloat(key string) float64 {
	f, s, ok := l.float(key)
	if !ok || !(f > 0) {
		def := defaults[key].(float64)
		l.warn(key, s, def)
		return def
	}
	return f
}

func (l *loader) ratio(key string) float64 {
	f, s, ok := l.float(key)
	if !ok || f < 0 || f > 1 {
		def := defaults[key].(float64)
		l.warn(key, s, def)
		return def
	}
	return f
}

// duration accepts a Go duration string or a bare number of seconds.
func (l *loader) duration(key string, allowZero bool) time.Duration {
	s := strings.TrimSpace(l.v.GetString(key))
	d, err := time.ParseDuration(s)
	if err != nil {
		if n, nerr := strconv.Atoi(s); nerr == nil {
			d, err = time.Duration(n)*time.Second, nil
		}
	}
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		def, _ := time.ParseDuration(defaults[key].(string))
		l.warn(key, s, def.String())
		return def
	}
	return d
}

func (l *loader) level(key string) slog.Level {
	s := l.v.GetString(key)
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		l.warn(key, s, defaults[key])
		return slog.LevelInfo
	}
	return lvl
}

// list accepts a comma-separated string (environment) or a list (file).
func (l *loader) list(key string) []string {
	var raw []string
	if s, ok := l.v.Get(key).(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = l.v.GetStringSlice(key)
	}
	var out []string
	for _, u := range raw {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func (l *loader) model() transform.Model {
	m := transform.Model{
		EquatorialRadius: l.positiveFloat("model.equatorial_radius"),
		Eccentricity:     l.v.GetFloat64("model.eccentricity"),
		RotationRate:     l.positiveFloat("model.rotation_rate"),
		AxialTilt:        l.v.GetFloat64("model.axial_tilt"),
		AxialTiltRate:    l.v.GetFloat64("model.axial_tilt_rate"),
	}

	s := l.v.GetString("model.time_of_day")
	mode, ok := timesys.ParseMode(strings.ToLower(strings.TrimSpace(s)))
	if !ok {
		l.warn("model.time_of_day", s, defaults["model.time_of_day"])
	}
	m.TimeOfDay = mode

	if err := m.Validate(); err != nil {
		l.logger.Warn("invalid Earth model, using WGS84", "error", err)
		tod := m.TimeOfDay
		m = transform.WGS84
		m.TimeOfDay = tod
	}
	return m
}

func (l *loader) auth() (auth.Config, error) {
	cfg := auth.Config{}
	s := l.v.GetString("auth.enabled")
	enabled, err := strconv.ParseBool(s)
	if err != nil {
		return cfg, errors.New(EnvKey("auth.enabled") + " must be a boolean value (true/false/1/0)")
	}
	cfg.Enabled = enabled
	if cfg.Enabled {
		cfg.Token = l.v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New(EnvKey("auth.token") + " is required when auth is enabled")
		}
	}
	return cfg, nil
}
