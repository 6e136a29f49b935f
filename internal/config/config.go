package config

import (
	"strings"

	"dashboard/internal/models"
	"dashboard/internal/render"

	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/ini.v1"
)

// Config is every setting the server reads at startup. Values are layered:
// defaults, then the INI file named by --config, then explicit flags.
type Config struct {
	Addr      string
	RateLimit float64
	LogLevel  string

	RecordsPath   string
	PositionsPath string

	MapBounds  map[models.Metric]float64
	BasemapURL string

	Defaults models.Selectors

	Format string
	CDN    string
}

func Default() *Config {
	return &Config{
		Addr:          ":8050",
		RateLimit:     20,
		LogLevel:      "info",
		// data/README.md says where both files come from.
		RecordsPath:   "data/gapminder.csv",
		PositionsPath: "data/world_country.csv",
		MapBounds: map[models.Metric]float64{
			models.Population:     2000,
			models.LifeExpectancy: 300,
			models.GDPPerCapita:   500,
		},
		Defaults: models.Selectors{Year: 1957, Metric: models.Population},
		Format:   string(render.FormatHTML),
		CDN:      render.DefaultCDN,
	}
}

// LoadFile overlays the settings present in an INI file onto cfg. Keys that
// are absent keep their current value. source is a path or raw []byte.
func LoadFile(source interface{}, cfg *Config) error {
	f, err := ini.Load(source)
	if err != nil {
		return errors.Wrap(err, "error loading config")
	}

	server := f.Section("server")
	cfg.Addr = server.Key("addr").MustString(cfg.Addr)
	cfg.RateLimit = server.Key("rate_limit").MustFloat64(cfg.RateLimit)
	cfg.LogLevel = server.Key("log_level").MustString(cfg.LogLevel)

	data := f.Section("data")
	cfg.RecordsPath = data.Key("records").MustString(cfg.RecordsPath)
	cfg.PositionsPath = data.Key("positions").MustString(cfg.PositionsPath)

	mp := f.Section("map")
	for _, m := range models.Metrics {
		if !mp.HasKey(string(m)) {
			continue
		}
		v, err := mp.Key(string(m)).Float64()
		if err != nil {
			return errors.Wrapf(err, "[map] %s", m)
		}
		cfg.MapBounds[m] = v
	}
	cfg.BasemapURL = mp.Key("basemap").MustString(cfg.BasemapURL)

	sel := f.Section("selectors")
	cfg.Defaults.Year = sel.Key("year").MustInt(cfg.Defaults.Year)
	if v := sel.Key("metric").String(); v != "" {
		cfg.Defaults.Metric = models.Metric(v)
	}
	cfg.Defaults.Country = sel.Key("country").MustString(cfg.Defaults.Country)

	rnd := f.Section("render")
	cfg.Format = rnd.Key("format").MustString(cfg.Format)
	cfg.CDN = rnd.Key("cdn").MustString(cfg.CDN)
	return nil
}

// AddFlags registers the command-line overrides on cmd.
func AddFlags(cmd *cobra.Command) {
	d := Default()
	cmd.Flags().String("config", "", "INI config file")
	cmd.Flags().String("addr", d.Addr, "listen address")
	cmd.Flags().String("records", d.RecordsPath, "Gapminder records CSV")
	cmd.Flags().String("positions", d.PositionsPath, "country positions CSV")
	cmd.Flags().String("log-level", d.LogLevel, "debug, info, warn, error or off")
	cmd.Flags().String("format", d.Format, "chart format, 'html' or 'svg'")
}

// Load builds the effective configuration for cmd.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := Default()
	if fname, _ := cmd.Flags().GetString("config"); fname != "" {
		if err := LoadFile(fname, cfg); err != nil {
			return nil, err
		}
	}

	// Only flags set explicitly win over the file.
	for flag, dst := range map[string]*string{
		"addr":      &cfg.Addr,
		"records":   &cfg.RecordsPath,
		"positions": &cfg.PositionsPath,
		"log-level": &cfg.LogLevel,
		"format":    &cfg.Format,
	} {
		if cmd.Flags().Changed(flag) {
			*dst, _ = cmd.Flags().GetString(flag)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate normalises the metric and format names and rejects settings the
// server cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.RateLimit < 0 {
		return errors.Errorf("rate_limit must not be negative, got %v", c.RateLimit)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.RecordsPath == "" || c.PositionsPath == "" {
		return errors.New("records and positions paths are required")
	}
	for _, m := range models.Metrics {
		if b, ok := c.MapBounds[m]; !ok || b <= 0 {
			return errors.Errorf("map bound for %s must be positive, got %v", m, b)
		}
	}

	m, err := models.ParseMetric(string(c.Defaults.Metric))
	if err != nil {
		return errors.Wrap(err, "default metric")
	}
	c.Defaults.Metric = m
	if c.Defaults.Year <= 0 {
		return errors.Errorf("default year must be positive, got %d", c.Defaults.Year)
	}

	f, err := render.ParseFormat(c.Format)
	if err != nil {
		return err
	}
	c.Format = string(f)
	return nil
}

// ParseLevel maps a level name onto a gommon log level.
func ParseLevel(s string) (log.Lvl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG, nil
	case "info", "":
		return log.INFO, nil
	case "warn", "warning":
		return log.WARN, nil
	case "error":
		return log.ERROR, nil
	case "off":
		return log.OFF, nil
	}
	return 0, errors.Errorf("unknown log level %q", s)
}
