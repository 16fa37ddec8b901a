// Package config loads engine settings from an optional YAML file with
// environment overrides on top, so a bare container boots on defaults and
// deployments tune only what they need.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"roadscout/internal/model"
)

const fileMode = 0600

type Area struct {
	CenterLat float64 `yaml:"centerLat" json:"centerLat"`
	CenterLng float64 `yaml:"centerLng" json:"centerLng"`
	RadiusM   float64 `yaml:"radiusM" json:"radiusM"`
}

func (a Area) Center() model.GeoPoint { return model.GeoPoint{Lat: a.CenterLat, Lng: a.CenterLng} }

type Providers struct {
	OverpassURL    string  `yaml:"overpassUrl" json:"overpassUrl"`
	OverpassRPS    float64 `yaml:"overpassRps" json:"overpassRps"`
	OpenWeatherURL string  `yaml:"openWeatherUrl" json:"openWeatherUrl"`
	OpenWeatherKey string  `yaml:"openWeatherKey" json:"-"`
	TomTomURL      string  `yaml:"tomTomUrl" json:"tomTomUrl"`
	TomTomKey      string  `yaml:"tomTomKey" json:"-"`
	TrafficRadiusM float64 `yaml:"trafficRadiusM" json:"trafficRadiusM"`
}

// Sources configures where the offline signal layers read from. Empty
// values fall back to built-in behavior: no risk surface, no flood zones,
// synthetic disengagement events.
type Sources struct {
	RiskSource    string `yaml:"riskSource" json:"riskSource"` // GeoJSON path or "db.collection"
	MongoURI      string `yaml:"mongoUri" json:"-"`
	FloodZones    string `yaml:"floodZones" json:"floodZones"` // GeoJSON path
	DisengageDSN  string `yaml:"disengageDsn" json:"-"`
	DisengageCSV  string `yaml:"disengageCsv" json:"disengageCsv,omitempty"`
	SyntheticSeed int64  `yaml:"syntheticSeed" json:"syntheticSeed"`
}

type Synth struct {
	MaxCandidates int     `yaml:"maxCandidates" json:"maxCandidates"`
	MaxIterations int     `yaml:"maxIterations" json:"maxIterations"`
	TimeBudgetMs  int     `yaml:"timeBudgetMs" json:"timeBudgetMs"`
	Restarts      int     `yaml:"restarts" json:"restarts"`
	Epsilon       float64 `yaml:"epsilon" json:"epsilon"`
}

type Refresh struct {
	TickSec        int `yaml:"tickSec" json:"tickSec"`
	SnapshotTTLSec int `yaml:"snapshotTtlSec" json:"snapshotTtlSec"`
}

type Config struct {
	Listen          string             `yaml:"listen" json:"listen"`
	LogLevel        string             `yaml:"logLevel" json:"logLevel"`
	Area            Area               `yaml:"area" json:"area"`
	DepotLat        float64            `yaml:"depotLat" json:"depotLat"`
	DepotLng        float64            `yaml:"depotLng" json:"depotLng"`
	Weights         map[string]float64 `yaml:"weights" json:"weights"`
	LayerTimeoutSec int                `yaml:"layerTimeoutSec" json:"layerTimeoutSec"`
	Providers       Providers          `yaml:"providers" json:"providers"`
	Sources         Sources            `yaml:"sources" json:"sources"`
	Synth           Synth              `yaml:"synth" json:"synth"`
	Refresh         Refresh            `yaml:"refresh" json:"refresh"`
}

// Default returns the Tampa pilot settings the engine shipped with: a 3 km
// collection network around the depot, 10 km traffic lookout, 30 mph
// average collection speed assumptions downstream.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Area: Area{
			CenterLat: 28.0543,
			CenterLng: -82.4597,
			RadiusM:   3000,
		},
		DepotLat:        28.0543,
		DepotLng:        -82.4597,
		LayerTimeoutSec: 10,
		Providers: Providers{
			OverpassURL:    "https://overpass-api.de/api/interpreter",
			OverpassRPS:    0.5,
			OpenWeatherURL: "https://api.openweathermap.org",
			TomTomURL:      "https://api.tomtom.com",
			TrafficRadiusM: 10000,
		},
		Synth: Synth{
			MaxCandidates: 3,
			MaxIterations: 5000,
			TimeBudgetMs:  2000,
			Restarts:      8,
			Epsilon:       0.15,
		},
		Refresh: Refresh{
			TickSec:        30,
			SnapshotTTLSec: 300,
		},
	}
}

// Load builds the effective config: defaults, then the YAML file when path
// is set, then environment overrides, then validation.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(model.ErrConfiguration, "read config %s: %v", path, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, errors.Wrapf(model.ErrConfiguration, "parse config %s: %v", path, err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the config as YAML, mostly a dev helper to bootstrap a file
// to edit.
func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("OVERPASS_URL"); v != "" {
		c.Providers.OverpassURL = v
	}
	if v := os.Getenv("OPENWEATHER_API_KEY"); v != "" {
		c.Providers.OpenWeatherKey = v
	}
	if v := os.Getenv("TOMTOM_API_KEY"); v != "" {
		c.Providers.TomTomKey = v
	}
	if v := os.Getenv("RISK_SOURCE"); v != "" {
		c.Sources.RiskSource = v
	}
	if v := os.Getenv("MONGO_URL"); v != "" {
		c.Sources.MongoURI = v
	}
	if v := os.Getenv("FLOOD_ZONES"); v != "" {
		c.Sources.FloodZones = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Sources.DisengageDSN = v
	}
	if v := os.Getenv("DISENGAGE_CSV"); v != "" {
		c.Sources.DisengageCSV = v
	}
	if v := os.Getenv("SNAPSHOT_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Refresh.SnapshotTTLSec = n
		}
	}
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.Wrap(model.ErrConfiguration, "listen address required")
	}
	if c.Area.CenterLat < -90 || c.Area.CenterLat > 90 || c.Area.CenterLng < -180 || c.Area.CenterLng > 180 {
		return errors.Wrapf(model.ErrConfiguration, "area center %.4f,%.4f out of range", c.Area.CenterLat, c.Area.CenterLng)
	}
	if c.Area.RadiusM <= 0 || c.Area.RadiusM > 10000 {
		return errors.Wrapf(model.ErrConfiguration, "area radius %.0f m outside (0, 10000]", c.Area.RadiusM)
	}
	for name, w := range c.Weights {
		if w < 0 {
			return errors.Wrapf(model.ErrConfiguration, "negative weight %.3f for layer %s", w, name)
		}
	}
	if c.Synth.Epsilon < 0 || c.Synth.Epsilon >= 1 {
		return errors.Wrapf(model.ErrConfiguration, "epsilon %.3f outside [0, 1)", c.Synth.Epsilon)
	}
	return nil
}

func (c *Config) LayerTimeout() time.Duration {
	if c.LayerTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.LayerTimeoutSec) * time.Second
}

func (c *Config) SnapshotTTL() time.Duration {
	if c.Refresh.SnapshotTTLSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Refresh.SnapshotTTLSec) * time.Second
}

func (c *Config) Depot() model.GeoPoint { return model.GeoPoint{Lat: c.DepotLat, Lng: c.DepotLng} }
