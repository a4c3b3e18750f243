package config

import (
	"strings"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/bsaid97/go-glacier-merger/glacier"
	"github.com/bsaid97/go-glacier-merger/reconcile"
)

// EnvPrefix prefixes every environment override, e.g.
// GLACIERMERGE_TOLERANCE.
const EnvPrefix = "GLACIERMERGE"

// Config carries every tunable of a merge run. It is passed explicitly;
// nothing reads it from global state.
type Config struct {
	// Tolerance is the contact distance in grid cells of the coarser
	// domain.
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance"`
	// Border pads the merged domain, in grid cells.
	Border int `mapstructure:"border" yaml:"border"`
	// AreaPolicy is "trust" or "recompute".
	AreaPolicy string `mapstructure:"area_policy" yaml:"area_policy"`
	// UseIntersects reads pairwise intersections from IntersectsURL
	// instead of computing them.
	UseIntersects bool   `mapstructure:"use_intersects" yaml:"use_intersects"`
	IntersectsURL string `mapstructure:"intersects_url" yaml:"intersects_url"`
	// Workers bounds parallel tasks; 0 uses every CPU.
	Workers        int     `mapstructure:"workers" yaml:"workers"`
	BedShape       string  `mapstructure:"bed_shape" yaml:"bed_shape"`
	RoutingPenalty float64 `mapstructure:"routing_penalty" yaml:"routing_penalty"`
	LogLevel       string  `mapstructure:"log_level" yaml:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tolerance", 1.0)
	v.SetDefault("border", 40)
	v.SetDefault("area_policy", "trust")
	v.SetDefault("use_intersects", false)
	v.SetDefault("intersects_url", "")
	v.SetDefault("workers", 0)
	v.SetDefault("bed_shape", "parabolic")
	v.SetDefault("routing_penalty", 1.0)
	v.SetDefault("log_level", "info")
}

// Load reads path (when not empty, otherwise glaciermerge.yaml in the
// working directory if present), GLACIERMERGE_* environment variables and
// overrides, in increasing priority.
func Load(path string, overrides map[string]any) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config %s", path)
		}
	} else {
		v.SetConfigName("glaciermerge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, errors.Wrap(err, "reading glaciermerge.yaml")
			}
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.Tolerance <= 0 {
		errs = append(errs, errors.Newf("tolerance must be positive, got %g", c.Tolerance))
	}
	if c.Border < 0 {
		errs = append(errs, errors.Newf("border must not be negative, got %d", c.Border))
	}
	if c.Workers < 0 {
		errs = append(errs, errors.Newf("workers must not be negative, got %d", c.Workers))
	}
	if c.RoutingPenalty < 0 {
		errs = append(errs, errors.Newf("routing_penalty must not be negative, got %g", c.RoutingPenalty))
	}
	if _, err := reconcile.ParseAreaPolicy(c.AreaPolicy); err != nil {
		errs = append(errs, err)
	}
	if _, err := glacier.ParseBedShape(c.BedShape); err != nil {
		errs = append(errs, err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, errors.Wrapf(err, "log_level"))
	}
	if c.UseIntersects && c.IntersectsURL == "" {
		errs = append(errs, errors.New("use_intersects requires intersects_url"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Area returns the parsed area policy.
func (c Config) Area() reconcile.AreaPolicy {
	p, _ := reconcile.ParseAreaPolicy(c.AreaPolicy)
	return p
}

// DefaultBedShape returns the parsed bed shape.
func (c Config) DefaultBedShape() glacier.BedShape {
	b, _ := glacier.ParseBedShape(c.BedShape)
	return b
}

// Level returns the parsed log level.
func (c Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}

// Reconcile returns the reconciliation options.
func (c Config) Reconcile() reconcile.Options {
	return reconcile.Options{AreaPolicy: c.Area(), Border: c.Border}
}
