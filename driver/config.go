package driver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding run settings,
// e.g. NEATRACING_WORKERS=8.
const EnvPrefix = "NEATRACING"

// Config holds the run settings of an evolution: how genomes are evaluated
// and how the run is driven. NEAT parameters live in the separate INI file.
type Config struct {
	// Scaling feeds region means at the genome's connected inputs instead of
	// the full flattened frame.
	Scaling bool `mapstructure:"scaling" yaml:"scaling"`
	// Quantize truncates region means to 8-bit intensities.
	Quantize bool `mapstructure:"quantize" yaml:"quantize"`
	// DeterministicSeed resets every episode with this seed when set.
	// Otherwise each episode draws its own seed from the driver.
	DeterministicSeed *int64 `mapstructure:"deterministic_seed" yaml:"deterministic_seed,omitempty"`
	// RunsPerGenome is the number of episodes averaged into a genome's fitness.
	RunsPerGenome int `mapstructure:"runs_per_genome" yaml:"runs_per_genome"`
	// Generations bounds the evolution; 0 runs until the fitness threshold.
	Generations int `mapstructure:"generations" yaml:"generations"`
	// MaxSteps truncates each episode.
	MaxSteps           int     `mapstructure:"max_steps" yaml:"max_steps"`
	LapCompletePercent float64 `mapstructure:"lap_complete_percent" yaml:"lap_complete_percent"`
	// Workers is the number of genomes evaluated concurrently.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// FailureFitness is assigned to genomes whose controller cannot be built
	// or fed, e.g. when it connects more inputs than the frame can be split into.
	FailureFitness float64 `mapstructure:"failure_fitness" yaml:"failure_fitness"`

	CheckpointInterval int    `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`
	CheckpointPrefix   string `mapstructure:"checkpoint_prefix" yaml:"checkpoint_prefix"`
	// ProgressAddr is the listen address of the progress server; empty disables it.
	ProgressAddr string `mapstructure:"progress_addr" yaml:"progress_addr"`
}

// DefaultConfig returns the settings of the classic run: scaled inputs,
// three random episodes of 500 steps per genome, fifty generations.
func DefaultConfig() Config {
	return Config{
		Scaling:            true,
		RunsPerGenome:      3,
		Generations:        50,
		MaxSteps:           500,
		LapCompletePercent: 0.95,
		Workers:            1,
		FailureFitness:     -1000,
		CheckpointInterval: 5,
		CheckpointPrefix:   "neat-checkpoint-",
	}
}

// LoadConfig reads run settings from a YAML file on top of DefaultConfig,
// then applies NEATRACING_* environment overrides. An empty path loads
// defaults and the environment only.
func LoadConfig(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigType("yaml")
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	// Defaults register every key so AutomaticEnv can override it on Unmarshal.
	defaults := DefaultConfig()
	vp.SetDefault("scaling", defaults.Scaling)
	vp.SetDefault("quantize", defaults.Quantize)
	vp.SetDefault("runs_per_genome", defaults.RunsPerGenome)
	vp.SetDefault("generations", defaults.Generations)
	vp.SetDefault("max_steps", defaults.MaxSteps)
	vp.SetDefault("lap_complete_percent", defaults.LapCompletePercent)
	vp.SetDefault("workers", defaults.Workers)
	vp.SetDefault("failure_fitness", defaults.FailureFitness)
	vp.SetDefault("checkpoint_interval", defaults.CheckpointInterval)
	vp.SetDefault("checkpoint_prefix", defaults.CheckpointPrefix)
	vp.SetDefault("progress_addr", defaults.ProgressAddr)
	if err := vp.BindEnv("deterministic_seed"); err != nil {
		return nil, err
	}

	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read run config %s: %w", path, err)
		}
	}

	config := &Config{}
	if err := vp.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode run config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.RunsPerGenome < 1 {
		errs = append(errs, fmt.Errorf("runs_per_genome must be at least 1, got %d", c.RunsPerGenome))
	}
	if c.Generations < 0 {
		errs = append(errs, fmt.Errorf("generations must not be negative, got %d", c.Generations))
	}
	if c.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("max_steps must be at least 1, got %d", c.MaxSteps))
	}
	if c.LapCompletePercent <= 0 || c.LapCompletePercent > 1 {
		errs = append(errs, fmt.Errorf("lap_complete_percent must be in (0, 1], got %g", c.LapCompletePercent))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.CheckpointInterval < 0 {
		errs = append(errs, fmt.Errorf("checkpoint_interval must not be negative, got %d", c.CheckpointInterval))
	}
	if c.CheckpointInterval > 0 && c.CheckpointPrefix == "" {
		errs = append(errs, errors.New("checkpoint_prefix is required when checkpointing"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid run config: %w", errors.Join(errs...))
	}
	return nil
}

// YAML renders the settings as a YAML document.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
