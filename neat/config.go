package neat

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Config stores the configuration parameters for the NEAT algorithm.
type Config struct {
	Neat         NeatConfig
	Genome       GenomeConfig
	Reproduction ReproductionConfig
	SpeciesSet   SpeciesSetConfig
	Stagnation   StagnationConfig
}

// NeatConfig holds parameters specific to the NEAT algorithm itself.
type NeatConfig struct {
	PopSize              int     `ini:"pop_size"`
	FitnessCriterion     string  `ini:"fitness_criterion"` // "max", "min" or "mean" over the population
	FitnessThreshold     float64 `ini:"fitness_threshold"`
	ResetOnExtinction    bool    `ini:"reset_on_extinction"`
	NoFitnessTermination bool    `ini:"no_fitness_termination"`
}

// GenomeConfig holds parameters specific to the structure and mutation of genomes.
type GenomeConfig struct {
	// --- Top-level Genome parameters ---
	NumInputs                        int     `ini:"num_inputs"`
	NumOutputs                       int     `ini:"num_outputs"`
	NumHidden                        int     `ini:"num_hidden"`
	FeedForward                      bool    `ini:"feed_forward"` // If true, recurrent connections are disallowed
	CompatibilityDisjointCoefficient float64 `ini:"compatibility_disjoint_coefficient"`
	CompatibilityWeightCoefficient   float64 `ini:"compatibility_weight_coefficient"`
	ConnAddProb                      float64 `ini:"conn_add_prob"`
	ConnDeleteProb                   float64 `ini:"conn_delete_prob"`
	NodeAddProb                      float64 `ini:"node_add_prob"`
	NodeDeleteProb                   float64 `ini:"node_delete_prob"`
	SingleStructuralMutation         bool    `ini:"single_structural_mutation"` // Python default: false
	StructuralMutationSurer          string  `ini:"structural_mutation_surer"`  // Python default: 'default'
	InitialConnection                string  `ini:"initial_connection"`         // Python default: 'unconnected'

	// --- Node Gene parameters ---
	BiasInitMean    float64 `ini:"bias_init_mean"`
	BiasInitStdev   float64 `ini:"bias_init_stdev"`
	BiasInitType    string  `ini:"bias_init_type"` // Default: 'gaussian'
	BiasReplaceRate float64 `ini:"bias_replace_rate"`
	BiasMutateRate  float64 `ini:"bias_mutate_rate"`
	BiasMutatePower float64 `ini:"bias_mutate_power"`
	BiasMaxValue    float64 `ini:"bias_max_value"`
	BiasMinValue    float64 `ini:"bias_min_value"`

	ResponseInitMean    float64 `ini:"response_init_mean"`
	ResponseInitStdev   float64 `ini:"response_init_stdev"`
	ResponseInitType    string  `ini:"response_init_type"` // Default: 'gaussian'
	ResponseReplaceRate float64 `ini:"response_replace_rate"`
	ResponseMutateRate  float64 `ini:"response_mutate_rate"`
	ResponseMutatePower float64 `ini:"response_mutate_power"`
	ResponseMaxValue    float64 `ini:"response_max_value"`
	ResponseMinValue    float64 `ini:"response_min_value"`

	ActivationDefault    string   `ini:"activation_default"`           // Default: 'random'
	ActivationOptions    []string `ini:"activation_options" delim:" "` // Space-separated list
	ActivationMutateRate float64  `ini:"activation_mutate_rate"`

	AggregationDefault    string   `ini:"aggregation_default"`           // Default: 'random'
	AggregationOptions    []string `ini:"aggregation_options" delim:" "` // Space-separated list
	AggregationMutateRate float64  `ini:"aggregation_mutate_rate"`

	// --- Connection Gene parameters ---
	WeightInitMean    float64 `ini:"weight_init_mean"`
	WeightInitStdev   float64 `ini:"weight_init_stdev"`
	WeightInitType    string  `ini:"weight_init_type"` // Default: 'gaussian'
	WeightReplaceRate float64 `ini:"weight_replace_rate"`
	WeightMutateRate  float64 `ini:"weight_mutate_rate"`
	WeightMutatePower float64 `ini:"weight_mutate_power"`
	WeightMaxValue    float64 `ini:"weight_max_value"`
	WeightMinValue    float64 `ini:"weight_min_value"`

	EnabledDefault        string  `ini:"enabled_default"` // Default: 'True'
	EnabledMutateRate     float64 `ini:"enabled_mutate_rate"`
	EnabledRateToTrueAdd  float64 `ini:"enabled_rate_to_true_add"`  // Python default: 0.0
	EnabledRateToFalseAdd float64 `ini:"enabled_rate_to_false_add"` // Python default: 0.0

	// --- Calculated/Derived ---
	InputKeys          []int   // Derived: -1 .. -NumInputs
	OutputKeys         []int   // Derived: 0 .. NumOutputs-1
	NodeKeyIndex       int     // Derived, used for assigning new node keys
	ConnectionFraction float64 // Derived from "partial* <fraction>" initial connections
}

// ReproductionConfig holds parameters related to reproduction.
type ReproductionConfig struct {
	Elitism           int     `ini:"elitism"`            // Python default: 0
	SurvivalThreshold float64 `ini:"survival_threshold"` // Python default: 0.2
	MinSpeciesSize    int     `ini:"min_species_size"`   // Python default: 1
}

// SpeciesSetConfig holds parameters related to speciation.
type SpeciesSetConfig struct {
	CompatibilityThreshold float64 `ini:"compatibility_threshold"`
}

// StagnationConfig holds parameters related to species stagnation.
type StagnationConfig struct {
	SpeciesFitnessFunc string `ini:"species_fitness_func"` // Python default: 'mean'
	MaxStagnation      int    `ini:"max_stagnation"`       // Python default: 15
	SpeciesElitism     int    `ini:"species_elitism"`      // Python default: 0
}

// LoadConfig loads configuration parameters from an INI file.
func LoadConfig(filePath string) (*Config, error) {
	config, err := ParseConfig(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", filePath, err)
	}
	return config, nil
}

// ParseConfig reads configuration from any source accepted by ini.Load:
// a file name, raw []byte contents or an io.ReadCloser.
func ParseConfig(source interface{}) (*Config, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true, // Values keep '#' and ';', cleanIniString strips them
		UnescapeValueCommentSymbols: true,
	}, source)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	sections := []struct {
		name   string
		target interface{}
	}{
		{"NEAT", &config.Neat},
		{"DefaultGenome", &config.Genome},
		{"DefaultReproduction", &config.Reproduction},
		{"DefaultSpeciesSet", &config.SpeciesSet},
		{"DefaultStagnation", &config.Stagnation},
	}
	for _, sec := range sections {
		if !cfg.HasSection(sec.name) {
			return nil, fmt.Errorf("missing [%s] section", sec.name)
		}
		if err := cfg.Section(sec.name).MapTo(sec.target); err != nil {
			return nil, fmt.Errorf("failed to map [%s] section: %w", sec.name, err)
		}
	}

	config.clean()
	config.applyDefaults()
	if err := config.derive(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// clean strips trailing comments and whitespace from string values.
func (config *Config) clean() {
	g := &config.Genome
	for _, s := range []*string{
		&g.BiasInitType, &g.ResponseInitType, &g.WeightInitType,
		&g.ActivationDefault, &g.AggregationDefault, &g.EnabledDefault,
		&g.InitialConnection, &g.StructuralMutationSurer,
		&config.Neat.FitnessCriterion, &config.Stagnation.SpeciesFitnessFunc,
	} {
		*s = cleanIniString(*s)
	}
	g.ActivationOptions = cleanOptions(g.ActivationOptions)
	g.AggregationOptions = cleanOptions(g.AggregationOptions)
	config.Neat.FitnessCriterion = strings.ToLower(config.Neat.FitnessCriterion)
	config.Stagnation.SpeciesFitnessFunc = strings.ToLower(config.Stagnation.SpeciesFitnessFunc)
}

// applyDefaults fills parameters that neat-python treats as optional.
func (config *Config) applyDefaults() {
	g := &config.Genome
	for _, s := range []*string{&g.BiasInitType, &g.ResponseInitType, &g.WeightInitType} {
		if *s == "" {
			*s = "gaussian"
		}
	}
	if g.ActivationDefault == "" {
		g.ActivationDefault = "random"
	}
	if g.AggregationDefault == "" {
		g.AggregationDefault = "random"
	}
	if g.EnabledDefault == "" {
		g.EnabledDefault = "True"
	}
	if g.InitialConnection == "" {
		g.InitialConnection = "unconnected"
	}
	if config.Neat.FitnessCriterion == "" {
		config.Neat.FitnessCriterion = "max"
	}
	if config.Reproduction.MinSpeciesSize == 0 {
		config.Reproduction.MinSpeciesSize = 1
	}
	if config.Reproduction.SurvivalThreshold == 0 {
		config.Reproduction.SurvivalThreshold = 0.2
	}
	if config.Stagnation.SpeciesFitnessFunc == "" {
		config.Stagnation.SpeciesFitnessFunc = "mean"
	}
	if config.Stagnation.MaxStagnation == 0 {
		config.Stagnation.MaxStagnation = 15
	}
}

// derive computes node keys and the partial connection fraction.
func (config *Config) derive() error {
	g := &config.Genome
	g.InputKeys = make([]int, g.NumInputs)
	for i := range g.InputKeys {
		g.InputKeys[i] = -(i + 1)
	}
	g.OutputKeys = make([]int, g.NumOutputs)
	for i := range g.OutputKeys {
		g.OutputKeys[i] = i
	}
	// Hidden node keys start after the output nodes.
	g.NodeKeyIndex = g.NumOutputs

	g.ConnectionFraction = 1.0
	fields := strings.Fields(g.InitialConnection)
	if strings.HasPrefix(fields[0], "partial") {
		if len(fields) != 2 {
			return fmt.Errorf("config error: initial_connection '%s' needs a connection fraction, e.g. 'partial_direct 0.5'", g.InitialConnection)
		}
		fraction, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || fraction < 0 || fraction > 1 {
			return fmt.Errorf("config error: invalid partial connection fraction '%s'", fields[1])
		}
		g.ConnectionFraction = fraction
	}
	return nil
}

func (config *Config) validate() error {
	g := &config.Genome
	if config.Neat.PopSize <= 0 {
		return fmt.Errorf("config error: pop_size must be positive")
	}
	if g.NumInputs <= 0 {
		return fmt.Errorf("config error: num_inputs must be positive")
	}
	if g.NumOutputs <= 0 {
		return fmt.Errorf("config error: num_outputs must be positive")
	}
	if g.NumHidden < 0 {
		return fmt.Errorf("config error: num_hidden cannot be negative")
	}

	if len(g.ActivationOptions) == 0 {
		return fmt.Errorf("config error: activation_options must be specified")
	}
	for _, name := range g.ActivationOptions {
		if _, err := GetActivation(name); err != nil {
			return fmt.Errorf("config error: activation_options: %w", err)
		}
	}
	if len(g.AggregationOptions) == 0 {
		return fmt.Errorf("config error: aggregation_options must be specified")
	}
	for _, name := range g.AggregationOptions {
		if _, err := GetAggregation(name); err != nil {
			return fmt.Errorf("config error: aggregation_options: %w", err)
		}
	}

	if g.CompatibilityDisjointCoefficient < 0 {
		return fmt.Errorf("config error: compatibility_disjoint_coefficient cannot be negative")
	}
	if g.CompatibilityWeightCoefficient < 0 {
		return fmt.Errorf("config error: compatibility_weight_coefficient cannot be negative")
	}
	probabilities := map[string]float64{
		"conn_add_prob":    g.ConnAddProb,
		"conn_delete_prob": g.ConnDeleteProb,
		"node_add_prob":    g.NodeAddProb,
		"node_delete_prob": g.NodeDeleteProb,
	}
	for name, p := range probabilities {
		if p < 0 || p > 1 {
			return fmt.Errorf("config error: %s must be between 0 and 1", name)
		}
	}
	if g.BiasMaxValue < g.BiasMinValue {
		return fmt.Errorf("config error: bias_max_value cannot be less than bias_min_value")
	}
	if g.ResponseMaxValue < g.ResponseMinValue {
		return fmt.Errorf("config error: response_max_value cannot be less than response_min_value")
	}
	if g.WeightMaxValue < g.WeightMinValue {
		return fmt.Errorf("config error: weight_max_value cannot be less than weight_min_value")
	}
	for name, initType := range map[string]string{
		"bias_init_type":     g.BiasInitType,
		"response_init_type": g.ResponseInitType,
		"weight_init_type":   g.WeightInitType,
	} {
		switch strings.ToLower(initType) {
		case "gaussian", "normal", "uniform":
		default:
			return fmt.Errorf("config error: invalid %s '%s'", name, initType)
		}
	}
	if !validBoolAttribute(g.EnabledDefault) {
		return fmt.Errorf("config error: invalid enabled_default '%s'", g.EnabledDefault)
	}

	if config.Reproduction.SurvivalThreshold < 0 || config.Reproduction.SurvivalThreshold > 1 {
		return fmt.Errorf("config error: survival_threshold must be between 0 and 1")
	}
	if config.Reproduction.MinSpeciesSize <= 0 {
		return fmt.Errorf("config error: min_species_size must be positive")
	}
	if config.SpeciesSet.CompatibilityThreshold < 0 {
		return fmt.Errorf("config error: compatibility_threshold cannot be negative")
	}
	if config.Stagnation.MaxStagnation <= 0 {
		return fmt.Errorf("config error: max_stagnation must be positive")
	}

	switch config.Neat.FitnessCriterion {
	case "max", "min", "mean":
	default:
		return fmt.Errorf("config error: invalid fitness_criterion '%s', must be one of 'max', 'min', 'mean'", config.Neat.FitnessCriterion)
	}
	if _, ok := StatFunctions[config.Stagnation.SpeciesFitnessFunc]; !ok {
		return fmt.Errorf("config error: invalid species_fitness_func '%s'", config.Stagnation.SpeciesFitnessFunc)
	}

	validConnections := map[string]bool{
		"unconnected": true, "fs_neat_nohidden": true, "fs_neat": true, "fs_neat_hidden": true,
		"full_nodirect": true, "full": true, "full_direct": true,
		"partial_nodirect": true, "partial": true, "partial_direct": true,
	}
	baseConnection := strings.Fields(g.InitialConnection)[0]
	if !validConnections[baseConnection] {
		return fmt.Errorf("config error: invalid initial_connection type '%s'", baseConnection)
	}
	return nil
}

// FitnessCriterionFunc returns the statistic compared against fitness_threshold.
func (config *Config) FitnessCriterionFunc() func([]float64) float64 {
	return StatFunctions[config.Neat.FitnessCriterion]
}

// GetNewNodeKey returns the next unused hidden node key.
func (gc *GenomeConfig) GetNewNodeKey() int {
	key := gc.NodeKeyIndex
	gc.NodeKeyIndex++
	return key
}

// cleanIniString removes inline comments and trims whitespace from a string read from INI.
func cleanIniString(s string) string {
	if idx := strings.IndexAny(s, "#;"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// cleanOptions trims space-delimited list values, stopping at an inline comment.
func cleanOptions(opts []string) []string {
	out := make([]string, 0, len(opts))
	for _, opt := range opts {
		opt = strings.TrimSpace(opt)
		if strings.HasPrefix(opt, "#") || strings.HasPrefix(opt, ";") {
			break
		}
		if opt = cleanIniString(opt); opt != "" {
			out = append(out, opt)
		}
	}
	return out
}
