package neat

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
)

// populationSaveData holds the parts of a Population needed to resume a run.
// The Config is not saved; it is reloaded from the original file.
type populationSaveData struct {
	Population      map[int]*Genome // Genomes are stored without their Config
	Species         []savedSpecies
	GenomeToSpecies map[int]int
	SpeciesIndexer  int
	NextGenomeKey   int
	NodeKeyIndex    int
	Ancestors       map[int][]int
	Generation      int
	BestGenome      *Genome
	RandSeed        int64
}

// savedSpecies records members by key so they are relinked to the restored
// population instead of being decoded as separate copies.
type savedSpecies struct {
	Key             int
	Created         int
	LastImproved    int
	Representative  *Genome
	MemberKeys      []int
	Fitness         float64
	AdjustedFitness float64
	FitnessHistory  []float64
}

// detach returns a shallow copy of g without its config pointer.
func detach(g *Genome) *Genome {
	if g == nil {
		return nil
	}
	c := *g
	c.Config = nil
	return &c
}

// SaveCheckpoint saves the current state of the Population to a gzip
// compressed gob file. The random generator cannot be serialised, so it is
// reseeded from a value drawn from itself and that seed is stored; a run
// continued in memory and one restored from the file proceed identically.
func (p *Population) SaveCheckpoint(filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file '%s': %w", filePath, err)
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	if err := p.writeCheckpoint(gzWriter); err != nil {
		gzWriter.Close()
		return err
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush checkpoint '%s': %w", filePath, err)
	}
	return nil
}

func (p *Population) writeCheckpoint(w io.Writer) error {
	seed := p.Rand.Int63()
	p.Rand.Seed(seed)

	data := populationSaveData{
		Population:      make(map[int]*Genome, len(p.Population)),
		GenomeToSpecies: p.SpeciesSet.GenomeToSpecies,
		SpeciesIndexer:  p.SpeciesSet.Indexer,
		NextGenomeKey:   p.Reproduction.NextGenomeKey,
		NodeKeyIndex:    p.Config.Genome.NodeKeyIndex,
		Ancestors:       p.Reproduction.Ancestors,
		Generation:      p.Generation,
		BestGenome:      detach(p.BestGenome),
		RandSeed:        seed,
	}
	for key, g := range p.Population {
		data.Population[key] = detach(g)
	}
	for _, sid := range p.SpeciesSet.SortedKeys() {
		s := p.SpeciesSet.Species[sid]
		data.Species = append(data.Species, savedSpecies{
			Key:             s.Key,
			Created:         s.Created,
			LastImproved:    s.LastImproved,
			Representative:  detach(s.Representative),
			MemberKeys:      s.memberKeys(),
			Fitness:         s.Fitness,
			AdjustedFitness: s.AdjustedFitness,
			FitnessHistory:  s.FitnessHistory,
		})
	}

	if err := gob.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode population data: %w", err)
	}
	return nil
}

// LoadCheckpoint restores a Population from a checkpoint file. It requires
// the original configuration file path to reconstruct the Config object.
// Reporters are not saved and must be added again.
func LoadCheckpoint(checkpointPath string, configPath string) (*Population, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config '%s' for checkpoint: %w", configPath, err)
	}

	file, err := os.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file '%s': %w", checkpointPath, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for checkpoint: %w", err)
	}
	defer gzReader.Close()

	p, err := readCheckpoint(gzReader, config)
	if err != nil {
		return nil, fmt.Errorf("checkpoint '%s': %w", checkpointPath, err)
	}
	return p, nil
}

func readCheckpoint(r io.Reader, config *Config) (*Population, error) {
	var data populationSaveData
	if err := gob.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode population data: %w", err)
	}

	stagnation, err := NewStagnation(&config.Stagnation)
	if err != nil {
		return nil, fmt.Errorf("failed to re-initialize stagnation from loaded config: %w", err)
	}
	config.Genome.NodeKeyIndex = data.NodeKeyIndex

	// Gob does not restore the config pointer; re-link it.
	for _, g := range data.Population {
		g.Config = &config.Genome
	}
	if data.BestGenome != nil {
		data.BestGenome.Config = &config.Genome
	}

	reporters := &ReporterSet{}
	speciesSet := NewSpeciesSet(&config.SpeciesSet, reporters)
	speciesSet.Indexer = data.SpeciesIndexer
	if data.GenomeToSpecies != nil {
		speciesSet.GenomeToSpecies = data.GenomeToSpecies
	}
	for _, saved := range data.Species {
		s := NewSpecies(saved.Key, saved.Created)
		s.LastImproved = saved.LastImproved
		s.Fitness = saved.Fitness
		s.AdjustedFitness = saved.AdjustedFitness
		if saved.FitnessHistory != nil {
			s.FitnessHistory = saved.FitnessHistory
		}
		s.Representative = saved.Representative
		if s.Representative != nil {
			s.Representative.Config = &config.Genome
		}
		for _, gid := range saved.MemberKeys {
			g, ok := data.Population[gid]
			if !ok {
				return nil, fmt.Errorf("species %d references missing genome %d", saved.Key, gid)
			}
			s.Members[gid] = g
		}
		speciesSet.Species[s.Key] = s
	}

	reproduction := NewReproduction(&config.Reproduction, stagnation, reporters)
	reproduction.NextGenomeKey = data.NextGenomeKey
	if data.Ancestors != nil {
		reproduction.Ancestors = data.Ancestors
	}

	return &Population{
		Config:       config,
		Population:   data.Population,
		SpeciesSet:   speciesSet,
		Reproduction: reproduction,
		Stagnation:   stagnation,
		Reporters:    reporters,
		Generation:   data.Generation,
		BestGenome:   data.BestGenome,
		Rand:         rand.New(rand.NewSource(data.RandSeed)),
	}, nil
}

// --------------------------- Checkpointer ---------------------------

// Checkpointer is a Reporter that saves the population every Interval
// generations to "<Prefix><generation>".
type Checkpointer struct {
	BaseReporter
	Population *Population
	Interval   int
	Prefix     string
	Logger     *log.Logger

	current        int
	lastCheckpoint int
}

// NewCheckpointer creates a checkpointer for p. A non-positive interval disables it.
func NewCheckpointer(p *Population, interval int, prefix string, logger *log.Logger) *Checkpointer {
	if logger == nil {
		logger = log.New(os.Stdout, "", 0)
	}
	return &Checkpointer{
		Population:     p,
		Interval:       interval,
		Prefix:         prefix,
		Logger:         logger,
		lastCheckpoint: p.Generation - 1,
	}
}

func (c *Checkpointer) StartGeneration(generation int) {
	c.current = generation
}

func (c *Checkpointer) EndGeneration(*Config, map[int]*Genome, *SpeciesSet) {
	if c.Interval <= 0 || c.current-c.lastCheckpoint < c.Interval {
		return
	}
	path := fmt.Sprintf("%s%d", c.Prefix, c.current)
	if err := c.Population.SaveCheckpoint(path); err != nil {
		c.Logger.Printf("Checkpoint failed: %v", err)
		return
	}
	c.Logger.Printf("Saving checkpoint to %s", path)
	c.lastCheckpoint = c.current
}
