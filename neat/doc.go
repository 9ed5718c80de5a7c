// Package neat provides a Go implementation of the NeuroEvolution of Augmenting Topologies (NEAT) algorithm.
//
// NEAT is a genetic algorithm for the generation of evolving artificial neural networks.
// It alters both the weighting parameters and structures of networks, attempting to find
// a balance between the fitness of evolved solutions and their diversity.
//
// This implementation follows the neat-python implementation
// (https://github.com/CodeReclaimers/neat-python): the same INI configuration
// sections, negative input keys -1..-num_inputs and output keys 0..num_outputs-1.
// Every random decision draws from the Population's *rand.Rand, so a fixed
// seed reproduces a run.
//
// Basic usage:
//
//	config, err := neat.LoadConfig("path/to/config")
//	if err != nil {
//		log.Fatalf("Error loading config: %v", err)
//	}
//
//	pop, err := neat.NewPopulation(config, rand.New(rand.NewSource(42)))
//	if err != nil {
//		log.Fatalf("Error creating population: %v", err)
//	}
//	pop.AddReporter(neat.NewStdOutReporter(true, nil))
//
//	winner, err := pop.Run(ctx, evalGenomes, 100)
//	if err != nil {
//		log.Fatalf("Error running evolution: %v", err)
//	}
package neat
