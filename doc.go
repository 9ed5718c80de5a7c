// Package neatracing evolves NEAT controllers that drive a simulated
// top-down race car from 96x96 camera frames.
//
// The controller does not see raw pixels. Package scale partitions each
// grayscale frame into as many regions as the genome has active inputs,
// averages every region and feeds one value per active input, so small
// genomes get a coarse view and growing genomes a finer one.
//
// Packages:
//
//	scale           frame partitioning, region averaging and observation scaling
//	neat            the NEAT algorithm (config, genomes, species, reproduction, reporters)
//	neat/nn         feed-forward phenotype networks
//	neat/visualize  fitness and speciation plots
//	racing          the car racing environment
//	driver          genome evaluation over episodes, replay of a winner
//	progress        live generation statistics over HTTP and websockets
//	viewer          terminal rendering of replays
//
// See examples/carracing for a complete run.
package neatracing
