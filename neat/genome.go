package neat

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// Genome represents an individual organism in the population.
// It consists of NodeGenes and ConnectionGenes.
type Genome struct {
	Key         int                               // Unique identifier for this genome.
	Nodes       map[int]*NodeGene                 // Output and hidden nodes; inputs are implicit
	Connections map[ConnectionKey]*ConnectionGene // Map connection key -> ConnectionGene
	Fitness     float64
	// Config is re-linked after checkpoint loading; gob does not persist it.
	Config *GenomeConfig
}

// NewGenome creates an empty Genome with the specified key and config reference.
func NewGenome(key int, config *GenomeConfig) *Genome {
	return &Genome{
		Key:         key,
		Nodes:       make(map[int]*NodeGene),
		Connections: make(map[ConnectionKey]*ConnectionGene),
		Config:      config,
	}
}

// Copy returns a deep copy of the genome sharing the same config.
func (g *Genome) Copy() *Genome {
	c := NewGenome(g.Key, g.Config)
	c.Fitness = g.Fitness
	for k, n := range g.Nodes {
		c.Nodes[k] = n.Copy()
	}
	for k, conn := range g.Connections {
		c.Connections[k] = conn.Copy()
	}
	return c
}

// ConfigureNew initializes output and hidden nodes and the initial
// connections named by initial_connection.
func (g *Genome) ConfigureNew(rng *rand.Rand) {
	for _, nodeKey := range g.Config.OutputKeys {
		g.Nodes[nodeKey] = NewNodeGene(nodeKey, g.Config, rng)
	}

	hiddenKeys := make([]int, 0, g.Config.NumHidden)
	for i := 0; i < g.Config.NumHidden; i++ {
		nodeKey := g.Config.GetNewNodeKey()
		if _, exists := g.Nodes[nodeKey]; exists {
			panic(fmt.Sprintf("attempted to create duplicate node key: %d", nodeKey))
		}
		g.Nodes[nodeKey] = NewNodeGene(nodeKey, g.Config, rng)
		hiddenKeys = append(hiddenKeys, nodeKey)
	}

	g.setupInitialConnections(hiddenKeys, rng)
}

// setupInitialConnections follows neat-python's initial connection schemes.
// The "partial" variants keep each candidate connection with probability
// ConnectionFraction.
func (g *Genome) setupInitialConnections(hiddenKeys []int, rng *rand.Rand) {
	inputs := g.Config.InputKeys
	outputs := g.Config.OutputKeys

	connType := strings.Fields(g.Config.InitialConnection)[0]
	fraction := 1.0
	if strings.HasPrefix(connType, "partial") {
		fraction = g.Config.ConnectionFraction
	}

	switch connType {
	case "unconnected":
	case "fs_neat_nohidden", "fs_neat":
		// One randomly chosen input feeds every output.
		in := inputs[rng.Intn(len(inputs))]
		g.connectAll([]int{in}, outputs, 1.0, rng)
	case "fs_neat_hidden":
		in := inputs[rng.Intn(len(inputs))]
		g.connectAll([]int{in}, append(append([]int{}, hiddenKeys...), outputs...), 1.0, rng)
	case "full_nodirect", "full", "partial_nodirect", "partial":
		if len(hiddenKeys) == 0 {
			// Without hidden nodes there is nothing to route through.
			g.connectAll(inputs, outputs, fraction, rng)
			return
		}
		g.connectAll(inputs, hiddenKeys, fraction, rng)
		g.connectAll(hiddenKeys, outputs, fraction, rng)
	case "full_direct", "partial_direct":
		g.connectAll(inputs, hiddenKeys, fraction, rng)
		g.connectAll(hiddenKeys, outputs, fraction, rng)
		g.connectAll(inputs, outputs, fraction, rng)
	default:
		// LoadConfig rejects unknown types.
		panic(fmt.Sprintf("invalid initial_connection type in genome configuration: %s", g.Config.InitialConnection))
	}
}

// connectAll adds a connection from every node in from to every node in to,
// each kept with probability fraction.
func (g *Genome) connectAll(from, to []int, fraction float64, rng *rand.Rand) {
	for _, in := range from {
		for _, out := range to {
			if fraction < 1.0 && rng.Float64() >= fraction {
				continue
			}
			key := ConnectionKey{InNodeID: in, OutNodeID: out}
			g.Connections[key] = NewConnectionGene(key, g.Config, rng)
		}
	}
}

// ConfigureCrossover fills g with genes combined from two parents. Matching
// genes mix attributes; disjoint and excess genes come from the fitter parent.
func (g *Genome) ConfigureCrossover(parent1, parent2 *Genome, rng *rand.Rand) {
	if parent1.Fitness < parent2.Fitness {
		parent1, parent2 = parent2, parent1
	}
	g.Config = parent1.Config

	for _, key := range sortedConnectionKeys(parent1.Connections) {
		conn1 := parent1.Connections[key]
		if conn2, ok := parent2.Connections[key]; ok {
			g.Connections[key] = conn1.Crossover(conn2, rng)
		} else {
			g.Connections[key] = conn1.Copy()
		}
	}

	for _, key := range sortedNodeKeys(parent1.Nodes) {
		node1 := parent1.Nodes[key]
		if node2, ok := parent2.Nodes[key]; ok {
			g.Nodes[key] = node1.Crossover(node2, rng)
		} else {
			g.Nodes[key] = node1.Copy()
		}
	}
}

// Mutate applies structural mutations followed by attribute mutations.
// With single_structural_mutation at most one structural change is made,
// chosen in proportion to the configured probabilities.
func (g *Genome) Mutate(rng *rand.Rand) {
	cfg := g.Config
	if cfg.SingleStructuralMutation {
		div := cfg.NodeAddProb + cfg.NodeDeleteProb + cfg.ConnAddProb + cfg.ConnDeleteProb
		if div < 1 {
			div = 1
		}
		r := rng.Float64()
		switch {
		case r < cfg.NodeAddProb/div:
			g.mutateAddNode(rng)
		case r < (cfg.NodeAddProb+cfg.NodeDeleteProb)/div:
			g.mutateDeleteNode(rng)
		case r < (cfg.NodeAddProb+cfg.NodeDeleteProb+cfg.ConnAddProb)/div:
			g.mutateAddConnection(rng)
		case r < (cfg.NodeAddProb+cfg.NodeDeleteProb+cfg.ConnAddProb+cfg.ConnDeleteProb)/div:
			g.mutateDeleteConnection(rng)
		}
	} else {
		if rng.Float64() < cfg.NodeAddProb {
			g.mutateAddNode(rng)
		}
		if rng.Float64() < cfg.NodeDeleteProb {
			g.mutateDeleteNode(rng)
		}
		if rng.Float64() < cfg.ConnAddProb {
			g.mutateAddConnection(rng)
		}
		if rng.Float64() < cfg.ConnDeleteProb {
			g.mutateDeleteConnection(rng)
		}
	}

	for _, key := range sortedNodeKeys(g.Nodes) {
		g.Nodes[key].Mutate(cfg, rng)
	}
	for _, key := range sortedConnectionKeys(g.Connections) {
		g.Connections[key].Mutate(g, cfg, rng)
	}
}

// mutateAddNode splits a random connection: the old edge is disabled and a
// new node is inserted with an incoming weight of 1 and the old weight outgoing.
func (g *Genome) mutateAddNode(rng *rand.Rand) {
	if len(g.Connections) == 0 {
		return
	}
	keys := sortedConnectionKeys(g.Connections)
	split := g.Connections[keys[rng.Intn(len(keys))]]
	split.Enabled = false

	newKey := g.Config.GetNewNodeKey()
	g.Nodes[newKey] = NewNodeGene(newKey, g.Config, rng)

	inKey := ConnectionKey{InNodeID: split.Key.InNodeID, OutNodeID: newKey}
	g.Connections[inKey] = &ConnectionGene{Key: inKey, Weight: 1.0, Enabled: true}

	outKey := ConnectionKey{InNodeID: newKey, OutNodeID: split.Key.OutNodeID}
	g.Connections[outKey] = &ConnectionGene{Key: outKey, Weight: split.Weight, Enabled: true}
}

// mutateAddConnection connects a random source (input, hidden or output) to a
// random output or hidden node. Existing edges are re-enabled instead of duplicated.
func (g *Genome) mutateAddConnection(rng *rand.Rand) {
	targets := sortedNodeKeys(g.Nodes)
	if len(targets) == 0 {
		return
	}
	out := targets[rng.Intn(len(targets))]

	nIn := len(targets) + len(g.Config.InputKeys)
	idx := rng.Intn(nIn)
	var in int
	if idx < len(targets) {
		in = targets[idx]
	} else {
		in = g.Config.InputKeys[idx-len(targets)]
	}

	key := ConnectionKey{InNodeID: in, OutNodeID: out}
	if existing, ok := g.Connections[key]; ok {
		if !existing.Enabled && !(g.Config.FeedForward && createsCycle(g, in, out)) {
			existing.Enabled = true
		}
		return
	}

	// Output nodes do not feed each other.
	if g.isOutput(in) && g.isOutput(out) {
		return
	}
	if g.Config.FeedForward && createsCycle(g, in, out) {
		return
	}
	g.Connections[key] = NewConnectionGene(key, g.Config, rng)
}

// mutateDeleteNode removes a random hidden node and every connection touching it.
func (g *Genome) mutateDeleteNode(rng *rand.Rand) {
	candidates := make([]int, 0, len(g.Nodes))
	for _, key := range sortedNodeKeys(g.Nodes) {
		if !g.isOutput(key) {
			candidates = append(candidates, key)
		}
	}
	if len(candidates) == 0 {
		return
	}
	victim := candidates[rng.Intn(len(candidates))]
	for key := range g.Connections {
		if key.InNodeID == victim || key.OutNodeID == victim {
			delete(g.Connections, key)
		}
	}
	delete(g.Nodes, victim)
}

// mutateDeleteConnection removes a random connection gene.
func (g *Genome) mutateDeleteConnection(rng *rand.Rand) {
	if len(g.Connections) == 0 {
		return
	}
	keys := sortedConnectionKeys(g.Connections)
	delete(g.Connections, keys[rng.Intn(len(keys))])
}

func (g *Genome) isOutput(key int) bool {
	return key >= 0 && key < g.Config.NumOutputs
}

// ActiveInputKeys enumerates the input identifiers the genome's connections
// draw from, de-duplicated and sorted descending (-1 first). A disabled
// connection still counts: its input stays part of the genome's input layer.
func (g *Genome) ActiveInputKeys() []int {
	seen := make(map[int]bool)
	keys := []int{}
	for key := range g.Connections {
		in := key.InNodeID
		if in < 0 && !seen[in] {
			seen[in] = true
			keys = append(keys, in)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))
	return keys
}

// Size returns the number of nodes and enabled connections.
func (g *Genome) Size() (nodes int, enabled int) {
	for _, c := range g.Connections {
		if c.Enabled {
			enabled++
		}
	}
	return len(g.Nodes), enabled
}

// Distance calculates the genetic distance between this genome and another,
// as the sum of a node term and a connection term. Each term adds the
// attribute distances of homologous genes to the disjoint coefficient times
// the count of non-matching genes, normalised by the larger gene count.
func (g *Genome) Distance(other *Genome) float64 {
	cfg := g.Config

	nodeDistance := 0.0
	if len(g.Nodes) > 0 || len(other.Nodes) > 0 {
		disjoint := 0
		for key := range other.Nodes {
			if _, ok := g.Nodes[key]; !ok {
				disjoint++
			}
		}
		for _, key := range sortedNodeKeys(g.Nodes) {
			n1 := g.Nodes[key]
			if n2, ok := other.Nodes[key]; ok {
				nodeDistance += n1.Distance(n2, cfg)
			} else {
				disjoint++
			}
		}
		maxNodes := max(len(g.Nodes), len(other.Nodes))
		nodeDistance = (nodeDistance + cfg.CompatibilityDisjointCoefficient*float64(disjoint)) / float64(maxNodes)
	}

	connDistance := 0.0
	if len(g.Connections) > 0 || len(other.Connections) > 0 {
		disjoint := 0
		for key := range other.Connections {
			if _, ok := g.Connections[key]; !ok {
				disjoint++
			}
		}
		for _, key := range sortedConnectionKeys(g.Connections) {
			c1 := g.Connections[key]
			if c2, ok := other.Connections[key]; ok {
				connDistance += c1.Distance(c2, cfg)
			} else {
				disjoint++
			}
		}
		maxConns := max(len(g.Connections), len(other.Connections))
		connDistance = (connDistance + cfg.CompatibilityDisjointCoefficient*float64(disjoint)) / float64(maxConns)
	}

	return nodeDistance + connDistance
}

// String summarises the genome's genes in key order.
func (g *Genome) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Key: %d\nFitness: %.4f\nNodes:\n", g.Key, g.Fitness)
	for _, key := range sortedNodeKeys(g.Nodes) {
		fmt.Fprintf(&b, "\t%d %s\n", key, g.Nodes[key])
	}
	b.WriteString("Connections:\n")
	for _, key := range sortedConnectionKeys(g.Connections) {
		fmt.Fprintf(&b, "\t%s\n", g.Connections[key])
	}
	return b.String()
}

// createsCycle reports whether adding inNode->outNode would close a cycle
// through the genome's enabled connections.
func createsCycle(genome *Genome, inNode, outNode int) bool {
	if inNode == outNode {
		return true
	}

	adjacency := make(map[int][]int)
	for key, conn := range genome.Connections {
		if conn.Enabled {
			adjacency[key.InNodeID] = append(adjacency[key.InNodeID], key.OutNodeID)
		}
	}

	visited := map[int]bool{outNode: true}
	stack := []int{outNode}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adjacency[current] {
			if next == inNode {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Map iteration order is random; everything that draws from the rng or sums
// floats walks genes in key order so a seeded run is reproducible.

func sortedNodeKeys(nodes map[int]*NodeGene) []int {
	keys := make([]int, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedConnectionKeys(conns map[ConnectionKey]*ConnectionGene) []ConnectionKey {
	keys := make([]ConnectionKey, 0, len(conns))
	for k := range conns {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].InNodeID != keys[j].InNodeID {
			return keys[i].InNodeID < keys[j].InNodeID
		}
		return keys[i].OutNodeID < keys[j].OutNodeID
	})
	return keys
}
