package nn

import (
	"fmt"
	"sort"

	"github.com/baldhumanity/neat-racing/neat"
)

// nodeEval holds everything needed to compute one node's output.
type nodeEval struct {
	Key           int
	Bias          float64
	Response      float64
	ActivationFn  neat.ActivationType
	AggregationFn neat.AggregationType
	Links         []link
}

type link struct {
	From   int
	Weight float64
}

// FeedForwardNetwork represents a phenotype network that can be activated.
// Only nodes that can influence an output are evaluated.
type FeedForwardNetwork struct {
	NumInputs  int
	InputKeys  []int // Inputs actually read by some evaluated node, descending
	OutputKeys []int
	Layers     [][]int    // Node keys grouped by evaluation layer
	NodeEvals  []nodeEval // Layers flattened in evaluation order
}

// CreateFeedForwardNetwork builds a runnable network from the enabled
// connections of a feed-forward genome.
func CreateFeedForwardNetwork(g *neat.Genome) (*FeedForwardNetwork, error) {
	if g.Config == nil {
		return nil, fmt.Errorf("genome %d has no config", g.Key)
	}
	if !g.Config.FeedForward {
		return nil, fmt.Errorf("cannot create FeedForwardNetwork for a genome configured with FeedForward=false")
	}

	var connections []neat.ConnectionKey
	for key, cg := range g.Connections {
		if cg.Enabled {
			connections = append(connections, key)
		}
	}
	sort.Slice(connections, func(i, j int) bool {
		if connections[i].OutNodeID != connections[j].OutNodeID {
			return connections[i].OutNodeID < connections[j].OutNodeID
		}
		return connections[i].InNodeID < connections[j].InNodeID
	})

	layers := FeedForwardLayers(g.Config.InputKeys, g.Config.OutputKeys, connections)

	incoming := make(map[int][]neat.ConnectionKey)
	for _, key := range connections {
		incoming[key.OutNodeID] = append(incoming[key.OutNodeID], key)
	}

	usedInputs := make(map[int]bool)
	var evals []nodeEval
	for _, layer := range layers {
		for _, nodeKey := range layer {
			gn, ok := g.Nodes[nodeKey]
			if !ok {
				return nil, fmt.Errorf("connection targets unknown node %d", nodeKey)
			}
			actFn, err := neat.GetActivation(gn.Activation)
			if err != nil {
				return nil, fmt.Errorf("node %d: %w", nodeKey, err)
			}
			aggFn, err := neat.GetAggregation(gn.Aggregation)
			if err != nil {
				return nil, fmt.Errorf("node %d: %w", nodeKey, err)
			}
			ev := nodeEval{
				Key:           nodeKey,
				Bias:          gn.Bias,
				Response:      gn.Response,
				ActivationFn:  actFn,
				AggregationFn: aggFn,
			}
			for _, key := range incoming[nodeKey] {
				ev.Links = append(ev.Links, link{From: key.InNodeID, Weight: g.Connections[key].Weight})
				if key.InNodeID < 0 {
					usedInputs[key.InNodeID] = true
				}
			}
			evals = append(evals, ev)
		}
	}

	inputKeys := make([]int, 0, len(usedInputs))
	for k := range usedInputs {
		inputKeys = append(inputKeys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(inputKeys)))

	return &FeedForwardNetwork{
		NumInputs:  g.Config.NumInputs,
		InputKeys:  inputKeys,
		OutputKeys: g.Config.OutputKeys,
		Layers:     layers,
		NodeEvals:  evals,
	}, nil
}

// Activate computes the network's output for a given slice of input values.
// Input key -k reads inputs[k-1]. Outputs no evaluated path reaches stay 0.
func (net *FeedForwardNetwork) Activate(inputs []float64) ([]float64, error) {
	if len(inputs) != net.NumInputs {
		return nil, fmt.Errorf("expected %d inputs, got %d", net.NumInputs, len(inputs))
	}

	values := make(map[int]float64, len(net.InputKeys)+len(net.NodeEvals))
	for _, ik := range net.InputKeys {
		values[ik] = inputs[-ik-1]
	}

	var buf []float64
	for _, ev := range net.NodeEvals {
		buf = buf[:0]
		for _, l := range ev.Links {
			buf = append(buf, values[l.From]*l.Weight)
		}
		s := ev.AggregationFn(buf)
		values[ev.Key] = ev.ActivationFn(ev.Bias + ev.Response*s)
	}

	outputs := make([]float64, len(net.OutputKeys))
	for i, ok := range net.OutputKeys {
		outputs[i] = values[ok]
	}
	return outputs, nil
}

// RequiredForOutput returns the non-input nodes whose values can reach an output.
func RequiredForOutput(inputs, outputs []int, connections []neat.ConnectionKey) map[int]bool {
	inputSet := make(map[int]bool, len(inputs))
	for _, k := range inputs {
		inputSet[k] = true
	}
	required := make(map[int]bool)
	seen := make(map[int]bool)
	for _, k := range outputs {
		required[k] = true
		seen[k] = true
	}

	for {
		var frontier []int
		for _, c := range connections {
			if seen[c.OutNodeID] && !seen[c.InNodeID] {
				frontier = append(frontier, c.InNodeID)
			}
		}
		if len(frontier) == 0 {
			break
		}
		added := false
		for _, n := range frontier {
			if !inputSet[n] {
				required[n] = true
				added = true
			}
		}
		if !added {
			break
		}
		for _, n := range frontier {
			seen[n] = true
		}
	}
	return required
}

// FeedForwardLayers groups the required nodes into layers whose inputs are
// all available from earlier layers. Each layer is sorted by key.
func FeedForwardLayers(inputs, outputs []int, connections []neat.ConnectionKey) [][]int {
	required := RequiredForOutput(inputs, outputs, connections)

	available := make(map[int]bool, len(inputs))
	for _, k := range inputs {
		available[k] = true
	}

	var layers [][]int
	for {
		candidates := make(map[int]bool)
		for _, c := range connections {
			if available[c.InNodeID] && !available[c.OutNodeID] {
				candidates[c.OutNodeID] = true
			}
		}

		var layer []int
		for n := range candidates {
			if !required[n] {
				continue
			}
			ready := true
			for _, c := range connections {
				if c.OutNodeID == n && !available[c.InNodeID] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, n)
			}
		}
		if len(layer) == 0 {
			break
		}
		sort.Ints(layer)
		layers = append(layers, layer)
		for _, n := range layer {
			available[n] = true
		}
	}
	return layers
}
