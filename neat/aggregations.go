package neat

import (
	"fmt"
	"math"
)

// AggregationType combines a node's weighted inputs into a single value.
type AggregationType func(inputs []float64) float64

// AggregationFunctions maps configuration names to aggregation functions.
var AggregationFunctions = map[string]AggregationType{
	"sum":     Sum,
	"product": AggregateProduct,
	"max":     AggregateMax,
	"min":     AggregateMin,
	"maxabs":  AggregateMaxAbs,
	"median":  AggregateMedian,
	"mean":    Mean,
	"average": Mean,
}

// GetAggregation retrieves an aggregation function by name.
func GetAggregation(name string) (AggregationType, error) {
	if fn, ok := AggregationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown aggregation function: %s", name)
}

// AggregateProduct multiplies the inputs; an empty product is 1.
func AggregateProduct(inputs []float64) float64 {
	product := 1.0
	for _, v := range inputs {
		product *= v
	}
	return product
}

// The order-statistic aggregations treat a node without inputs as 0 rather
// than an infinity or NaN leaking into downstream nodes.

func AggregateMax(inputs []float64) float64 {
	if len(inputs) == 0 {
		return 0.0
	}
	return MaxFloat(inputs)
}

func AggregateMin(inputs []float64) float64 {
	if len(inputs) == 0 {
		return 0.0
	}
	return MinFloat(inputs)
}

func AggregateMedian(inputs []float64) float64 {
	if len(inputs) == 0 {
		return 0.0
	}
	return Median(inputs)
}

// AggregateMaxAbs returns the input with the largest magnitude, keeping its sign.
func AggregateMaxAbs(inputs []float64) float64 {
	best := 0.0
	for _, v := range inputs {
		if math.Abs(v) > math.Abs(best) {
			best = v
		}
	}
	return best
}
