package neat

import (
	"fmt"
	"math"
	"sort"
)

// ActivationType is a node activation function.
type ActivationType func(z float64) float64

// ActivationFunctions maps configuration names to activation functions.
// Inputs are clamped before exponentials so extreme weights cannot overflow.
var ActivationFunctions = map[string]ActivationType{
	"sigmoid":  Sigmoid,
	"tanh":     Tanh,
	"sin":      Sine,
	"gauss":    Gaussian,
	"relu":     ReLU,
	"elu":      ELU,
	"lelu":     LeakyReLU,
	"selu":     SELU,
	"softplus": Softplus,
	"identity": Identity,
	"clamped":  Clamped,
	"inv":      Inv,
	"log":      Log,
	"exp":      Exp,
	"abs":      Absolute,
	"hat":      Hat,
	"square":   Square,
	"cube":     Cube,
}

// GetActivation retrieves an activation function by name.
func GetActivation(name string) (ActivationType, error) {
	if fn, ok := ActivationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown activation function: %s", name)
}

// ActivationNames lists the registered activation names in sorted order.
func ActivationNames() []string {
	names := make([]string, 0, len(ActivationFunctions))
	for name := range ActivationFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sigmoid is the logistic function with a steepened input.
func Sigmoid(z float64) float64 {
	z = clamp(5.0*z, -60.0, 60.0)
	return 1.0 / (1.0 + math.Exp(-z))
}

func Tanh(z float64) float64 {
	return math.Tanh(clamp(2.5*z, -60.0, 60.0))
}

func Sine(z float64) float64 {
	return math.Sin(clamp(5.0*z, -60.0, 60.0))
}

func Gaussian(z float64) float64 {
	z = clamp(z, -3.4, 3.4)
	return math.Exp(-5.0 * z * z)
}

func ReLU(z float64) float64 {
	return math.Max(0, z)
}

func ELU(z float64) float64 {
	if z > 0 {
		return z
	}
	return math.Exp(z) - 1
}

func LeakyReLU(z float64) float64 {
	if z > 0 {
		return z
	}
	return 0.005 * z
}

func SELU(z float64) float64 {
	const lambda, alpha = 1.0507009873554804934193349852946, 1.6732632423543772848170429916717
	if z > 0 {
		return lambda * z
	}
	return lambda * alpha * (math.Exp(z) - 1)
}

func Softplus(z float64) float64 {
	z = clamp(5.0*z, -60.0, 60.0)
	return 0.2 * math.Log(1+math.Exp(z))
}

func Identity(z float64) float64 {
	return z
}

// Clamped limits the output to [-1, 1].
func Clamped(z float64) float64 {
	return clamp(z, -1.0, 1.0)
}

// Inv returns 1/z, or 0 where that is undefined.
func Inv(z float64) float64 {
	if z == 0 {
		return 0.0
	}
	return 1.0 / z
}

func Log(z float64) float64 {
	return math.Log(math.Max(1e-7, z))
}

func Exp(z float64) float64 {
	return math.Exp(clamp(z, -60.0, 60.0))
}

func Absolute(z float64) float64 {
	return math.Abs(z)
}

// Hat is a triangular pulse centred on zero.
func Hat(z float64) float64 {
	return math.Max(0.0, 1-math.Abs(z))
}

func Square(z float64) float64 {
	return z * z
}

func Cube(z float64) float64 {
	return z * z * z
}
