package racing

import "math"

// Car dynamics, per step.
const (
	SteerRate    = 0.06 // Radians at full grip
	Acceleration = 0.05
	BrakeForce   = 0.1
	MaxSpeed     = 2.5
	Friction     = 0.995
	GrassDrag    = 0.95

	// Below this speed steering is scaled down so a stopped car cannot spin.
	steerSpeed = 0.5
)

// Car is a point-mass car with a heading. Heading 0 points along +X.
type Car struct {
	Position Point
	Heading  float64
	Speed    float64
}

// Direction is the unit vector the car faces.
func (c Car) Direction() Point {
	return Point{math.Cos(c.Heading), math.Sin(c.Heading)}
}

func (c *Car) step(action Action, onTrack bool) {
	grip := math.Min(1, c.Speed/steerSpeed)
	switch action {
	case SteerLeft:
		c.Heading += SteerRate * grip
	case SteerRight:
		c.Heading -= SteerRate * grip
	case Gas:
		c.Speed += Acceleration
	case Brake:
		c.Speed = math.Max(0, c.Speed-BrakeForce)
	}

	c.Speed *= Friction
	if !onTrack {
		c.Speed *= GrassDrag
	}
	c.Speed = math.Min(c.Speed, MaxSpeed)
	c.Heading = math.Remainder(c.Heading, 2*math.Pi)
	c.Position = c.Position.add(c.Direction().scale(c.Speed))
}
