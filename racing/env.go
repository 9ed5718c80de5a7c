// Package racing is a top-down car racing environment with a discrete
// action space. Each episode drives a randomly generated closed track; the
// observation is a 96x96 RGB image centred on the car, heading up.
//
// Rewards follow the classic box2d CarRacing task: -0.1 every step and
// 1000/N for every one of the N track tiles visited for the first time.
// Leaving the playfield ends the episode with -100.
package racing

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand"
)

// Action is a discrete control input.
type Action int

const (
	Noop Action = iota
	SteerLeft
	SteerRight
	Gas
	Brake

	NumActions = 5
)

func (a Action) String() string {
	switch a {
	case Noop:
		return "noop"
	case SteerLeft:
		return "left"
	case SteerRight:
		return "right"
	case Gas:
		return "gas"
	case Brake:
		return "brake"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

const (
	// StepReward is added every step.
	StepReward = -0.1
	// OffPlayfieldReward replaces the step reward when the car leaves the playfield.
	OffPlayfieldReward = -100.0
	// TotalTileReward is shared out evenly over the tiles of a track.
	TotalTileReward = 1000.0
)

var (
	ErrNotReset      = errors.New("racing: step before reset")
	ErrEpisodeDone   = errors.New("racing: step after episode end")
	ErrInvalidAction = errors.New("racing: invalid action")
	ErrClosed        = errors.New("racing: environment closed")
)

// Options configures an Env. Zero fields take defaults.
type Options struct {
	// LapCompletePercent is the fraction of tiles that must be visited before
	// returning to the first tile ends the episode. Default 0.95.
	LapCompletePercent float64
	// MaxSteps truncates an episode after this many steps; 0 means no limit.
	MaxSteps int
	// Checkpoints is the number of control points of a generated track. Default 12.
	Checkpoints int
}

func (o Options) withDefaults() Options {
	if o.LapCompletePercent <= 0 {
		o.LapCompletePercent = 0.95
	}
	if o.Checkpoints <= 0 {
		o.Checkpoints = 12
	}
	return o
}

// Env is a single car racing simulation. It is not safe for concurrent use;
// run one Env per goroutine.
type Env struct {
	opts Options

	track        *Track
	car          Car
	visited      []bool
	tilesVisited int
	steps        int
	reward       float64
	done         bool
	closed       bool
	lapComplete  bool
}

// New creates an environment. Call Reset before Step.
func New(opts Options) *Env {
	return &Env{opts: opts.withDefaults()}
}

// Reset generates the track for seed, places the car on the first tile and
// returns the first observation.
func (e *Env) Reset(seed int64) (*image.RGBA, error) {
	if e.closed {
		return nil, ErrClosed
	}
	rng := rand.New(rand.NewSource(seed))
	e.track = NewTrack(rng, e.opts.Checkpoints)
	e.car = Car{Position: e.track.Centre[0], Heading: e.track.Heading(0)}
	e.visited = make([]bool, e.track.Tiles())
	e.tilesVisited = 0
	e.steps = 0
	e.reward = 0
	e.done = false
	e.lapComplete = false
	return e.render(), nil
}

// Step advances the simulation by one tick. terminated reports a finished
// lap or leaving the playfield; truncated reports hitting MaxSteps.
func (e *Env) Step(action Action) (obs *image.RGBA, reward float64, terminated, truncated bool, err error) {
	switch {
	case e.closed:
		return nil, 0, false, false, ErrClosed
	case e.track == nil:
		return nil, 0, false, false, ErrNotReset
	case e.done:
		return nil, 0, false, false, ErrEpisodeDone
	case action < 0 || action >= NumActions:
		return nil, 0, false, false, fmt.Errorf("%w: %d", ErrInvalidAction, int(action))
	}

	e.steps++
	onTrack := e.track.TileAt(e.car.Position) >= 0
	e.car.step(action, onTrack)

	reward = StepReward
	tile := e.track.TileAt(e.car.Position)
	if tile >= 0 && !e.visited[tile] {
		e.visited[tile] = true
		e.tilesVisited++
		reward += TotalTileReward / float64(len(e.visited))
	}
	if tile == 0 && float64(e.tilesVisited)/float64(len(e.visited)) >= e.opts.LapCompletePercent {
		e.lapComplete = true
		terminated = true
	}
	if math.Abs(e.car.Position.X) > Playfield || math.Abs(e.car.Position.Y) > Playfield {
		reward = OffPlayfieldReward
		terminated = true
	}
	if !terminated && e.opts.MaxSteps > 0 && e.steps >= e.opts.MaxSteps {
		truncated = true
	}

	e.reward += reward
	e.done = terminated || truncated
	return e.render(), reward, terminated, truncated, nil
}

// Close releases the environment. Further calls fail with ErrClosed.
func (e *Env) Close() error {
	e.closed = true
	e.track = nil
	e.visited = nil
	return nil
}

// Track returns the current track, or nil before Reset.
func (e *Env) Track() *Track {
	return e.track
}

// Car returns the car state.
func (e *Env) Car() Car {
	return e.car
}

// TilesVisited returns how many distinct tiles the car has touched this episode.
func (e *Env) TilesVisited() int {
	return e.tilesVisited
}

// TotalReward returns the reward accumulated this episode.
func (e *Env) TotalReward() float64 {
	return e.reward
}

// LapComplete reports whether the episode ended by completing a lap.
func (e *Env) LapComplete() bool {
	return e.lapComplete
}
