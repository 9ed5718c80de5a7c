package racing

import (
	"math"
	"math/rand"
)

// World geometry, in world units. One grid cell is one unit.
const (
	TrackRadius    = 150.0
	Playfield      = TrackRadius + 40.0 // Half-size of the square playfield
	TrackHalfWidth = 8.0
	TileLength     = 6.0

	splineSamples = 40 // Samples per checkpoint segment before resampling
)

// Point is a position in world coordinates, Y up.
type Point struct {
	X, Y float64
}

func (p Point) sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) scale(f float64) Point { return Point{p.X * f, p.Y * f} }
func (p Point) dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }
func (p Point) length() float64 { return math.Hypot(p.X, p.Y) }
func (p Point) dist(q Point) float64 { return p.sub(q).length() }

// Track is a closed loop of tiles. Tile i spans Centre[i] to Centre[i+1 mod N].
type Track struct {
	Checkpoints []Point
	Centre      []Point

	size int     // Grid side length in cells
	grid []int16 // Tile index + 1 per cell, 0 for grass
}

// NewTrack generates a random closed track through numCheckpoints jittered
// checkpoints around the origin.
func NewTrack(rng *rand.Rand, numCheckpoints int) *Track {
	checkpoints := make([]Point, numCheckpoints)
	sector := 2 * math.Pi / float64(numCheckpoints)
	for c := range checkpoints {
		alpha := sector*float64(c) + rng.Float64()*sector
		rad := TrackRadius/3 + rng.Float64()*(TrackRadius-TrackRadius/3)
		checkpoints[c] = Point{rad * math.Cos(alpha), rad * math.Sin(alpha)}
	}

	t := &Track{Checkpoints: checkpoints}
	t.Centre = resample(spline(checkpoints), TileLength)
	t.rasterise()
	return t
}

// Tiles returns the number of tiles.
func (t *Track) Tiles() int {
	return len(t.Centre)
}

// TileAt returns the tile under p, or -1 for grass and outside the playfield.
func (t *Track) TileAt(p Point) int {
	cx := int(math.Floor(p.X + Playfield))
	cy := int(math.Floor(p.Y + Playfield))
	if cx < 0 || cy < 0 || cx >= t.size || cy >= t.size {
		return -1
	}
	return int(t.grid[cy*t.size+cx]) - 1
}

// Heading returns the direction of travel along tile i, in radians.
func (t *Track) Heading(i int) float64 {
	next := t.Centre[(i+1)%len(t.Centre)]
	d := next.sub(t.Centre[i])
	return math.Atan2(d.Y, d.X)
}

// spline samples a closed Catmull-Rom curve through the checkpoints.
func spline(points []Point) []Point {
	n := len(points)
	out := make([]Point, 0, n*splineSamples)
	for i := 0; i < n; i++ {
		p0 := points[(i-1+n)%n]
		p1 := points[i]
		p2 := points[(i+1)%n]
		p3 := points[(i+2)%n]
		for s := 0; s < splineSamples; s++ {
			u := float64(s) / splineSamples
			u2, u3 := u*u, u*u*u
			out = append(out, Point{
				X: 0.5 * (2*p1.X + (p2.X-p0.X)*u + (2*p0.X-5*p1.X+4*p2.X-p3.X)*u2 + (3*p1.X-p0.X-3*p2.X+p3.X)*u3),
				Y: 0.5 * (2*p1.Y + (p2.Y-p0.Y)*u + (2*p0.Y-5*p1.Y+4*p2.Y-p3.Y)*u2 + (3*p1.Y-p0.Y-3*p2.Y+p3.Y)*u3),
			})
		}
	}
	return out
}

// resample walks the closed polyline and emits a point every step units.
func resample(poly []Point, step float64) []Point {
	out := []Point{poly[0]}
	carry := 0.0
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		seg := a.dist(b)
		pos := step - carry
		for pos <= seg {
			out = append(out, a.add(b.sub(a).scale(pos/seg)))
			pos += step
		}
		carry = seg - (pos - step)
	}
	// The last sample may land on top of the first.
	if len(out) > 1 && out[len(out)-1].dist(out[0]) < step/2 {
		out = out[:len(out)-1]
	}
	return out
}

// rasterise paints every tile into the grid as a capsule of radius
// TrackHalfWidth around its centre segment. Where capsules overlap the
// earlier tile keeps the cell.
func (t *Track) rasterise() {
	t.size = int(2 * Playfield)
	t.grid = make([]int16, t.size*t.size)
	r := TrackHalfWidth
	for i, a := range t.Centre {
		b := t.Centre[(i+1)%len(t.Centre)]
		ab := b.sub(a)
		abLen2 := ab.dot(ab)

		minX := int(math.Floor(math.Min(a.X, b.X) - r + Playfield))
		maxX := int(math.Ceil(math.Max(a.X, b.X) + r + Playfield))
		minY := int(math.Floor(math.Min(a.Y, b.Y) - r + Playfield))
		maxY := int(math.Ceil(math.Max(a.Y, b.Y) + r + Playfield))
		for cy := max(minY, 0); cy <= min(maxY, t.size-1); cy++ {
			for cx := max(minX, 0); cx <= min(maxX, t.size-1); cx++ {
				idx := cy*t.size + cx
				if t.grid[idx] != 0 {
					continue
				}
				p := Point{float64(cx) + 0.5 - Playfield, float64(cy) + 0.5 - Playfield}
				u := 0.0
				if abLen2 > 0 {
					u = math.Max(0, math.Min(1, p.sub(a).dot(ab)/abLen2))
				}
				if p.dist(a.add(ab.scale(u))) <= r {
					t.grid[idx] = int16(i + 1)
				}
			}
		}
	}
}
