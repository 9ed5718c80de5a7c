package racing

import (
	"image"
	"image/color"
	"math"
)

// Observation geometry, in pixels.
const (
	FrameSize   = 96
	PanelHeight = 12 // Indicator panel at the bottom of the frame
	Zoom        = 2.0

	carX, carY  = FrameSize / 2, 70 // Car position in the view
	carW, carL  = 4, 8
	grassCell   = 10.0 // Checker size of the grass pattern, in world units
	barMaxWidth = 40
)

var (
	RoadColour       = color.RGBA{102, 102, 102, 255}
	GrassColour      = color.RGBA{102, 204, 102, 255}
	GrassLightColour = color.RGBA{102, 230, 102, 255}
	CarColour        = color.RGBA{204, 0, 0, 255}
	PanelColour      = color.RGBA{0, 0, 0, 255}
	SpeedColour      = color.RGBA{255, 255, 255, 255}
	ProgressColour   = color.RGBA{0, 0, 255, 255}
)

func (e *Env) render() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, FrameSize, FrameSize))
	dir := e.car.Direction()
	right := Point{dir.Y, -dir.X}

	for py := 0; py < FrameSize-PanelHeight; py++ {
		forward := (carY - float64(py) - 0.5) / Zoom
		for px := 0; px < FrameSize; px++ {
			side := (float64(px) + 0.5 - carX) / Zoom
			w := e.car.Position.add(dir.scale(forward)).add(right.scale(side))
			img.SetRGBA(px, py, e.groundColour(w))
		}
	}

	fill(img, image.Rect(carX-carW/2, carY-carL/2, carX+carW/2, carY+carL/2), CarColour)

	panelTop := FrameSize - PanelHeight
	fill(img, image.Rect(0, panelTop, FrameSize, FrameSize), PanelColour)
	speed := int(math.Round(barMaxWidth * math.Min(1, e.car.Speed/MaxSpeed)))
	fill(img, image.Rect(4, panelTop+3, 4+speed, FrameSize-3), SpeedColour)
	if n := len(e.visited); n > 0 {
		progress := barMaxWidth * e.tilesVisited / n
		fill(img, image.Rect(52, panelTop+3, 52+progress, FrameSize-3), ProgressColour)
	}
	return img
}

func (e *Env) groundColour(w Point) color.RGBA {
	if e.track.TileAt(w) >= 0 {
		return RoadColour
	}
	if (int(math.Floor(w.X/grassCell))+int(math.Floor(w.Y/grassCell)))%2 == 0 {
		return GrassLightColour
	}
	return GrassColour
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}
