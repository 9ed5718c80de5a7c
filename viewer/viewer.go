// Package viewer shows racing replays in the terminal.
//
// Frames are drawn with upper half blocks, two pixel rows per terminal cell,
// so a 96x96 observation takes 96 columns and 48 rows. The controller's view
// of the same frame is drawn beside it when the terminal is wide enough.
package viewer

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/baldhumanity/neat-racing/driver"
	"github.com/baldhumanity/neat-racing/scale"
	"github.com/gdamore/tcell/v2"
)

// ErrQuit is returned by Observe and Prompt once the user asked to quit.
var ErrQuit = errors.New("viewer: quit")

const (
	halfBlock = '▀'
	viewGap   = 2 // Columns between the frame and the controller's view
)

// Viewer draws replay observations on a tcell screen. Press q or Esc to quit.
type Viewer struct {
	// Delay paces replays; each Observe waits this long after drawing.
	Delay time.Duration
	// ShowView draws the controller's view beside the frame.
	ShowView bool

	screen tcell.Screen
	keys   chan rune
	quit   chan struct{}
	once   sync.Once
	done   chan struct{}
}

// New takes over the terminal. A nil screen opens the real terminal.
func New(screen tcell.Screen) (*Viewer, error) {
	if screen == nil {
		var err error
		if screen, err = tcell.NewScreen(); err != nil {
			return nil, err
		}
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	v := &Viewer{
		Delay:    20 * time.Millisecond,
		ShowView: true,
		screen:   screen,
		keys:     make(chan rune, 8),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go v.pollEvents()
	return v, nil
}

// Quit is closed once the user asked to quit.
func (v *Viewer) Quit() <-chan struct{} {
	return v.quit
}

// Close restores the terminal.
func (v *Viewer) Close() {
	v.signalQuit()
	v.screen.Fini()
	<-v.done
}

// Observe draws one replay step. It satisfies driver.Observer.
func (v *Viewer) Observe(obs driver.Observation) error {
	select {
	case <-v.quit:
		return ErrQuit
	default:
	}

	v.screen.Clear()
	v.drawImage(obs.Image, 0)
	if b := obs.Image.Bounds(); v.ShowView && obs.View.Len() > 0 {
		if w, _ := v.screen.Size(); w >= 2*b.Dx()+viewGap {
			v.drawFrame(obs.View, b.Dx()+viewGap)
		}
	}
	status := fmt.Sprintf("step %4d  action %-5s  reward %8.2f  [q] quit", obs.Step, obs.Action, obs.Reward)
	v.drawText(0, (obs.Image.Bounds().Dy()+1)/2, status)
	v.screen.Show()

	select {
	case <-v.quit:
		return ErrQuit
	case <-time.After(v.Delay):
		return nil
	}
}

// Prompt shows a yes/no question under the last frame and waits for y or n.
func (v *Viewer) Prompt(question string) (bool, error) {
	// Keys pressed during the replay do not answer the question.
	for drained := false; !drained; {
		select {
		case <-v.keys:
		default:
			drained = true
		}
	}

	_, h := v.screen.Size()
	v.drawText(0, h-1, question+" (y/n)")
	v.screen.Show()
	for {
		select {
		case <-v.quit:
			return false, ErrQuit
		case r := <-v.keys:
			switch r {
			case 'y', 'Y':
				return true, nil
			case 'n', 'N':
				return false, nil
			}
		}
	}
}

func (v *Viewer) pollEvents() {
	defer close(v.done)
	for {
		ev := v.screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
				(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				v.signalQuit()
				continue
			}
			if ev.Key() == tcell.KeyRune {
				select {
				case v.keys <- ev.Rune():
				default:
				}
			}
		case *tcell.EventResize:
			v.screen.Sync()
		}
	}
}

func (v *Viewer) signalQuit() {
	v.once.Do(func() { close(v.quit) })
}

func (v *Viewer) drawImage(img *image.RGBA, left int) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y += 2 {
		for x := 0; x < b.Dx(); x++ {
			top := img.RGBAAt(b.Min.X+x, b.Min.Y+y)
			style := tcell.StyleDefault.Foreground(tcell.NewRGBColor(int32(top.R), int32(top.G), int32(top.B)))
			if y+1 < b.Dy() {
				bottom := img.RGBAAt(b.Min.X+x, b.Min.Y+y+1)
				style = style.Background(tcell.NewRGBColor(int32(bottom.R), int32(bottom.G), int32(bottom.B)))
			}
			v.screen.SetContent(left+x, y/2, halfBlock, nil, style)
		}
	}
}

func (v *Viewer) drawFrame(f scale.Frame, left int) {
	height, width := f.Dims()
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x++ {
			style := tcell.StyleDefault.Foreground(gray(f.At(y, x)))
			if y+1 < height {
				style = style.Background(gray(f.At(y+1, x)))
			}
			v.screen.SetContent(left+x, y/2, halfBlock, nil, style)
		}
	}
}

func (v *Viewer) drawText(x, y int, text string) {
	for i, r := range []rune(text) {
		v.screen.SetContent(x+i, y, r, nil, tcell.StyleDefault)
	}
}

func gray(intensity float64) tcell.Color {
	c := int32(min(max(intensity, 0), 255))
	return tcell.NewRGBColor(c, c, c)
}
