// Package display draws a live view of the pulse oximeter in the terminal:
// heart rate, SpO2, the red LED current and a scrolling cardiogram.
package display

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cgxeiji/pulseox"
	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/gdamore/tcell/v2"
)

const (
	headerRows = 3
	// beatHold is how many samples the beat marker stays lit.
	beatHold = 10
	refresh  = 50 * time.Millisecond
)

var (
	borderStyle = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorPink)
	textStyle   = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorLightSteelBlue)
	beatStyle   = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorRed)
	waveStyle   = tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorAquaMarine)
)

// View is the terminal view of a device.
type View struct {
	mu     sync.Mutex
	Screen tcell.Screen

	latest    pulseox.Output
	wave      []float64
	sinceBeat int
}

// NewScreen returns an initialized terminal screen.
func NewScreen() (tcell.Screen, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("display: %w", err)
	}
	s.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack))
	s.Clear()
	return s, nil
}

// NewView returns a view drawing on screen.
func NewView(screen tcell.Screen) *View {
	return &View{
		Screen:    screen,
		sinceBeat: beatHold,
	}
}

// Push adds the output of one sample to the view.
func (v *View) Push(out pulseox.Output) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.latest = out
	if out.PulseDetected {
		v.sinceBeat = 0
	} else if v.sinceBeat < beatHold {
		v.sinceBeat++
	}

	width, _ := v.Screen.Size()
	v.wave = append(v.wave, out.IRCardiogram)
	if n := width - 2; n > 0 && len(v.wave) > n {
		v.wave = append(v.wave[:0], v.wave[len(v.wave)-n:]...)
	}
}

// Draw renders the view and shows it.
func (v *View) Draw() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.Screen.Clear()
	width, height := v.Screen.Size()
	v.drawBorder(width-1, height-1)

	out := v.latest
	v.drawText(2, 1, fmt.Sprintf("BPM %5.1f   SpO2 %5.1f%%   Red %4.1fmA", out.HeartBPM, out.SpO2, out.RedCurrent.MilliAmps()))
	if v.sinceBeat < beatHold {
		v.Screen.SetContent(width-3, 1, '♥', nil, beatStyle)
	}
	for x := 1; x < width-1; x++ {
		v.Screen.SetContent(x, headerRows-1, tcell.RuneHLine, nil, borderStyle)
	}

	v.drawWave(1, headerRows, width-2, height-headerRows-1)
	v.Screen.Show()
}

// drawWave plots the cardiogram in a w by h box at (x, y), scaled so the
// largest swing fills half the box around the center line.
func (v *View) drawWave(x, y, w, h int) {
	if w <= 0 || h <= 0 || len(v.wave) == 0 {
		return
	}

	peak := vecmath.MaxAbs(v.wave)
	for i, s := range v.wave {
		if i >= w {
			break
		}
		row := h / 2
		if peak > 0 {
			row = int(math.Round((1 - s/peak) / 2 * float64(h-1)))
		}
		v.Screen.SetContent(x+i, y+row, '•', nil, waveStyle)
	}
}

func (v *View) drawText(x, y int, text string) {
	for _, r := range text {
		v.Screen.SetContent(x, y, r, nil, textStyle)
		x++
	}
}

func (v *View) drawBorder(width, height int) {
	v.Screen.SetContent(0, 0, tcell.RuneULCorner, nil, borderStyle)
	v.Screen.SetContent(width, 0, tcell.RuneURCorner, nil, borderStyle)
	v.Screen.SetContent(0, height, tcell.RuneLLCorner, nil, borderStyle)
	v.Screen.SetContent(width, height, tcell.RuneLRCorner, nil, borderStyle)
	for i := 1; i < width; i++ {
		v.Screen.SetContent(i, 0, tcell.RuneHLine, nil, borderStyle)
		v.Screen.SetContent(i, height, tcell.RuneHLine, nil, borderStyle)
	}
	for i := 1; i < height; i++ {
		v.Screen.SetContent(0, i, tcell.RuneVLine, nil, borderStyle)
		v.Screen.SetContent(width, i, tcell.RuneVLine, nil, borderStyle)
	}
}

// Run draws updates until ctx is done, updates is closed or the user quits
// with Esc, Ctrl-C or q.
func (v *View) Run(ctx context.Context, updates <-chan pulseox.Output) error {
	events := make(chan tcell.Event, 8)
	quit := make(chan struct{})
	defer close(quit)
	go v.Screen.ChannelEvents(events, quit)

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	v.Draw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-updates:
			if !ok {
				return nil
			}
			v.Push(out)
		case <-ticker.C:
			v.Draw()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case *tcell.EventResize:
				v.Screen.Sync()
				v.Draw()
			case *tcell.EventKey:
				if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q' {
					return nil
				}
			}
		}
	}
}
