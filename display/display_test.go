package display_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/display"
	"github.com/cgxeiji/pulseox/max30100"
	"github.com/gdamore/tcell/v2"
)

func TestScreen(t *testing.T) {
	s := mkTestScreen(t, "")
	defer s.Fini()
	s.Clear()

	b, x, y := s.GetContents()
	if len(b) != x*y || x != 80 || y != 25 {
		t.Fatalf("Contents (%v, %v, %v) wrong", len(b), x, y)
	}
}

func TestView_Draw(t *testing.T) {
	s := mkTestScreen(t, "")
	defer s.Fini()
	v := display.NewView(s)

	v.Push(pulseox.Output{HeartBPM: 72.4, SpO2: 97.1, RedCurrent: max30100.MA40_2, IRCardiogram: 5})
	v.Push(pulseox.Output{HeartBPM: 72.4, SpO2: 97.1, RedCurrent: max30100.MA40_2, IRCardiogram: -5, PulseDetected: true})
	v.Draw()

	t.Run("Shows the readings", func(t *testing.T) {
		header := row(s, 1)
		assertStringContains(t, header, "BPM  72.4")
		assertStringContains(t, header, "SpO2  97.1%")
		assertStringContains(t, header, "Red 40.2mA")
	})

	t.Run("Marks the beat", func(t *testing.T) {
		assertStringContains(t, row(s, 1), "♥")
	})

	t.Run("Plots the cardiogram", func(t *testing.T) {
		_, _, h := s.GetContents()
		// rows 3..h-2 hold the wave, highest value on top
		assertRune(t, s, 1, 3, '•')
		assertRune(t, s, 2, h-2, '•')
	})

	t.Run("Clears the beat marker", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			v.Push(pulseox.Output{})
		}
		v.Draw()
		if strings.Contains(row(s, 1), "♥") {
			t.Error("beat marker still shown")
		}
	})
}

func TestView_Push(t *testing.T) {
	s := mkTestScreen(t, "")
	defer s.Fini()
	v := display.NewView(s)

	// scrolls once the wave is wider than the screen
	for i := 0; i < 200; i++ {
		v.Push(pulseox.Output{IRCardiogram: float64(i)})
	}
	v.Draw()

	// newest value at the right edge, highest
	assertRune(t, s, 78, 3, '•')
}

func TestView_Run(t *testing.T) {
	t.Run("Quits on Esc", func(t *testing.T) {
		s := mkTestScreen(t, "")
		defer s.Fini()
		v := display.NewView(s)

		done := make(chan error, 1)
		go func() { done <- v.Run(context.Background(), make(chan pulseox.Output)) }()
		s.InjectKey(tcell.KeyEscape, 0, tcell.ModNone)
		assertDone(t, done, nil)
	})

	t.Run("Quits on q", func(t *testing.T) {
		s := mkTestScreen(t, "")
		defer s.Fini()
		v := display.NewView(s)

		done := make(chan error, 1)
		go func() { done <- v.Run(context.Background(), make(chan pulseox.Output)) }()
		s.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
		assertDone(t, done, nil)
	})

	t.Run("Stops with the context", func(t *testing.T) {
		s := mkTestScreen(t, "")
		defer s.Fini()
		v := display.NewView(s)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- v.Run(ctx, make(chan pulseox.Output)) }()
		cancel()
		assertDone(t, done, context.Canceled)
	})

	t.Run("Draws updates until they end", func(t *testing.T) {
		s := mkTestScreen(t, "")
		defer s.Fini()
		v := display.NewView(s)

		updates := make(chan pulseox.Output)
		done := make(chan error, 1)
		go func() { done <- v.Run(context.Background(), updates) }()
		updates <- pulseox.Output{HeartBPM: 88}
		close(updates)
		assertDone(t, done, nil)

		v.Draw()
		assertStringContains(t, row(s, 1), "BPM  88.0")
	})
}

// Helpers //

func mkTestScreen(t *testing.T, charset string) tcell.SimulationScreen {
	s := tcell.NewSimulationScreen(charset)
	if s == nil {
		t.Fatalf("Failed to get SimulationScreen")
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Failed to init screen: %v", err)
	}
	return s
}

func row(s tcell.SimulationScreen, y int) string {
	cells, w, _ := s.GetContents()
	var b strings.Builder
	for _, c := range cells[y*w : (y+1)*w] {
		if len(c.Runes) > 0 {
			b.WriteRune(c.Runes[0])
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func assertRune(t testing.TB, s tcell.SimulationScreen, x, y int, want rune) {
	t.Helper()
	cells, w, _ := s.GetContents()
	c := cells[y*w+x]
	if len(c.Runes) == 0 || c.Runes[0] != want {
		t.Errorf("got %q at (%d, %d), want %q", c.Runes, x, y, want)
	}
}

func assertDone(t testing.TB, done <-chan error, want error) {
	t.Helper()
	select {
	case err := <-done:
		if err != want {
			t.Errorf("got error %v, want %v", err, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("view did not stop")
	}
}

func assertStringContains(t testing.TB, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("did not find %q in %q", want, full)
	}
}
