package sim_test

import (
	"errors"
	"testing"
	"time"

	"github.com/cgxeiji/pulseox/max30100"
	"github.com/cgxeiji/pulseox/sim"
)

func TestNew(t *testing.T) {
	s := sim.New()

	t.Run("Powers on like the real device", func(t *testing.T) {
		assertRegister(t, s, max30100.RegPartID, max30100.PartID)
		assertRegister(t, s, max30100.IntStatus, max30100.PowerReady)
		assertRegister(t, s, max30100.ModeCfg, 0)
	})

	t.Run("Has no samples without a mode", func(t *testing.T) {
		_, _, ok, err := s.IRRed()
		assertError(t, err, nil)
		assertBool(t, ok, false)
	})
}

func TestSensor_IRRed(t *testing.T) {
	t.Run("Follows the LED currents", func(t *testing.T) {
		s := configured(t, max30100.ModeSpO2)
		ir, red := mean(t, s, 100)
		// 50mA and 27.1mA with 2% perfusion
		assertRange(t, ir, 48500, 50100)
		assertRange(t, red, 31800, 32600)
	})

	t.Run("Leaves red dark in HR only mode", func(t *testing.T) {
		s := configured(t, max30100.ModeHR)
		ir, red := mean(t, s, 100)
		assertRange(t, ir, 48500, 50100)
		assertRange(t, red, 0, 0)
	})

	t.Run("Stops when shut down", func(t *testing.T) {
		s := configured(t, max30100.ModeSpO2)
		assertError(t, s.Write(max30100.ModeCfg, 0x80|byte(max30100.ModeSpO2)), nil)
		_, _, ok, _ := s.IRRed()
		assertBool(t, ok, false)
	})

	t.Run("Paces samples in real time", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		s := configured(t, max30100.ModeSpO2)
		s.Options(sim.Realtime(true, func() time.Time { return now }))

		now = now.Add(100 * time.Millisecond)
		n := 0
		for {
			_, _, ok, err := s.IRRed()
			assertError(t, err, nil)
			if !ok {
				break
			}
			n++
		}
		assertInt(t, n, 10)
	})
}

func TestSensor_Write(t *testing.T) {
	t.Run("Resets the registers", func(t *testing.T) {
		s := configured(t, max30100.ModeSpO2)
		assertError(t, s.Write(max30100.ModeCfg, max30100.ResetControl), nil)
		assertRegister(t, s, max30100.LedCfg, 0)
		assertRegister(t, s, max30100.ModeCfg, 0)
		assertRegister(t, s, max30100.RegPartID, max30100.PartID)
	})

	t.Run("Converts the temperature", func(t *testing.T) {
		s := sim.New(sim.Temperature(25.3))
		assertError(t, s.Write(max30100.ModeCfg, max30100.TempEna), nil)
		// 25.3 rounds to 25 + 5/16
		assertRegister(t, s, max30100.TempInt, 25)
		assertRegister(t, s, max30100.TempFrac, 5)
		assertRegister(t, s, max30100.ModeCfg, 0)
	})
}

func TestSensor_Options(t *testing.T) {
	s := sim.New()
	old := s.Options(sim.Temperature(40))
	got, _ := s.Temperature()
	if got != 40 {
		t.Errorf("got %v°C, want 40°C", got)
	}

	s.Options(old)
	got, _ = s.Temperature()
	if got != sim.DefaultTemperature {
		t.Errorf("got %v°C, want %v°C", got, sim.DefaultTemperature)
	}
}

func TestSeed(t *testing.T) {
	// noise only, so samples depend on the generator alone
	flat := []sim.Option{sim.Perfusion(0), sim.Drift(0), sim.Noise(300)}

	t.Run("Repeats the noise for the same seed", func(t *testing.T) {
		a := configured(t, max30100.ModeSpO2, append(flat, sim.Seed(7))...)
		b := configured(t, max30100.ModeSpO2, append(flat, sim.Seed(7))...)
		assertSamples(t, samples(t, a, 20), samples(t, b, 20))
	})

	t.Run("Restores the previous generator", func(t *testing.T) {
		a := configured(t, max30100.ModeSpO2, flat...)
		b := configured(t, max30100.ModeSpO2, flat...)

		old := b.Options(sim.Seed(7))
		samples(t, b, 5)
		b.Options(old)

		assertSamples(t, samples(t, b, 20), samples(t, a, 20))
	})
}

// Helpers //

func configured(t *testing.T, mode max30100.Mode, options ...sim.Option) *sim.Sensor {
	t.Helper()
	s := sim.New(options...)
	assertError(t, s.Write(max30100.SpO2Cfg, byte(max30100.SR100)<<2|byte(max30100.PW1600)), nil)
	assertError(t, s.Write(max30100.LedCfg, byte(max30100.MA27_1)<<4|byte(max30100.MA50)), nil)
	assertError(t, s.Write(max30100.ModeCfg, byte(mode)), nil)
	return s
}

func mean(t *testing.T, s *sim.Sensor, n int) (ir, red float64) {
	t.Helper()
	for i := 0; i < n; i++ {
		a, b, ok, err := s.IRRed()
		if err != nil || !ok {
			t.Fatalf("no sample at %d: %v", i, err)
		}
		ir += float64(a)
		red += float64(b)
	}
	return ir / float64(n), red / float64(n)
}

func samples(t *testing.T, s *sim.Sensor, n int) [][2]uint16 {
	t.Helper()
	got := make([][2]uint16, n)
	for i := range got {
		ir, red, ok, err := s.IRRed()
		if err != nil || !ok {
			t.Fatalf("no sample at %d: %v", i, err)
		}
		got[i] = [2]uint16{ir, red}
	}
	return got
}

func assertSamples(t testing.TB, got, want [][2]uint16) {
	t.Helper()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func assertRegister(t testing.TB, s *sim.Sensor, reg, want byte) {
	t.Helper()
	got, err := s.Read(reg)
	assertError(t, err, nil)
	if got != want {
		t.Errorf("register %#02x: got %#02x, want %#02x", reg, got, want)
	}
}

func assertRange(t testing.TB, got, lo, hi float64) {
	t.Helper()
	if got < lo || got > hi {
		t.Errorf("got %v, want between %v and %v", got, lo, hi)
	}
}

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %q want %q", got, want)
	}
}

func assertBool(t testing.TB, got, want bool) {
	t.Helper()
	if got != want {
		t.Errorf("got %t, want %t", got, want)
	}
}

func assertInt(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}
