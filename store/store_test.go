package store_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/max30100"
	"github.com/cgxeiji/pulseox/store"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var start = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestStore_Write(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 3)
	session := pulseox.NewSession(start, max30100.SR100)

	for i := 0; i < 4; i++ {
		assertError(t, s.Write(ctx, reading(session, int64(i)*100)), nil)
	}

	t.Run("Writes full batches", func(t *testing.T) {
		got, err := s.Range(ctx, start, start.Add(time.Minute))
		assertError(t, err, nil)
		assertInt(t, len(got), 3)
	})

	t.Run("Writes the rest on flush", func(t *testing.T) {
		assertError(t, s.Flush(ctx), nil)
		assertInt(t, s.Pending(), 0)
		got, err := s.Range(ctx, start, start.Add(time.Minute))
		assertError(t, err, nil)
		assertInt(t, len(got), 4)
		for i, r := range got {
			assertInt(t, int(r.Sample), i*100)
			if r.Session != session.ID {
				t.Errorf("got session %v, want %v", r.Session, session.ID)
			}
			if r.RedCurrent != max30100.MA27_1 {
				t.Errorf("got red current %v, want %v", r.RedCurrent, max30100.MA27_1)
			}
		}
	})
}

func TestStore_Flush(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 10)
	session := pulseox.NewSession(start, max30100.SR100)

	// the time key spells badger's reserved prefix
	bad := reading(session, 1)
	bad.Time = time.Unix(0, int64(binary.BigEndian.Uint64([]byte("!badger!"))))

	assertError(t, s.Write(ctx, reading(session, 0)), nil)
	assertError(t, s.Write(ctx, bad), nil)

	t.Run("Keeps the batch when the write fails", func(t *testing.T) {
		assertError(t, s.Flush(ctx), badger.ErrInvalidKey)
		assertInt(t, s.Pending(), 2)

		got, err := s.Range(ctx, start, start.Add(time.Minute))
		assertError(t, err, nil)
		assertInt(t, len(got), 0)
	})

	t.Run("Retries the batch on the next flush", func(t *testing.T) {
		assertError(t, s.Flush(ctx), badger.ErrInvalidKey)
		assertInt(t, s.Pending(), 2)
	})
}

func TestStore_Range(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 1)
	session := pulseox.NewSession(start, max30100.SR100)

	// one reading per second
	for i := 0; i < 10; i++ {
		assertError(t, s.Write(ctx, reading(session, int64(i)*100)), nil)
	}

	tests := []struct {
		name       string
		from, to   time.Duration
		want       int
		firstIndex int64
	}{
		{"Includes the start and excludes the end", 2 * time.Second, 5 * time.Second, 3, 200},
		{"Returns everything in a wide range", -time.Hour, time.Hour, 10, 0},
		{"Returns nothing in an empty range", 20 * time.Second, 30 * time.Second, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Range(ctx, start.Add(tt.from), start.Add(tt.to))
			assertError(t, err, nil)
			assertInt(t, len(got), tt.want)
			if len(got) > 0 {
				assertInt(t, int(got[0].Sample), int(tt.firstIndex))
			}
		})
	}
}

func TestStore_Session(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 1)
	a := pulseox.NewSession(start, max30100.SR100)
	b := pulseox.NewSession(start, max30100.SR100)

	for i := 0; i < 5; i++ {
		assertError(t, s.Write(ctx, reading(a, int64(i)*50)), nil)
		assertError(t, s.Write(ctx, reading(b, int64(i)*50)), nil)
	}

	got, err := s.Session(ctx, b.ID)
	assertError(t, err, nil)
	assertInt(t, len(got), 5)
	for _, r := range got {
		if r.Session != b.ID {
			t.Fatalf("got reading of session %v", r.Session)
		}
	}

	got, err = s.Session(ctx, uuid.New())
	assertError(t, err, nil)
	assertInt(t, len(got), 0)
}

func TestStore_Close(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	session := pulseox.NewSession(start, max30100.SR100)

	s, err := store.Open(dir, 10)
	assertError(t, err, nil)
	assertError(t, s.Write(ctx, reading(session, 0)), nil)
	assertError(t, s.Close(), nil)

	s, err = store.Open(dir, 10)
	assertError(t, err, nil)
	defer s.Close()

	got, err := s.Range(ctx, start, start.Add(time.Second))
	assertError(t, err, nil)
	assertInt(t, len(got), 1)
}

func TestStore_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	s := openStore(t, 2)
	session := pulseox.NewSession(start, max30100.SR100)
	assertError(t, s.Write(ctx, reading(session, 0)), nil)
	assertError(t, s.Write(ctx, reading(session, 1)), nil)

	var flushes int
	for _, span := range sr.Ended() {
		if span.Name() == "store.flush" {
			flushes++
		}
	}
	assertInt(t, flushes, 1)
}

func TestKey(t *testing.T) {
	session := pulseox.NewSession(start, max30100.SR100)
	early := store.Key(reading(session, 10))
	late := store.Key(reading(session, 20))

	if bytes.Compare(early, late) >= 0 {
		t.Errorf("key %x does not sort before %x", early, late)
	}
	assertInt(t, len(early), 32)
}

// Helpers //

func openStore(t *testing.T, batchSize int) *store.Store {
	t.Helper()
	s, err := store.Open("", batchSize)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func reading(session pulseox.Session, n int64) pulseox.Reading {
	return session.Reading(pulseox.Output{
		HeartBPM:          72,
		SpO2:              97,
		LastBeatThreshold: 500,
		RedCurrent:        max30100.MA27_1,
		Sample:            n,
	})
}

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %q want %q", got, want)
	}
}

func assertInt(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}
