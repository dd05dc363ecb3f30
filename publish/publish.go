// Package publish streams readings and the cardiogram over NATS.
//
// Readings are published as JSON on ReadingSubject, one message per beat.
// The cardiogram is published on WaveSubject in batches of little endian
// float32 values.
package publish

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cgxeiji/pulseox"
	"github.com/cgxeiji/pulseox/obvy"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ReadingSubject = "pulseox.readings"
	WaveSubject    = "pulseox.wave"
)

var ErrWaveLength = errors.New("publish: wave length is not a multiple of 4")

// Connect connects to the NATS server at url and keeps reconnecting for as
// long as the connection is open.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("pulseox"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// Conn is the part of a NATS connection used to publish.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends readings and cardiogram batches on a connection. It is
// safe for concurrent use.
type Publisher struct {
	conn  Conn
	batch int

	mu     sync.Mutex
	buffer []float32
}

// New returns a publisher that sends the cardiogram every batch samples.
func New(conn Conn, batch int) *Publisher {
	if batch < 1 {
		batch = 1
	}
	return &Publisher{
		conn:   conn,
		batch:  batch,
		buffer: make([]float32, 0, batch),
	}
}

// Reading publishes r.
func (p *Publisher) Reading(ctx context.Context, r pulseox.Reading) error {
	_, span := obvy.Tracer().Start(ctx, "publish.reading",
		trace.WithAttributes(attribute.Int64("sample", r.Sample)))
	defer span.End()

	b, err := json.Marshal(r)
	if err != nil {
		return fail(span, fmt.Errorf("publish: could not encode reading: %w", err))
	}
	if err := p.conn.Publish(ReadingSubject, b); err != nil {
		return fail(span, fmt.Errorf("publish: %s: %w", ReadingSubject, err))
	}
	return nil
}

// Sample queues the cardiogram value of out and publishes the queue once it
// holds a full batch.
func (p *Publisher) Sample(ctx context.Context, out pulseox.Output) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, float32(out.IRCardiogram))
	if len(p.buffer) >= p.batch {
		return p.flushLocked(ctx)
	}
	return nil
}

// Flush publishes the queued cardiogram values.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.flushLocked(ctx)
}

func (p *Publisher) flushLocked(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	_, span := obvy.Tracer().Start(ctx, "publish.wave",
		trace.WithAttributes(attribute.Int("samples", len(p.buffer))))
	defer span.End()

	data := EncodeWave(p.buffer)
	p.buffer = p.buffer[:0]
	if err := p.conn.Publish(WaveSubject, data); err != nil {
		return fail(span, fmt.Errorf("publish: %s: %w", WaveSubject, err))
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// EncodeWave packs values as little endian float32.
func EncodeWave(values []float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// DecodeWave unpacks a message made by EncodeWave.
func DecodeWave(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, ErrWaveLength
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return values, nil
}

// DecodeReading unpacks a message published by Reading.
func DecodeReading(data []byte) (pulseox.Reading, error) {
	var r pulseox.Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("publish: could not decode reading: %w", err)
	}
	return r, nil
}
