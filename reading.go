package pulseox

import (
	"time"

	"github.com/cgxeiji/pulseox/max30100"
	"github.com/google/uuid"
)

// Reading is the summary of an accepted beat. Readings are what gets stored
// and published, while Output is produced for every sample.
type Reading struct {
	Session    uuid.UUID        `json:"session"`
	Sample     int64            `json:"sample"`
	Time       time.Time        `json:"time"`
	BPM        float64          `json:"bpm"`
	SpO2       float64          `json:"spo2"`
	Threshold  float64          `json:"threshold"`
	RedCurrent max30100.Current `json:"red_current"`
}

// Session identifies one run of a device. Readings are timed on the sample
// clock from the start of the session.
type Session struct {
	ID    uuid.UUID
	Start time.Time
	Rate  max30100.SampleRate
}

// NewSession starts a session at start for samples taken at rate.
func NewSession(start time.Time, rate max30100.SampleRate) Session {
	return Session{
		ID:    uuid.New(),
		Start: start,
		Rate:  rate,
	}
}

// At returns the time of sample n.
func (s Session) At(n int64) time.Time {
	return s.Start.Add(time.Duration(float64(n) / s.Rate.Hz() * float64(time.Second)))
}

// Reading returns the reading of out.
func (s Session) Reading(out Output) Reading {
	return Reading{
		Session:    s.ID,
		Sample:     out.Sample,
		Time:       s.At(out.Sample),
		BPM:        out.HeartBPM,
		SpO2:       out.SpO2,
		Threshold:  out.LastBeatThreshold,
		RedCurrent: out.RedCurrent,
	}
}
