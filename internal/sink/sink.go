/*
Package sink writes interval records to files, the console and a Prometheus
endpoint.
*/
/*
 * Copyright (C) 2023 Intel Corporation
 * SPDX-License-Identifier: MIT
 */
package sink

import (
	"errors"
	"math"
	"time"

	"github.com/intel/powermeter/internal/rapl"
)

// Status tells whether a record's numbers can be trusted.
type Status string

const (
	StatusOK              Status = "ok"
	StatusDegraded        Status = "degraded"         // some nodes or devices were left out
	StatusError           Status = "error"            // the reading failed
	StatusInvalidInterval Status = "invalid_interval" // elapsed time was not positive
)

// Value is a named derived metric.
type Value struct {
	Name  string
	Value float64
}

// Record is one stream's result for one interval.
type Record struct {
	Stream      string    `csv:"-"`
	Timestamp   time.Time `csv:"-"`
	Power       float64   `csv:"power"`
	Energy      float64   `csv:"energy"`
	TotalEnergy float64   `csv:"total_energy"`
	Elapsed     float64   `csv:"elapsed"` // seconds
	Status      Status    `csv:"status"`
	Derived     []Value   `csv:"-"`
}

// NewRecord builds the record for an interval result and the error, if any,
// returned while reading or diffing it.
func NewRecord(stream string, ts time.Time, result rapl.IntervalResult, err error) (rec Record) {
	rec = Record{
		Stream:      stream,
		Timestamp:   ts,
		Power:       result.Power,
		Energy:      result.Energy,
		TotalEnergy: result.TotalEnergy,
		Elapsed:     result.Elapsed.Seconds(),
		Status:      StatusOK,
	}
	switch {
	case errors.Is(err, rapl.ErrNonPositiveElapsedTime):
		rec.Status = StatusInvalidInterval
		rec.Power, rec.Energy = math.NaN(), math.NaN()
	case err != nil:
		rec.Status = StatusError
		rec.Power, rec.Energy = math.NaN(), math.NaN()
	case result.Degraded():
		rec.Status = StatusDegraded
	}
	return
}

type Sink interface {
	Write(rec Record) error
	Close() error
}

// Multi writes every record to each of its sinks.
type Multi []Sink

func (m Multi) Write(rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
