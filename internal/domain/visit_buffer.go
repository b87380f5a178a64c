package domain

import "fmt"

// VisitBuffer is the mutable editing area where visits are assembled before
// they are submitted. It always holds at least one visit.
type VisitBuffer struct {
	visits []Observation
}

// NewVisitBuffer creates a buffer seeded with the given visits, or with a
// single default visit when none are given.
func NewVisitBuffer(initial ...Observation) *VisitBuffer {
	b := &VisitBuffer{}
	if len(initial) == 0 {
		b.visits = []Observation{DefaultObservation()}
		return b
	}
	b.visits = append(b.visits, initial...)
	return b
}

// Len returns the number of visits in the buffer.
func (b *VisitBuffer) Len() int {
	return len(b.visits)
}

// Add appends a visit populated with schema defaults and returns its index.
func (b *VisitBuffer) Add() int {
	b.visits = append(b.visits, DefaultObservation())
	return len(b.visits) - 1
}

// RemoveLast drops the most recent visit. The last remaining visit cannot be removed.
func (b *VisitBuffer) RemoveLast() error {
	if len(b.visits) <= 1 {
		return ErrLastVisit
	}
	b.visits = b.visits[:len(b.visits)-1]
	return nil
}

// Set updates one feature of the visit at index.
func (b *VisitBuffer) Set(index int, key FeatureKey, value float64) error {
	if index < 0 || index >= len(b.visits) {
		return fmt.Errorf("visit index %d out of range [0,%d)", index, len(b.visits))
	}
	return b.visits[index].Set(key, value)
}

// Visit returns a copy of the visit at index.
func (b *VisitBuffer) Visit(index int) (Observation, bool) {
	if index < 0 || index >= len(b.visits) {
		return Observation{}, false
	}
	return b.visits[index], true
}

// Snapshot returns the visits as a sequence detached from the buffer, so later
// edits do not affect what was submitted.
func (b *VisitBuffer) Snapshot() ObservationSequence {
	return ObservationSequence(b.visits).Clone()
}
