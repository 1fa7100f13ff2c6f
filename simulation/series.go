package simulation

import (
	"errors"
	"fmt"
)

// ErrEpochNotIncreasing is returned when a point does not advance the epoch.
var ErrEpochNotIncreasing = errors.New("epoch must be strictly increasing")

// DefaultWindow is used when a pipeline does not configure one.
const DefaultWindow = 50

// Point is one value of a signal at an epoch.
type Point struct {
	Epoch int     `json:"epoch"`
	Value float64 `json:"value"`
}

// Series is a bounded, epoch-ordered history of one signal. Only the last
// window points are retained.
type Series struct {
	ring *Ring[Point]
}

// NewSeries creates a series retaining window points.
func NewSeries(window int) *Series {
	if window < 1 {
		window = DefaultWindow
	}
	return &Series{ring: NewRing[Point](window)}
}

// Append adds p. Its epoch must exceed the newest retained epoch.
func (s *Series) Append(p Point) error {
	if last, ok := s.ring.Newest(); ok && p.Epoch <= last.Epoch {
		return fmt.Errorf("%w: %d after %d", ErrEpochNotIncreasing, p.Epoch, last.Epoch)
	}
	s.ring.Push(p)
	return nil
}

// Points returns the retained points, oldest first.
func (s *Series) Points() []Point { return s.ring.All() }

// Len returns the number of retained points.
func (s *Series) Len() int { return s.ring.Size() }

// Window returns the retention bound.
func (s *Series) Window() int { return s.ring.Capacity() }

// Clear drops every point.
func (s *Series) Clear() { s.ring.Clear() }

// MetricSet groups the three tracked signals of a run.
type MetricSet struct {
	Generator     *Series
	Discriminator *Series
	PSNR          *Series
}

// NewMetricSet creates three series sharing one window.
func NewMetricSet(window int) MetricSet {
	return MetricSet{
		Generator:     NewSeries(window),
		Discriminator: NewSeries(window),
		PSNR:          NewSeries(window),
	}
}

// Clear empties all three series.
func (m MetricSet) Clear() {
	m.Generator.Clear()
	m.Discriminator.Clear()
	m.PSNR.Clear()
}

// Empty reports whether no signal holds a point.
func (m MetricSet) Empty() bool {
	return m.Generator.Len() == 0 && m.Discriminator.Len() == 0 && m.PSNR.Len() == 0
}

// SeriesView is the JSON shape of a MetricSet.
type SeriesView struct {
	Generator     []Point `json:"generatorLoss"`
	Discriminator []Point `json:"discriminatorLoss"`
	PSNR          []Point `json:"psnr"`
}

// View copies the current points of every signal.
func (m MetricSet) View() SeriesView {
	return SeriesView{
		Generator:     m.Generator.Points(),
		Discriminator: m.Discriminator.Points(),
		PSNR:          m.PSNR.Points(),
	}
}
