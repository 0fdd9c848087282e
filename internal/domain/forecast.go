package domain

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"slices"
	"time"
)

const (
	// DefaultFutureHours is used when a request leaves FutureHours unset.
	DefaultFutureHours = 6
	// CommuteImpulse is added to the walk during commute hours.
	CommuteImpulse = 10
	// BoundSpreadPerHour widens the uncertainty band by this much per hour ahead.
	BoundSpreadPerHour = 3
	// IndustryDamping is the share of the index removed at full industrial reduction.
	IndustryDamping = 0.3
)

var (
	allowedPastHours   = []int{0, 6, 12}
	allowedFutureHours = []int{6, 8, 12}
)

// commuteWindows are [start, end) local hours with heavier traffic.
var commuteWindows = [][2]int{{8, 9}, {17, 19}}

// StepStrategy supplies the per-hour increments of the random walk.
type StepStrategy interface {
	// PastStep is the increment between consecutive past hours.
	PastStep(r *rand.Rand) int
	// NearStep is the increment for the first projected hour.
	NearStep(r *rand.Rand) int
	// FarStep is the increment for every later projected hour.
	FarStep(r *rand.Rand) int
}

// RangeSteps draws uniform integer steps from half-open ranges.
type RangeSteps struct {
	Past [2]int
	Near [2]int
	Far  [2]int
}

// DefaultSteps has a narrow first hour and an upward-biased tail.
var DefaultSteps = RangeSteps{
	Past: [2]int{-8, 8},
	Near: [2]int{-3, 4},
	Far:  [2]int{-5, 12},
}

func (s RangeSteps) PastStep(r *rand.Rand) int { return drawRange(r, s.Past) }
func (s RangeSteps) NearStep(r *rand.Rand) int { return drawRange(r, s.Near) }
func (s RangeSteps) FarStep(r *rand.Rand) int  { return drawRange(r, s.Far) }

func drawRange(r *rand.Rand, rg [2]int) int {
	if rg[1] <= rg[0] {
		return rg[0]
	}
	return rg[0] + r.IntN(rg[1]-rg[0])
}

// PolicyIntensity describes a simulated intervention. Both values are in [0, 1].
type PolicyIntensity struct {
	Traffic  float64 `json:"traffic"`
	Industry float64 `json:"industry"`
}

// ForecastRequest is the input of Synthesize.
type ForecastRequest struct {
	Current     int
	Geo         Geo
	PastHours   int
	FutureHours int
	Bounds      bool
	Policy      *PolicyIntensity
	// Stable seeds the walk from Current and Geo so repeated requests for the
	// same place and value draw the same series. Policy requests are always stable.
	Stable bool
}

// Validate checks the request against the synthesizer's contract.
func (r ForecastRequest) Validate() error {
	if r.Current < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAQI, r.Current)
	}
	if !slices.Contains(allowedPastHours, r.PastHours) {
		return fmt.Errorf("%w: past hours %d", ErrInvalidForecastLength, r.PastHours)
	}
	if r.FutureHours != 0 && !slices.Contains(allowedFutureHours, r.FutureHours) {
		return fmt.Errorf("%w: future hours %d", ErrInvalidForecastLength, r.FutureHours)
	}
	if p := r.Policy; p != nil {
		if !inUnit(p.Traffic) || !inUnit(p.Industry) {
			return fmt.Errorf("%w: traffic=%g industry=%g", ErrIntensityOutOfRange, p.Traffic, p.Industry)
		}
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

// Point is one hourly value of a series.
type Point struct {
	Time  time.Time `json:"time"`
	Value int       `json:"value"`
	Lower *int      `json:"lower,omitempty"`
	Upper *int      `json:"upper,omitempty"`
}

// Forecast holds the series produced for one render.
type Forecast struct {
	Past    []Point `json:"past,omitempty"`
	Forward []Point `json:"forward"`
	Policy  []Point `json:"policy,omitempty"`
	Seed    uint64  `json:"seed"`
	Seeded  bool    `json:"seeded"`
}

// Synthesizer generates forecast series from a step strategy.
type Synthesizer struct {
	steps   StepStrategy
	entropy func() uint64
}

// NewSynthesizer creates a synthesizer. A nil strategy uses DefaultSteps.
func NewSynthesizer(steps StepStrategy) *Synthesizer {
	if steps == nil {
		steps = DefaultSteps
	}
	return &Synthesizer{steps: steps, entropy: rand.Uint64}
}

// SeedFor derives the walk seed from the current value and the location.
func SeedFor(current int, geo Geo) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%.4f|%.4f", current, geo.Lat, geo.Lon)
	return h.Sum64()
}

// Synthesize produces the past, forward and optional policy series. The first
// forward point (and first policy point) always equals req.Current.
func (s *Synthesizer) Synthesize(req ForecastRequest) (Forecast, error) {
	if err := req.Validate(); err != nil {
		return Forecast{}, err
	}
	future := req.FutureHours
	if future == 0 {
		future = DefaultFutureHours
	}

	seeded := req.Stable || req.Policy != nil
	seed := s.entropy()
	if seeded {
		seed = SeedFor(req.Current, req.Geo)
	}
	r := rand.New(rand.NewPCG(seed, seed>>1|1))
	now := clock.Now().In(taipei)

	fc := Forecast{Seed: seed, Seeded: seeded}
	fc.Past = s.walkBack(r, now, req.Current, req.PastHours)

	trends := make([]int, future)
	for h := range trends {
		if h == 0 {
			trends[h] = s.steps.NearStep(r)
		} else {
			trends[h] = s.steps.FarStep(r)
		}
	}

	fc.Forward = walkForward(now, req.Current, trends, req.Bounds)
	if req.Policy != nil {
		fc.Policy = walkPolicy(now, req.Current, trends, *req.Policy)
	}
	return fc, nil
}

func (s *Synthesizer) walkBack(r *rand.Rand, now time.Time, current, hours int) []Point {
	if hours == 0 {
		return nil
	}
	past := make([]Point, hours)
	prev := current
	for i := hours - 1; i >= 0; i-- {
		if i < hours-1 {
			prev = max(AQIFloor, prev+s.steps.PastStep(r))
		}
		past[i] = Point{Time: now.Add(-time.Duration(hours-i) * time.Hour), Value: prev}
	}
	return past
}

func walkForward(now time.Time, current int, trends []int, bounds bool) []Point {
	out := make([]Point, 0, len(trends)+1)
	out = append(out, withBounds(Point{Time: now, Value: current}, 0, bounds))
	prev := current
	for i, trend := range trends {
		h := i + 1
		t := now.Add(time.Duration(h) * time.Hour)
		prev = max(AQIFloor, prev+trend+commuteImpulse(t))
		out = append(out, withBounds(Point{Time: t, Value: prev}, h, bounds))
	}
	return out
}

func walkPolicy(now time.Time, current int, trends []int, p PolicyIntensity) []Point {
	out := make([]Point, 0, len(trends)+1)
	out = append(out, Point{Time: now, Value: current})
	scale := 1 - p.Industry*IndustryDamping
	prev := float64(current)
	for i, trend := range trends {
		t := now.Add(time.Duration(i+1) * time.Hour)
		prev = math.Max(AQIFloor, prev+float64(trend)+float64(commuteImpulse(t))*(1-p.Traffic))
		v := max(AQIFloor, int(math.Round(prev*scale)))
		out = append(out, Point{Time: t, Value: v})
	}
	return out
}

// withBounds attaches a band of width 2*BoundSpreadPerHour*hour centred on the
// value. A band that would dip below 0 is shifted up to start at 0, so the
// width never shrinks as the horizon grows.
func withBounds(p Point, hour int, bounds bool) Point {
	if !bounds {
		return p
	}
	spread := BoundSpreadPerHour * hour
	lower := max(0, p.Value-spread)
	upper := lower + 2*spread
	p.Lower, p.Upper = &lower, &upper
	return p
}

func commuteImpulse(t time.Time) int {
	h := t.In(taipei).Hour()
	for _, w := range commuteWindows {
		if h >= w[0] && h < w[1] {
			return CommuteImpulse
		}
	}
	return 0
}
