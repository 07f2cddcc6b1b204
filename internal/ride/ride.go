// Package ride models the state of the ride in progress: route, timing, and
// cabin comfort settings. A [Context] snapshot is injected into the LLM on
// every turn and drives the proactive trigger predicates.
package ride

import (
	"encoding/json"
	"sync"
	"time"
)

// LightsState is the cabin lighting configuration.
type LightsState struct {
	Brightness int    `json:"brightness"` // 0-100
	ColorTemp  string `json:"color_temp"` // warm | neutral | cool
}

// ClimateState is the cabin climate configuration.
type ClimateState struct {
	TempF    int    `json:"temp_f"`
	FanSpeed string `json:"fan_speed"` // off | low | medium | high | auto
}

// AudioState is the cabin audio configuration.
type AudioState struct {
	Action string `json:"action"` // idle | playing | paused
	Genre  string `json:"genre,omitempty"`
}

// CabinState aggregates the controllable cabin systems. It mirrors the
// vehicle API's GET /state response.
type CabinState struct {
	Lights  LightsState  `json:"lights"`
	Climate ClimateState `json:"climate"`
	Audio   AudioState   `json:"audio"`
}

// DefaultCabinState returns the power-on cabin configuration.
func DefaultCabinState() CabinState {
	return CabinState{
		Lights:  LightsState{Brightness: 100, ColorTemp: "neutral"},
		Climate: ClimateState{TempF: 72, FanSpeed: "auto"},
		Audio:   AudioState{Action: "idle"},
	}
}

// Context is one snapshot of the ride state.
type Context struct {
	RouteName           string     `json:"route_name"`
	CurrentStop         string     `json:"current_stop"`
	NextStop            string     `json:"next_stop"`
	ETASeconds          int        `json:"eta_seconds"`
	RideDurationSeconds int        `json:"ride_duration_seconds"`
	ElapsedSeconds      int        `json:"elapsed_seconds"`
	HourOfDay           int        `json:"hour_of_day"`
	PassengerCount      int        `json:"passenger_count"`
	Cabin               CabinState `json:"cabin"`
}

// PromptBlock serialises the snapshot for injection into the system prompt.
func (c Context) PromptBlock() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ProgressPct returns how far through the ride we are, capped at 90 so the
// display never claims arrival before the vehicle does.
func (c Context) ProgressPct() int {
	if c.RideDurationSeconds <= 0 {
		return 0
	}
	pct := c.ElapsedSeconds * 100 / c.RideDurationSeconds
	if pct > 90 {
		return 90
	}
	return pct
}

// Source provides the current ride context. The mock implementation below
// simulates a ride; a production build would back this with the vehicle's
// trip computer.
type Source interface {
	Context() Context
}

// MockSource simulates a ride: elapsed time advances with the wall clock and
// the ETA counts down from the ride duration. Cabin state is updated
// externally via SetCabin as the vehicle API reports changes.
type MockSource struct {
	route          string
	currentStop    string
	nextStop       string
	duration       time.Duration
	passengerCount int

	now   func() time.Time
	start time.Time

	mu    sync.Mutex
	cabin CabinState
}

// MockOption is a functional option for configuring a MockSource.
type MockOption func(*MockSource)

// WithRoute sets the route and stop names.
func WithRoute(route, currentStop, nextStop string) MockOption {
	return func(s *MockSource) {
		s.route = route
		s.currentStop = currentStop
		s.nextStop = nextStop
	}
}

// WithDuration sets the total simulated ride duration.
func WithDuration(d time.Duration) MockOption {
	return func(s *MockSource) { s.duration = d }
}

// WithPassengers sets the passenger count.
func WithPassengers(n int) MockOption {
	return func(s *MockSource) { s.passengerCount = n }
}

// WithMockClock replaces the wall clock.
func WithMockClock(now func() time.Time) MockOption {
	return func(s *MockSource) { s.now = now }
}

// Compile-time assertion that MockSource satisfies Source.
var _ Source = (*MockSource)(nil)

// NewMockSource starts a simulated ride at the current time.
func NewMockSource(opts ...MockOption) *MockSource {
	s := &MockSource{
		route:          "Downtown Loop",
		currentStop:    "Main St",
		nextStop:       "Civic Center",
		duration:       15 * time.Minute,
		passengerCount: 2,
		now:            time.Now,
		cabin:          DefaultCabinState(),
	}
	for _, o := range opts {
		o(s)
	}
	s.start = s.now()
	return s
}

// Context implements [Source].
func (s *MockSource) Context() Context {
	now := s.now()
	elapsed := int(now.Sub(s.start).Seconds())
	eta := int(s.duration.Seconds()) - elapsed
	if eta < 0 {
		eta = 0
	}

	s.mu.Lock()
	cabin := s.cabin
	s.mu.Unlock()

	return Context{
		RouteName:           s.route,
		CurrentStop:         s.currentStop,
		NextStop:            s.nextStop,
		ETASeconds:          eta,
		RideDurationSeconds: int(s.duration.Seconds()),
		ElapsedSeconds:      elapsed,
		HourOfDay:           now.Hour(),
		PassengerCount:      s.passengerCount,
		Cabin:               cabin,
	}
}

// SetCabin replaces the cabin snapshot, typically with the latest vehicle
// API state.
func (s *MockSource) SetCabin(c CabinState) {
	s.mu.Lock()
	s.cabin = c
	s.mu.Unlock()
}
