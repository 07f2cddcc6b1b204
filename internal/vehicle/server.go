// Package vehicle talks to the cabin control API: lights, climate, and
// audio. [Server] is an in-process mock of the vehicle's control endpoint
// used in demo and bench configurations; [Client] is the HTTP client the
// assistant's tools go through, so swapping in the real vehicle endpoint is
// a config change.
package vehicle

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/glydways/clyde/internal/ride"
)

// Server is a mock cabin control endpoint holding one cabin state in memory.
// Every mutation returns the full updated state, matching the real vehicle
// API contract.
type Server struct {
	log *slog.Logger

	mu    sync.Mutex
	state ride.CabinState
}

// NewServer creates a Server with the power-on cabin defaults.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log, state: ride.DefaultCabinState()}
}

// Handler returns the HTTP handler for the cabin control endpoints:
//
//	GET  /state    — full cabin state
//	POST /lights   — set brightness and/or color temperature
//	POST /climate  — set temperature and/or fan speed
//	POST /audio    — play, pause, or stop cabin audio
//
// Every response body is the full cabin state after the change.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /lights", s.handleLights)
	mux.HandleFunc("POST /climate", s.handleClimate)
	mux.HandleFunc("POST /audio", s.handleAudio)
	return mux
}

// State returns a copy of the current cabin state.
func (s *Server) State() ride.CabinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.State())
}

// lightsRequest is the JSON body for POST /lights. Absent fields leave the
// current value untouched.
type lightsRequest struct {
	Brightness *int    `json:"brightness"`
	ColorTemp  *string `json:"color_temp"`
}

func (s *Server) handleLights(w http.ResponseWriter, r *http.Request) {
	var req lightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Brightness != nil && (*req.Brightness < 0 || *req.Brightness > 100) {
		http.Error(w, "brightness must be between 0 and 100", http.StatusBadRequest)
		return
	}
	if req.ColorTemp != nil && !validColorTemp(*req.ColorTemp) {
		http.Error(w, "color_temp must be warm, neutral or cool", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if req.Brightness != nil {
		s.state.Lights.Brightness = *req.Brightness
	}
	if req.ColorTemp != nil {
		s.state.Lights.ColorTemp = *req.ColorTemp
	}
	state := s.state
	s.mu.Unlock()

	s.log.Debug("lights updated", "brightness", state.Lights.Brightness, "color_temp", state.Lights.ColorTemp)
	writeJSON(w, http.StatusOK, state)
}

// climateRequest is the JSON body for POST /climate. Absent fields leave the
// current value untouched.
type climateRequest struct {
	TempF    *int    `json:"temp_f"`
	FanSpeed *string `json:"fan_speed"`
}

func (s *Server) handleClimate(w http.ResponseWriter, r *http.Request) {
	var req climateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TempF != nil && (*req.TempF < 60 || *req.TempF > 85) {
		http.Error(w, "temp_f must be between 60 and 85", http.StatusBadRequest)
		return
	}
	if req.FanSpeed != nil && !validFanSpeed(*req.FanSpeed) {
		http.Error(w, "fan_speed must be off, low, medium, high or auto", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	if req.TempF != nil {
		s.state.Climate.TempF = *req.TempF
	}
	if req.FanSpeed != nil {
		s.state.Climate.FanSpeed = *req.FanSpeed
	}
	state := s.state
	s.mu.Unlock()

	s.log.Debug("climate updated", "temp_f", state.Climate.TempF, "fan_speed", state.Climate.FanSpeed)
	writeJSON(w, http.StatusOK, state)
}

// audioRequest is the JSON body for POST /audio.
type audioRequest struct {
	Action string  `json:"action"`
	Genre  *string `json:"genre"`
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !validAudioAction(req.Action) {
		http.Error(w, "action must be play, pause or stop", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	switch req.Action {
	case "play":
		s.state.Audio.Action = "playing"
		if req.Genre != nil {
			s.state.Audio.Genre = *req.Genre
		}
	case "pause":
		s.state.Audio.Action = "paused"
	case "stop":
		s.state.Audio.Action = "idle"
		s.state.Audio.Genre = ""
	}
	state := s.state
	s.mu.Unlock()

	s.log.Debug("audio updated", "action", state.Audio.Action, "genre", state.Audio.Genre)
	writeJSON(w, http.StatusOK, state)
}

func validColorTemp(v string) bool {
	return v == "warm" || v == "neutral" || v == "cool"
}

func validFanSpeed(v string) bool {
	switch v {
	case "off", "low", "medium", "high", "auto":
		return true
	}
	return false
}

func validAudioAction(v string) bool {
	return v == "play" || v == "pause" || v == "stop"
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
