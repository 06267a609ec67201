package httpapi

import (
	"net/http"
	"time"

	"github.com/openfleet/lastmile/internal/application/simulation"
	"github.com/openfleet/lastmile/internal/domain/event"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

func (s *Server) simulator(w http.ResponseWriter) (SimulatorControl, bool) {
	if s.deps.Simulator == nil {
		writeError(w, shared.NewDomainError(shared.KindServiceUnavailable, "condition simulator is not enabled"))
		return nil, false
	}
	return s.deps.Simulator, true
}

func (s *Server) handleSimulationStart(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.simulator(w)
	if !ok {
		return
	}
	sim.Start(r.Context())
	respondJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleSimulationStop(w http.ResponseWriter, _ *http.Request) {
	sim, ok := s.simulator(w)
	if !ok {
		return
	}
	sim.Stop()
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

type forceEventRequest struct {
	Kind      string                 `json:"kind" validate:"required"`
	Overrides map[string]interface{} `json:"overrides,omitempty"`
}

func (s *Server) handleSimulationForceEvent(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.simulator(w)
	if !ok {
		return
	}
	var req forceEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "invalid force-event request", err))
		return
	}

	ev := sim.ForceEvent(r.Context(), event.Kind(req.Kind), req.Overrides)
	respondJSON(w, http.StatusCreated, ev)
}

type simulationParamsRequest struct {
	UpdateIntervalS  float64            `json:"update_interval_s,omitempty" validate:"omitempty,gt=0"`
	Speed            float64            `json:"speed,omitempty" validate:"omitempty,gt=0,lte=100"`
	Probabilities    map[string]float64 `json:"probabilities,omitempty" validate:"omitempty,dive,gte=0,lte=1"`
	MinEventDurationS float64           `json:"min_event_duration_s,omitempty" validate:"omitempty,gt=0"`
	MaxEventDurationS float64           `json:"max_event_duration_s,omitempty" validate:"omitempty,gt=0"`
	Seed             int64              `json:"seed,omitempty"`
}

func (s *Server) handleSimulationParameters(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.simulator(w)
	if !ok {
		return
	}
	var req simulationParamsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, shared.WrapDomainError(shared.KindInvalidInput, "invalid simulation parameters", err))
		return
	}

	params := simulation.Params{
		UpdateInterval:   time.Duration(req.UpdateIntervalS * float64(time.Second)),
		Speed:            req.Speed,
		MinEventDuration: time.Duration(req.MinEventDurationS * float64(time.Second)),
		MaxEventDuration: time.Duration(req.MaxEventDurationS * float64(time.Second)),
		Seed:             req.Seed,
	}
	if len(req.Probabilities) > 0 {
		params.Probabilities = make(map[event.Kind]float64, len(req.Probabilities))
		for kind, p := range req.Probabilities {
			params.Probabilities[event.Kind(kind)] = p
		}
	}
	sim.UpdateParams(params)
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSimulationConditions(w http.ResponseWriter, _ *http.Request) {
	sim, ok := s.simulator(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sim.Conditions())
}
