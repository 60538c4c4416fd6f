package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/stripgate/internal/audit"
	"github.com/nerrad567/stripgate/internal/power"
)

// switchResponse is the body of a successful on/off request.
type switchResponse struct {
	Success bool               `json:"success"`
	Result  power.ActionResult `json:"result"`
}

// handlePowerOn switches one outlet on.
func (s *Server) handlePowerOn(w http.ResponseWriter, r *http.Request) {
	s.handleSwitch(w, r, power.StateOn)
}

// handlePowerOff switches one outlet off.
func (s *Server) handlePowerOff(w http.ResponseWriter, r *http.Request) {
	s.handleSwitch(w, r, power.StateOff)
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request, state power.State) {
	address := chi.URLParam(r, "address")
	outlet, err := strconv.Atoi(chi.URLParam(r, "outlet"))
	if err != nil {
		writeUnprocessable(w, "outlet number must be an integer")
		return
	}

	result, err := s.controller.Execute(r.Context(), power.Command{
		Address: address,
		Outlet:  outlet,
		State:   state,
		Source:  audit.SourceHTTP,
	})
	if err != nil {
		s.logger.Warn("outlet command failed",
			"address", address,
			"outlet", outlet,
			"state", state,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeControllerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, switchResponse{Success: true, Result: result})
}

// handleStripStatus refreshes a strip and returns every outlet's state.
func (s *Server) handleStripStatus(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	status, err := s.controller.Status(r.Context(), address)
	if err != nil {
		s.logger.Warn("strip status failed", "address", address, "error", err)
		writeControllerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
