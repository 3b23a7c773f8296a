package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/nvdisplay-core/internal/audit"
	"github.com/nerrad567/nvdisplay-core/internal/control"
	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// displayResponse is one display with its attribute readings.
type displayResponse struct {
	display.Display
	Attributes []control.Reading `json:"attributes"`
}

// attributeResponse is the body of the attribute endpoints.
type attributeResponse struct {
	DisplayID  string              `json:"display_id"`
	Display    string              `json:"display"`
	Kind       display.Kind        `json:"kind"`
	Value      int64               `json:"value"`
	Label      string              `json:"label"`
	ObservedAt time.Time           `json:"observed_at,omitzero"`
	Stale      bool                `json:"stale"`
	StaleCause string              `json:"stale_cause,omitempty"`
	Range      *display.ValueRange `json:"range,omitempty"`
}

// setAttributeRequest is the body of PUT .../attributes/{kind}. Value is a
// number, a label ("limited", "ycbcr444", "on") or a boolean.
type setAttributeRequest struct {
	Value json.RawMessage `json:"value"`
}

// handleListDisplays returns every display of the backend.
func (s *Server) handleListDisplays(w http.ResponseWriter, r *http.Request) {
	displays, err := s.service.ListDisplays(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"displays": displays,
		"count":    len(displays),
	})
}

// handleGetDisplay returns one display with a snapshot of its attributes.
func (s *Server) handleGetDisplay(w http.ResponseWriter, r *http.Request) {
	d, err := s.service.Display(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	readings, err := s.service.Snapshot(r.Context(), d.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, displayResponse{Display: d, Attributes: readings})
}

// handleGetAttribute returns the value of one attribute, served from the
// cache while fresh, with its legal range.
func (s *Server) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	d, kind, ok := s.resolveAttribute(w, r)
	if !ok {
		return
	}
	s.writeAttribute(w, r, d, kind)
}

// handleSetAttribute changes one attribute on behalf of the token subject.
func (s *Server) handleSetAttribute(w http.ResponseWriter, r *http.Request) {
	d, kind, ok := s.resolveAttribute(w, r)
	if !ok {
		return
	}

	var req setAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Value) == 0 {
		writeBadRequest(w, "value is required")
		return
	}
	value, err := control.ParseValue(kind, req.Value)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	origin := control.Origin{Source: audit.SourceAPI, Actor: subjectFrom(r.Context())}
	if err := s.service.SetAttributeAs(r.Context(), origin, d.ID, kind, value); err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeAttribute(w, r, d, kind)
}

func (s *Server) resolveAttribute(w http.ResponseWriter, r *http.Request) (display.Display, display.Kind, bool) {
	kind, err := display.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeDomainError(w, err)
		return display.Display{}, "", false
	}
	d, err := s.service.Display(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return display.Display{}, "", false
	}
	return d, kind, true
}

func (s *Server) writeAttribute(w http.ResponseWriter, r *http.Request, d display.Display, kind display.Kind) {
	res, err := s.service.GetAttribute(r.Context(), d.ID, kind)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := attributeResponse{
		DisplayID:  d.ID.String(),
		Display:    d.Name,
		Kind:       kind,
		Value:      res.Value.Raw,
		Label:      res.Value.String(),
		ObservedAt: res.ObservedAt,
		Stale:      res.Stale,
		StaleCause: res.CauseString(),
	}
	if rng, err := s.service.ValidValues(r.Context(), d.ID, kind); err == nil {
		resp.Range = &rng
	}
	writeJSON(w, http.StatusOK, resp)
}
