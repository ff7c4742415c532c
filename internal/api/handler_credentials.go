package api

import (
	"net/http"

	"icemeta/internal/domain"
)

type subscopeRequest struct {
	AllowListOperation    bool     `json:"allowListOperation"`
	AllowedReadLocations  []string `json:"allowedReadLocations,omitempty"`
	AllowedWriteLocations []string `json:"allowedWriteLocations,omitempty"`
}

type subscopeResponse struct {
	statusEnvelope
	Credentials map[domain.CredentialProperty]string `json:"credentials,omitempty"`
}

func (s *Server) handleSubscopeCredentials(w http.ResponseWriter, r *http.Request) {
	catalogID, ok := pathID(w, r, "catalogID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req subscopeRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.GetSubscopedCredsForEntity(r.Context(), catalogID, id,
		req.AllowListOperation, req.AllowedReadLocations, req.AllowedWriteLocations)
	writeResult(w, result.BaseResult, subscopeResponse{envelope(result.BaseResult), result.Credentials})
}

type validateAccessRequest struct {
	Actions   []domain.StorageAction `json:"actions"`
	Locations []string               `json:"locations"`
}

type validateAccessResponse struct {
	statusEnvelope
	Results []domain.LocationAccessResult `json:"results,omitempty"`
}

func (s *Server) handleValidateAccess(w http.ResponseWriter, r *http.Request) {
	catalogID, ok := pathID(w, r, "catalogID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req validateAccessRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.ValidateAccessToLocations(r.Context(), catalogID, id, req.Actions, req.Locations)
	writeResult(w, result.BaseResult, validateAccessResponse{envelope(result.BaseResult), result.Results})
}
