package api

import (
	"net/http"
)

type baseResponse struct {
	statusEnvelope
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	result := s.manager.Bootstrap(r.Context())
	writeResult(w, result, baseResponse{envelope(result)})
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	result := s.manager.Purge(r.Context())
	writeResult(w, result, baseResponse{envelope(result)})
}

type generateEntityIDResponse struct {
	statusEnvelope
	ID int64 `json:"id,omitempty"`
}

func (s *Server) handleGenerateEntityID(w http.ResponseWriter, r *http.Request) {
	result := s.manager.GenerateNewEntityID(r.Context())
	writeResult(w, result.BaseResult, generateEntityIDResponse{envelope(result.BaseResult), result.ID})
}
