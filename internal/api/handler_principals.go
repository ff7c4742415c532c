package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"icemeta/internal/domain"
)

type createPrincipalRequest struct {
	Principal domain.Entity `json:"principal"`
}

type createPrincipalResponse struct {
	statusEnvelope
	Principal *domain.Entity           `json:"principal,omitempty"`
	Secrets   *domain.PrincipalSecrets `json:"secrets,omitempty"`
}

func (s *Server) handleCreatePrincipal(w http.ResponseWriter, r *http.Request) {
	var req createPrincipalRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.CreatePrincipal(r.Context(), req.Principal)
	writeResult(w, result.BaseResult, createPrincipalResponse{envelope(result.BaseResult), result.Principal, result.Secrets})
}

type principalSecretsResponse struct {
	statusEnvelope
	Secrets *domain.PrincipalSecrets `json:"secrets,omitempty"`
}

func (s *Server) handleLoadPrincipalSecrets(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	result := s.manager.LoadPrincipalSecrets(r.Context(), clientID)
	writeResult(w, result.BaseResult, principalSecretsResponse{envelope(result.BaseResult), result.Secrets})
}

type rotateSecretsRequest struct {
	PrincipalID   int64  `json:"principalId"`
	Reset         bool   `json:"reset"`
	OldSecretHash string `json:"oldSecretHash"`
}

func (s *Server) handleRotatePrincipalSecrets(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	var req rotateSecretsRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.RotatePrincipalSecrets(r.Context(), clientID, req.PrincipalID, req.Reset, req.OldSecretHash)
	writeResult(w, result.BaseResult, principalSecretsResponse{envelope(result.BaseResult), result.Secrets})
}
