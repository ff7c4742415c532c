package api

import (
	"net/http"

	"icemeta/internal/domain"
)

type createCatalogRequest struct {
	Catalog        domain.Entity   `json:"catalog"`
	PrincipalRoles []domain.Entity `json:"principalRoles,omitempty"`
}

type createCatalogResponse struct {
	statusEnvelope
	Catalog     *domain.Entity `json:"catalog,omitempty"`
	CatalogRole *domain.Entity `json:"catalogRole,omitempty"`
}

func (s *Server) handleCreateCatalog(w http.ResponseWriter, r *http.Request) {
	var req createCatalogRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.CreateCatalog(r.Context(), req.Catalog, req.PrincipalRoles)
	writeResult(w, result.BaseResult, createCatalogResponse{envelope(result.BaseResult), result.Catalog, result.CatalogRole})
}
