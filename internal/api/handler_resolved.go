package api

import (
	"net/http"

	"icemeta/internal/domain"
)

type resolvedEntityResponse struct {
	statusEnvelope
	Entity        *domain.Entity       `json:"entity,omitempty"`
	GrantsVersion int                  `json:"grantsVersion,omitempty"`
	Grants        []domain.GrantRecord `json:"grants,omitempty"`
}

func resolvedBody(result domain.ResolvedEntityResult) resolvedEntityResponse {
	return resolvedEntityResponse{envelope(result.BaseResult), result.Entity, result.GrantsVersion, result.Grants}
}

func (s *Server) handleResolvedByID(w http.ResponseWriter, r *http.Request) {
	catalogID, ok := pathID(w, r, "catalogID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result := s.manager.LoadResolvedEntityByID(r.Context(), catalogID, id)
	writeResult(w, result.BaseResult, resolvedBody(result))
}

type resolvedLookupRequest struct {
	CatalogID int64             `json:"catalogId"`
	ParentID  int64             `json:"parentId"`
	TypeCode  domain.EntityType `json:"typeCode"`
	Name      string            `json:"name"`
}

func (s *Server) handleResolvedByName(w http.ResponseWriter, r *http.Request) {
	var req resolvedLookupRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.LoadResolvedEntityByName(r.Context(), req.CatalogID, req.ParentID, req.TypeCode, req.Name)
	writeResult(w, result.BaseResult, resolvedBody(result))
}

type refreshResolvedRequest struct {
	EntityVersion       int               `json:"entityVersion"`
	GrantRecordsVersion int               `json:"grantRecordsVersion"`
	CatalogID           int64             `json:"catalogId"`
	TypeCode            domain.EntityType `json:"typeCode"`
	ID                  int64             `json:"id"`
}

func (s *Server) handleRefreshResolved(w http.ResponseWriter, r *http.Request) {
	var req refreshResolvedRequest
	if !decode(w, r, &req) {
		return
	}
	versions := domain.ChangeTrackingVersions{
		EntityVersion:       req.EntityVersion,
		GrantRecordsVersion: req.GrantRecordsVersion,
	}
	result := s.manager.RefreshResolvedEntity(r.Context(), versions, req.CatalogID, req.TypeCode, req.ID)
	writeResult(w, result.BaseResult, resolvedBody(result))
}
