package api

import (
	"net/http"

	"icemeta/internal/domain"
)

type roleUsageRequest struct {
	Catalog *domain.Entity `json:"catalog,omitempty"`
	Role    domain.Entity  `json:"role"`
	Grantee domain.Entity  `json:"grantee"`
}

type privilegeResponse struct {
	statusEnvelope
	Grant *domain.GrantRecord `json:"grant,omitempty"`
}

func (s *Server) handleGrantRoleUsage(w http.ResponseWriter, r *http.Request) {
	var req roleUsageRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.GrantUsageOnRoleToGrantee(r.Context(), req.Catalog, req.Role, req.Grantee)
	writeResult(w, result.BaseResult, privilegeResponse{envelope(result.BaseResult), result.Grant})
}

func (s *Server) handleRevokeRoleUsage(w http.ResponseWriter, r *http.Request) {
	var req roleUsageRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.RevokeUsageOnRoleFromGrantee(r.Context(), req.Catalog, req.Role, req.Grantee)
	writeResult(w, result.BaseResult, privilegeResponse{envelope(result.BaseResult), result.Grant})
}

type privilegeRequest struct {
	Grantee     domain.Entity    `json:"grantee"`
	CatalogPath []domain.Entity  `json:"catalogPath,omitempty"`
	Securable   domain.Entity    `json:"securable"`
	Privilege   domain.Privilege `json:"privilege"`
}

func (s *Server) handleGrantPrivilege(w http.ResponseWriter, r *http.Request) {
	var req privilegeRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.GrantPrivilegeOnSecurableToRole(r.Context(), req.Grantee, req.CatalogPath, req.Securable, req.Privilege)
	writeResult(w, result.BaseResult, privilegeResponse{envelope(result.BaseResult), result.Grant})
}

func (s *Server) handleRevokePrivilege(w http.ResponseWriter, r *http.Request) {
	var req privilegeRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.RevokePrivilegeOnSecurableFromRole(r.Context(), req.Grantee, req.CatalogPath, req.Securable, req.Privilege)
	writeResult(w, result.BaseResult, privilegeResponse{envelope(result.BaseResult), result.Grant})
}

type loadGrantsResponse struct {
	statusEnvelope
	GrantsVersion int                  `json:"grantsVersion,omitempty"`
	Grants        []domain.GrantRecord `json:"grants,omitempty"`
	Entities      []domain.Entity      `json:"entities,omitempty"`
}

func (s *Server) handleGrantsOnSecurable(w http.ResponseWriter, r *http.Request) {
	catalogID, ok := pathID(w, r, "catalogID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result := s.manager.LoadGrantsOnSecurable(r.Context(), catalogID, id)
	writeResult(w, result.BaseResult, loadGrantsResponse{envelope(result.BaseResult), result.GrantsVersion, result.Grants, result.Entities})
}

func (s *Server) handleGrantsToGrantee(w http.ResponseWriter, r *http.Request) {
	catalogID, ok := pathID(w, r, "catalogID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result := s.manager.LoadGrantsToGrantee(r.Context(), catalogID, id)
	writeResult(w, result.BaseResult, loadGrantsResponse{envelope(result.BaseResult), result.GrantsVersion, result.Grants, result.Entities})
}
