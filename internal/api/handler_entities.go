package api

import (
	"net/http"

	"icemeta/internal/domain"
)

type entityResponse struct {
	statusEnvelope
	Entity *domain.Entity `json:"entity,omitempty"`
}

type entitiesResponse struct {
	statusEnvelope
	Entities []domain.Entity `json:"entities,omitempty"`
}

type createEntityRequest struct {
	CatalogPath []domain.Entity `json:"catalogPath,omitempty"`
	Entity      domain.Entity   `json:"entity"`
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req createEntityRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.CreateEntityIfNotExists(r.Context(), req.CatalogPath, req.Entity)
	writeResult(w, result.BaseResult, entityResponse{envelope(result.BaseResult), result.Entity})
}

type createEntitiesRequest struct {
	CatalogPath []domain.Entity `json:"catalogPath,omitempty"`
	Entities    []domain.Entity `json:"entities"`
}

func (s *Server) handleCreateEntities(w http.ResponseWriter, r *http.Request) {
	var req createEntitiesRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.CreateEntitiesIfNotExist(r.Context(), req.CatalogPath, req.Entities)
	writeResult(w, result.BaseResult, entitiesResponse{envelope(result.BaseResult), result.Entities})
}

type lookupEntityRequest struct {
	CatalogPath []domain.Entity      `json:"catalogPath,omitempty"`
	TypeCode    domain.EntityType    `json:"typeCode"`
	SubTypeCode domain.EntitySubType `json:"subTypeCode"`
	Name        string               `json:"name"`
}

func (s *Server) handleReadEntityByName(w http.ResponseWriter, r *http.Request) {
	var req lookupEntityRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.ReadEntityByName(r.Context(), req.CatalogPath, req.TypeCode, req.SubTypeCode, req.Name)
	writeResult(w, result.BaseResult, entityResponse{envelope(result.BaseResult), result.Entity})
}

type listEntitiesRequest struct {
	CatalogPath []domain.Entity      `json:"catalogPath,omitempty"`
	TypeCode    domain.EntityType    `json:"typeCode"`
	SubTypeCode domain.EntitySubType `json:"subTypeCode"`
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	var req listEntitiesRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.ListEntities(r.Context(), req.CatalogPath, req.TypeCode, req.SubTypeCode)
	writeResult(w, result.BaseResult, entitiesResponse{envelope(result.BaseResult), result.Entities})
}

func (s *Server) handleLoadEntity(w http.ResponseWriter, r *http.Request) {
	catalogID, ok := pathID(w, r, "catalogID")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result := s.manager.LoadEntity(r.Context(), catalogID, id)
	writeResult(w, result.BaseResult, entityResponse{envelope(result.BaseResult), result.Entity})
}

type changeTrackingRequest struct {
	IDs []domain.EntityID `json:"ids"`
}

type changeTrackingResponse struct {
	statusEnvelope
	Versions []*domain.ChangeTrackingVersions `json:"versions,omitempty"`
}

func (s *Server) handleChangeTracking(w http.ResponseWriter, r *http.Request) {
	var req changeTrackingRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.LoadEntitiesChangeTracking(r.Context(), req.IDs)
	writeResult(w, result.BaseResult, changeTrackingResponse{envelope(result.BaseResult), result.Versions})
}

func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	var req createEntityRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.UpdateEntityPropertiesIfNotChanged(r.Context(), req.CatalogPath, req.Entity)
	writeResult(w, result.BaseResult, entityResponse{envelope(result.BaseResult), result.Entity})
}

type updateEntitiesRequest struct {
	Entities []entityWithPath `json:"entities"`
}

type entityWithPath struct {
	CatalogPath []domain.Entity `json:"catalogPath,omitempty"`
	Entity      domain.Entity   `json:"entity"`
}

func (s *Server) handleUpdateEntities(w http.ResponseWriter, r *http.Request) {
	var req updateEntitiesRequest
	if !decode(w, r, &req) {
		return
	}
	batch := make([]domain.EntityWithPath, len(req.Entities))
	for i, e := range req.Entities {
		batch[i] = domain.EntityWithPath{CatalogPath: e.CatalogPath, Entity: e.Entity}
	}
	result := s.manager.UpdateEntitiesPropertiesIfNotChanged(r.Context(), batch)
	writeResult(w, result.BaseResult, entitiesResponse{envelope(result.BaseResult), result.Entities})
}

type renameEntityRequest struct {
	CatalogPath    []domain.Entity `json:"catalogPath,omitempty"`
	EntityToRename domain.Entity   `json:"entityToRename"`
	NewCatalogPath []domain.Entity `json:"newCatalogPath,omitempty"`
	RenamedEntity  domain.Entity   `json:"renamedEntity"`
}

func (s *Server) handleRenameEntity(w http.ResponseWriter, r *http.Request) {
	var req renameEntityRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.RenameEntity(r.Context(), req.CatalogPath, req.EntityToRename, req.NewCatalogPath, req.RenamedEntity)
	writeResult(w, result.BaseResult, entityResponse{envelope(result.BaseResult), result.Entity})
}

type dropEntityRequest struct {
	CatalogPath       []domain.Entity   `json:"catalogPath,omitempty"`
	Entity            domain.Entity     `json:"entity"`
	CleanupProperties map[string]string `json:"cleanupProperties,omitempty"`
	Cleanup           bool              `json:"cleanup"`
}

type dropEntityResponse struct {
	statusEnvelope
	CleanupTaskID int64 `json:"cleanupTaskId,omitempty"`
}

func (s *Server) handleDropEntity(w http.ResponseWriter, r *http.Request) {
	var req dropEntityRequest
	if !decode(w, r, &req) {
		return
	}
	result := s.manager.DropEntityIfExists(r.Context(), req.CatalogPath, req.Entity, req.CleanupProperties, req.Cleanup)
	writeResult(w, result.BaseResult, dropEntityResponse{envelope(result.BaseResult), result.CleanupTaskID})
}
