package api

import (
	"net/http"
)

type leaseTasksRequest struct {
	ExecutorID string `json:"executorId"`
	Limit      int    `json:"limit"`
}

func (s *Server) handleLeaseTasks(w http.ResponseWriter, r *http.Request) {
	var req leaseTasksRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ExecutorID == "" {
		writeError(w, http.StatusBadRequest, "executorId is required")
		return
	}
	if req.Limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be positive")
		return
	}
	result := s.manager.LoadTasks(r.Context(), req.ExecutorID, req.Limit)
	writeResult(w, result.BaseResult, entitiesResponse{envelope(result.BaseResult), result.Entities})
}
