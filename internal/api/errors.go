package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"icemeta/internal/domain"
)

// httpStatusFromReturnStatus maps an operation status onto an HTTP code.
// Resolution failures are 404s; conflicts of any flavour are 409s.
func httpStatusFromReturnStatus(s domain.ReturnStatus) int {
	switch s {
	case domain.StatusSuccess:
		return http.StatusOK
	case domain.StatusEntityNotFound,
		domain.StatusEntityCannotBeResolved,
		domain.StatusCatalogPathCannotBeResolved,
		domain.StatusGrantNotFound:
		return http.StatusNotFound
	case domain.StatusEntityAlreadyExists,
		domain.StatusEntityCannotBeRenamed,
		domain.StatusEntityUndroppable,
		domain.StatusNamespaceNotEmpty,
		domain.StatusCatalogNotEmpty,
		domain.StatusTargetEntityConcurrentlyModified:
		return http.StatusConflict
	case domain.StatusSubscopeCredsError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// statusEnvelope is embedded in every operation response.
type statusEnvelope struct {
	Status           string `json:"status"`
	ExtraInformation string `json:"extraInformation,omitempty"`
}

func envelope(r domain.BaseResult) statusEnvelope {
	return statusEnvelope{Status: r.Status.String(), ExtraInformation: r.ExtraInformation}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult serializes an operation response at the HTTP status implied by
// the result.
func writeResult(w http.ResponseWriter, base domain.BaseResult, body any) {
	writeJSON(w, httpStatusFromReturnStatus(base.Status), body)
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Code: status, Message: message})
}

// decode parses the JSON request body into v, responding with 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathID parses an int64 URL parameter, responding with 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" path parameter")
		return 0, false
	}
	return v, true
}
