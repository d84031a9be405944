package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"compass/internal/model"
	"compass/internal/softdelete"
	"compass/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else if errors.Is(err, softdelete.ErrUnknownEntityType) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Unknown entity type"
		body.Details = err.Error()
	} else if errors.Is(err, softdelete.ErrNotFound) {
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Resource not found"
		body.Details = err.Error()
	} else if errors.Is(err, softdelete.ErrPermissionDenied) || errors.Is(err, model.ErrForbidden) {
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Elevated privilege required"
	} else if errors.Is(err, model.ErrUnauthorized) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	} else if errors.Is(err, model.ErrTokenExpired) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid or expired token"
	} else if errors.Is(err, model.ErrInvalidInput) || errors.Is(err, softdelete.ErrInvalidKey) || errors.Is(err, softdelete.ErrInvalidExpiry) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
		body.Details = err.Error()
	} else if errors.Is(err, model.ErrConflict) {
		status = http.StatusConflict
		body.Code = "CONFLICT"
		body.Message = "Resource already exists"
		body.Details = err.Error()
	} else if errors.Is(err, softdelete.ErrInconsistentState) {
		body.Code = "INCONSISTENT_STATE"
		body.Message = "Recycle bin state is inconsistent"
		slog.Error("inconsistent recycle bin state", "error", err.Error())
	} else if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
		body.Code = "REQUEST_TIMEOUT"
		body.Message = "request timed out"
	} else {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}
