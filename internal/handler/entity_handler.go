package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"compass/internal/authz"
	"compass/internal/model"
	"compass/internal/service"
	"compass/internal/softdelete"
	"compass/pkg/apierror"
)

const maxBodyBytes = 1 << 20

type catalog[T service.Subject] interface {
	Descriptor() softdelete.Descriptor
	Create(ctx context.Context, actor model.AuditActor, item T) (T, error)
	Get(ctx context.Context, rawID string) (T, error)
	List(ctx context.Context, page model.PageQuery) ([]T, model.Meta, error)
}

// SubjectHandler is the create/read surface of one registered type.
type SubjectHandler interface {
	Descriptor() softdelete.Descriptor
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
}

type EntityHandler[T service.Subject] struct {
	catalog catalog[T]
	newItem func() T
	policy  authz.RolePolicy
}

func NewEntityHandler[T service.Subject](catalog catalog[T], newItem func() T, policy authz.RolePolicy) *EntityHandler[T] {
	return &EntityHandler[T]{catalog: catalog, newItem: newItem, policy: policy}
}

func (h *EntityHandler[T]) Descriptor() softdelete.Descriptor {
	return h.catalog.Descriptor()
}

func (h *EntityHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	actor, ok := actorFromRequest(r, h.policy)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload := h.newItem()
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, apierror.New("PAYLOAD_TOO_LARGE", "request body too large", "", http.StatusRequestEntityTooLarge))
			return
		}
		writeError(w, apierror.BadRequest("invalid JSON body", err.Error()))
		return
	}

	created, err := h.catalog.Create(r.Context(), actor, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, created, nil)
}

func (h *EntityHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	items, meta, err := h.catalog.List(r.Context(), model.PageQuery{
		Page:  parseIntOrDefault(query.Get("page"), 1),
		Limit: parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []T{}
	}

	writeSuccess(w, http.StatusOK, model.ListData[T]{Items: items}, &meta)
}

func (h *EntityHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, item, nil)
}

func parseIntOrDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}
