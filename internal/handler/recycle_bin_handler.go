package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"compass/internal/authz"
	"compass/internal/model"
	"compass/internal/service"
	"compass/internal/softdelete"
	"compass/pkg/apierror"
)

type recycleBin interface {
	Delete(ctx context.Context, ref softdelete.EntityRef, actor softdelete.Actor, opts ...service.DeleteOption) (model.DeleteOutcome, error)
	Restore(ctx context.Context, ref softdelete.EntityRef, actor softdelete.Actor) (model.RestoreOutcome, error)
	RestoreTombstone(ctx context.Context, id uuid.UUID, actor softdelete.Actor) (model.RestoreOutcome, error)
	PermanentDelete(ctx context.Context, ref softdelete.EntityRef, actor softdelete.Actor) error
	PermanentDeleteTombstone(ctx context.Context, id uuid.UUID, actor softdelete.Actor) error
	List(ctx context.Context, actor softdelete.Actor, query model.RecycleBinQuery) ([]model.RecycleBinItem, model.Meta, error)
}

// RecycleBinHandler serves the per-type delete/restore endpoints and the
// global recycle bin. Per-type handlers are bound to a type tag at routing
// time so the URL never carries the tag.
type RecycleBinHandler struct {
	bin      recycleBin
	registry *softdelete.Registry
	policy   authz.RolePolicy
}

func NewRecycleBinHandler(bin recycleBin, registry *softdelete.Registry, policy authz.RolePolicy) *RecycleBinHandler {
	return &RecycleBinHandler{bin: bin, registry: registry, policy: policy}
}

// SoftDelete handles DELETE /{slug}/{id}/soft-delete. Privileged callers
// bypass the recycle bin and the record is erased.
func (h *RecycleBinHandler) SoftDelete(entityType softdelete.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r, h.policy)
		if !ok {
			writeError(w, model.ErrUnauthorized)
			return
		}

		ref, err := h.registry.ParseRef(entityType, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		var opts []service.DeleteOption
		if raw := strings.TrimSpace(r.URL.Query().Get("expires_at")); raw != "" {
			expiresAt, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, apierror.BadRequest("expires_at must be an RFC 3339 timestamp", raw))
				return
			}
			opts = append(opts, service.WithExpiry(expiresAt))
		}

		outcome, err := h.bin.Delete(r.Context(), ref, actor, opts...)
		if err != nil {
			writeError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, outcome, nil)
	}
}

// Restore handles POST /{slug}/{id}/restore.
func (h *RecycleBinHandler) Restore(entityType softdelete.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r, h.policy)
		if !ok {
			writeError(w, model.ErrUnauthorized)
			return
		}

		ref, err := h.registry.ParseRef(entityType, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		outcome, err := h.bin.Restore(r.Context(), ref, actor)
		if err != nil {
			writeError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, outcome, nil)
	}
}

// PermanentDelete handles DELETE /{slug}/{id}/permanent-delete.
func (h *RecycleBinHandler) PermanentDelete(entityType softdelete.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFromRequest(r, h.policy)
		if !ok {
			writeError(w, model.ErrUnauthorized)
			return
		}

		ref, err := h.registry.ParseRef(entityType, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		if err := h.bin.PermanentDelete(r.Context(), ref, actor); err != nil {
			writeError(w, err)
			return
		}

		writeSuccess(w, http.StatusOK, map[string]any{
			"entity_type": string(ref.Type),
			"entity_id":   ref.Key(),
			"deleted":     true,
		}, nil)
	}
}

// ListType handles GET /{slug}/recycle-bin.
func (h *RecycleBinHandler) ListType(entityType softdelete.EntityType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := recycleBinQuery(r)
		query.EntityType = string(entityType)
		h.list(w, r, query)
	}
}

// List handles GET /recycle-bin across every registered type.
func (h *RecycleBinHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, recycleBinQuery(r))
}

func (h *RecycleBinHandler) list(w http.ResponseWriter, r *http.Request, query model.RecycleBinQuery) {
	actor, ok := actorFromRequest(r, h.policy)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	items, meta, err := h.bin.List(r.Context(), actor, query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.ListData[model.RecycleBinItem]{Items: items}, &meta)
}

// RestoreTombstone handles POST /recycle-bin/{tombstone_id}/restore.
func (h *RecycleBinHandler) RestoreTombstone(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.policy)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	id, err := tombstoneID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := h.bin.RestoreTombstone(r.Context(), id, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, outcome, nil)
}

// PermanentDeleteTombstone handles DELETE /recycle-bin/{tombstone_id}.
func (h *RecycleBinHandler) PermanentDeleteTombstone(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.policy)
	if !ok {
		writeError(w, model.ErrUnauthorized)
		return
	}

	id, err := tombstoneID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.bin.PermanentDeleteTombstone(r.Context(), id, actor); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"tombstone_id": id.String(), "deleted": true}, nil)
}

func recycleBinQuery(r *http.Request) model.RecycleBinQuery {
	query := r.URL.Query()
	return model.RecycleBinQuery{
		PageQuery: model.PageQuery{
			Page:  parseIntOrDefault(query.Get("page"), 1),
			Limit: parseIntOrDefault(query.Get("limit"), 50),
		},
		EntityType: strings.TrimSpace(query.Get("entity_type")),
		ScopeField: strings.TrimSpace(query.Get("scope_field")),
		ScopeValue: query.Get("scope_value"),
	}
}

func tombstoneID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "tombstone_id")
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apierror.BadRequest("tombstone id must be a UUID", raw)
	}
	return id, nil
}
