package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compass/internal/authz"
	"compass/internal/middleware"
	"compass/internal/model"
	"compass/internal/service"
	"compass/internal/softdelete"
)

type descriptorStore struct{ d softdelete.Descriptor }

func (s descriptorStore) Descriptor() softdelete.Descriptor { return s.d }
func (s descriptorStore) Find(context.Context, softdelete.EntityRef, softdelete.Visibility) (softdelete.Record, error) {
	return nil, softdelete.ErrNotFound
}
func (s descriptorStore) SaveDeletionState(context.Context, softdelete.Record) error { return nil }
func (s descriptorStore) HardDelete(context.Context, softdelete.EntityRef) error     { return nil }

type stubBin struct {
	err error

	gotRef   softdelete.EntityRef
	gotActor softdelete.Actor
	gotOpts  int
	gotQuery model.RecycleBinQuery
	gotID    uuid.UUID
}

func (s *stubBin) Delete(_ context.Context, ref softdelete.EntityRef, actor softdelete.Actor, opts ...service.DeleteOption) (model.DeleteOutcome, error) {
	s.gotRef, s.gotActor, s.gotOpts = ref, actor, len(opts)
	if s.err != nil {
		return model.DeleteOutcome{}, s.err
	}
	return model.DeleteOutcome{EntityType: string(ref.Type), EntityID: ref.Key(), Permanent: actor.CanHardDelete()}, nil
}

func (s *stubBin) Restore(_ context.Context, ref softdelete.EntityRef, actor softdelete.Actor) (model.RestoreOutcome, error) {
	s.gotRef, s.gotActor = ref, actor
	return model.RestoreOutcome{EntityType: string(ref.Type), EntityID: ref.Key()}, s.err
}

func (s *stubBin) RestoreTombstone(_ context.Context, id uuid.UUID, actor softdelete.Actor) (model.RestoreOutcome, error) {
	s.gotID, s.gotActor = id, actor
	return model.RestoreOutcome{TombstoneID: id.String()}, s.err
}

func (s *stubBin) PermanentDelete(_ context.Context, ref softdelete.EntityRef, actor softdelete.Actor) error {
	s.gotRef, s.gotActor = ref, actor
	return s.err
}

func (s *stubBin) PermanentDeleteTombstone(_ context.Context, id uuid.UUID, actor softdelete.Actor) error {
	s.gotID, s.gotActor = id, actor
	return s.err
}

func (s *stubBin) List(_ context.Context, actor softdelete.Actor, query model.RecycleBinQuery) ([]model.RecycleBinItem, model.Meta, error) {
	s.gotActor, s.gotQuery = actor, query
	if s.err != nil {
		return nil, model.Meta{}, s.err
	}
	items := []model.RecycleBinItem{{ID: uuid.NewString(), EntityType: "Division", EntityID: "5"}}
	return items, model.Meta{Page: 1, Limit: 50, Total: 1, TotalPages: 1}, nil
}

// withRole authenticates the request as the role in X-Test-Role, if any.
func withRole(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if role := r.Header.Get("X-Test-Role"); role != "" {
			r = r.WithContext(middleware.WithClaims(r.Context(), &model.AuthClaims{UserID: "u-" + role, Username: role, Role: role}))
		}
		next.ServeHTTP(w, r)
	})
}

func newRecycleRouter(t *testing.T, bin *stubBin) http.Handler {
	t.Helper()

	registry, err := softdelete.NewRegistry(
		descriptorStore{softdelete.Descriptor{Type: model.TypeDivision, Slug: model.SlugDivisions, KeyKind: softdelete.KeyInt}},
		descriptorStore{softdelete.Descriptor{Type: model.TypeEmailTemplate, Slug: model.SlugEmailTemplates, KeyKind: softdelete.KeyUUID}},
	)
	require.NoError(t, err)

	h := NewRecycleBinHandler(bin, registry, authz.NewRolePolicy(authz.DefaultElevatedRoles))
	r := chi.NewRouter()
	r.Use(withRole)
	r.Delete("/divisions/{id}/soft-delete", h.SoftDelete(model.TypeDivision))
	r.Post("/divisions/{id}/restore", h.Restore(model.TypeDivision))
	r.Delete("/divisions/{id}/permanent-delete", h.PermanentDelete(model.TypeDivision))
	r.Get("/divisions/recycle-bin", h.ListType(model.TypeDivision))
	r.Delete("/email-templates/{id}/soft-delete", h.SoftDelete(model.TypeEmailTemplate))
	r.Get("/recycle-bin", h.List)
	r.Post("/recycle-bin/{tombstone_id}/restore", h.RestoreTombstone)
	r.Delete("/recycle-bin/{tombstone_id}", h.PermanentDeleteTombstone)
	return r
}

func do(t *testing.T, h http.Handler, method string, target string, role string, body string) (*httptest.ResponseRecorder, model.APIResponse) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp model.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestSoftDeleteEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("staff soft delete", func(t *testing.T) {
		bin := &stubBin{}
		rec, resp := do(t, newRecycleRouter(t, bin), http.MethodDelete, "/divisions/5/soft-delete", "staff", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, softdelete.IntRef(model.TypeDivision, 5), bin.gotRef)
		require.NotNil(t, bin.gotActor)
		assert.False(t, bin.gotActor.CanHardDelete())
		assert.Equal(t, "u-staff", bin.gotActor.ActorID())
		assert.Zero(t, bin.gotOpts)
	})

	t.Run("elevated role is resolved by policy", func(t *testing.T) {
		bin := &stubBin{}
		rec, _ := do(t, newRecycleRouter(t, bin), http.MethodDelete, "/divisions/5/soft-delete", "super_admin", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, bin.gotActor.CanHardDelete())
	})

	t.Run("uuid keyed type", func(t *testing.T) {
		bin := &stubBin{}
		id := uuid.New()
		rec, _ := do(t, newRecycleRouter(t, bin), http.MethodDelete, "/email-templates/"+id.String()+"/soft-delete", "staff", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, softdelete.UUIDRef(model.TypeEmailTemplate, id), bin.gotRef)
	})

	t.Run("malformed key", func(t *testing.T) {
		rec, resp := do(t, newRecycleRouter(t, &stubBin{}), http.MethodDelete, "/divisions/abc/soft-delete", "staff", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	})

	t.Run("expiry override", func(t *testing.T) {
		bin := &stubBin{}
		target := "/divisions/5/soft-delete?expires_at=" + time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		rec, _ := do(t, newRecycleRouter(t, bin), http.MethodDelete, target, "staff", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, bin.gotOpts)

		rec, resp := do(t, newRecycleRouter(t, bin), http.MethodDelete, "/divisions/5/soft-delete?expires_at=tomorrow", "staff", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	})

	t.Run("already deleted", func(t *testing.T) {
		rec, resp := do(t, newRecycleRouter(t, &stubBin{err: softdelete.ErrNotFound}), http.MethodDelete, "/divisions/5/soft-delete", "staff", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec, resp := do(t, newRecycleRouter(t, &stubBin{}), http.MethodDelete, "/divisions/5/soft-delete", "", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	})
}

func TestRestoreAndPermanentDeleteEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("permission denied", func(t *testing.T) {
		rec, resp := do(t, newRecycleRouter(t, &stubBin{err: softdelete.ErrPermissionDenied}), http.MethodPost, "/divisions/5/restore", "staff", "")

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "FORBIDDEN", resp.Error.Code)
	})

	t.Run("inconsistent state", func(t *testing.T) {
		rec, resp := do(t, newRecycleRouter(t, &stubBin{err: softdelete.ErrInconsistentState}), http.MethodPost, "/divisions/5/restore", "super_admin", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "INCONSISTENT_STATE", resp.Error.Code)
	})

	t.Run("permanent delete", func(t *testing.T) {
		bin := &stubBin{}
		rec, resp := do(t, newRecycleRouter(t, bin), http.MethodDelete, "/divisions/5/permanent-delete", "super_admin", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, softdelete.IntRef(model.TypeDivision, 5), bin.gotRef)
	})

	t.Run("by tombstone id", func(t *testing.T) {
		bin := &stubBin{}
		id := uuid.New()
		rec, _ := do(t, newRecycleRouter(t, bin), http.MethodPost, "/recycle-bin/"+id.String()+"/restore", "super_admin", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id, bin.gotID)

		rec, _ = do(t, newRecycleRouter(t, bin), http.MethodDelete, "/recycle-bin/"+id.String(), "super_admin", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec, resp := do(t, newRecycleRouter(t, bin), http.MethodDelete, "/recycle-bin/not-a-uuid", "super_admin", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	})
}

func TestRecycleBinListing(t *testing.T) {
	t.Parallel()

	t.Run("per type listing is pinned to its type", func(t *testing.T) {
		bin := &stubBin{}
		rec, resp := do(t, newRecycleRouter(t, bin), http.MethodGet, "/divisions/recycle-bin?entity_type=Grant&scope_field=name&scope_value=nisria&page=2&limit=10", "super_admin", "")

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 1, resp.Meta.Total)
		assert.Equal(t, "Division", bin.gotQuery.EntityType)
		assert.Equal(t, "name", bin.gotQuery.ScopeField)
		assert.Equal(t, "nisria", bin.gotQuery.ScopeValue)
		assert.Equal(t, 2, bin.gotQuery.Page)
		assert.Equal(t, 10, bin.gotQuery.Limit)
	})

	t.Run("global listing takes the type filter", func(t *testing.T) {
		bin := &stubBin{}
		rec, _ := do(t, newRecycleRouter(t, bin), http.MethodGet, "/recycle-bin?entity_type=Grant", "super_admin", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Grant", bin.gotQuery.EntityType)
	})

	t.Run("invalid filter", func(t *testing.T) {
		rec, resp := do(t, newRecycleRouter(t, &stubBin{err: model.ErrInvalidInput}), http.MethodGet, "/recycle-bin", "super_admin", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		rec, resp := do(t, newRecycleRouter(t, &stubBin{err: softdelete.ErrUnknownEntityType}), http.MethodGet, "/recycle-bin?entity_type=Program", "super_admin", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Unknown entity type", resp.Error.Message)
	})
}

type stubCatalog struct {
	created *model.Division
	getErr  error
}

func (s *stubCatalog) Descriptor() softdelete.Descriptor {
	return softdelete.Descriptor{Type: model.TypeDivision, Slug: model.SlugDivisions, KeyKind: softdelete.KeyInt}
}

func (s *stubCatalog) Create(_ context.Context, _ model.AuditActor, item *model.Division) (*model.Division, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	item.ID = 11
	s.created = item
	return item, nil
}

func (s *stubCatalog) Get(_ context.Context, rawID string) (*model.Division, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &model.Division{ID: 11, Name: "maisha"}, nil
}

func (s *stubCatalog) List(context.Context, model.PageQuery) ([]*model.Division, model.Meta, error) {
	return nil, model.Meta{Page: 1, Limit: 50}, nil
}

func newEntityRouter(catalog *stubCatalog) http.Handler {
	h := NewEntityHandler[*model.Division](catalog, func() *model.Division { return &model.Division{} }, authz.NewRolePolicy(nil))
	r := chi.NewRouter()
	r.Use(withRole)
	r.Post("/divisions", h.Create)
	r.Get("/divisions", h.List)
	r.Get("/divisions/{id}", h.Get)
	return r
}

func TestEntityHandler(t *testing.T) {
	t.Parallel()

	t.Run("create", func(t *testing.T) {
		catalog := &stubCatalog{}
		rec, resp := do(t, newEntityRouter(catalog), http.MethodPost, "/divisions", "staff", `{"name":"nisria","description":"main"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, resp.Success)
		require.NotNil(t, catalog.created)
		assert.Equal(t, "main", catalog.created.Description)
	})

	t.Run("invalid enumeration", func(t *testing.T) {
		rec, resp := do(t, newEntityRouter(&stubCatalog{}), http.MethodPost, "/divisions", "staff", `{"name":"atlantis"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "BAD_REQUEST", resp.Error.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		rec, _ := do(t, newEntityRouter(&stubCatalog{}), http.MethodPost, "/divisions", "staff", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("deleted record reads as missing", func(t *testing.T) {
		rec, resp := do(t, newEntityRouter(&stubCatalog{getErr: softdelete.ErrNotFound}), http.MethodGet, "/divisions/11", "staff", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})

	t.Run("empty list renders an array", func(t *testing.T) {
		rec, _ := do(t, newEntityRouter(&stubCatalog{}), http.MethodGet, "/divisions", "staff", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"items":[]`)
	})
}
