package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pitabwire/vitrine/internal/dashboard"
	"github.com/pitabwire/vitrine/internal/menu"
	"github.com/pitabwire/vitrine/internal/metadata"
	"github.com/pitabwire/vitrine/internal/observability"
	"github.com/pitabwire/vitrine/internal/resource"
	"github.com/pitabwire/vitrine/model"
)

const maxPreferenceBytes = 64 << 10

// handlers serves the API routes.
type handlers struct {
	logger       *zap.Logger
	dashboards   *dashboard.Assembler
	resources    *resource.Registry
	db           *gorm.DB
	queryTimeout time.Duration
	menu         func() []menu.Entry
	navigation   *menu.Resolver
	metadata     *metadata.Manager
}

// requestFrom builds the evaluation request from the caller and the query
// string. Guests carry no RequestContext.
func requestFrom(r *http.Request) *model.Request {
	return model.NewRequest(model.RequestContextFrom(r.Context()), r.URL.Query())
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) || ee.Code == model.ErrInternalError || ee.Code == model.ErrConfiguration {
		observability.RequestLogger(r.Context(), h.logger).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
	WriteError(w, err)
}

func (h *handlers) listDashboards(w http.ResponseWriter, r *http.Request) {
	list, err := h.dashboards.List(r.Context(), requestFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

func (h *handlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	desc, err := h.dashboards.Dashboard(r.Context(), requestFrom(r), chi.URLParam(r, "uriKey"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, desc)
}

func (h *handlers) getCard(w http.ResponseWriter, r *http.Request) {
	desc, err := h.dashboards.Card(r.Context(), requestFrom(r), chi.URLParam(r, "uriKey"), chi.URLParam(r, "cardKey"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, desc)
}

func (h *handlers) getNavigation(w http.ResponseWriter, r *http.Request) {
	var entries []menu.Entry
	if h.menu != nil {
		entries = h.menu()
	}
	tree, err := h.navigation.Resolve(r.Context(), requestFrom(r), entries)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, tree)
}

func (h *handlers) getResourceIndex(w http.ResponseWriter, r *http.Request) {
	if h.resources == nil || h.db == nil {
		WriteError(w, model.NewUnavailableError("Resources are not configured"))
		return
	}
	uriKey := chi.URLParam(r, "uriKey")
	res, ok := h.resources.Get(uriKey)
	if !ok {
		WriteNotFound(w, "Resource not found")
		return
	}

	req := requestFrom(r)
	visible, err := res.AuthorizedToSee(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !visible {
		WriteNotFound(w, "Resource not found")
		return
	}

	ctx := r.Context()
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}
	index, err := res.Index(ctx, h.db, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, index)
}

// preferenceTarget validates the route and caller of a preference write.
func (h *handlers) preferenceTarget(w http.ResponseWriter, r *http.Request) (req *model.Request, kind, key string, store metadata.PreferenceStore, ok bool) {
	req = requestFrom(r)
	if !req.Authenticated() {
		WriteError(w, model.NewUnauthorizedError("Preferences require a signed-in user"))
		return nil, "", "", nil, false
	}
	kind, key = chi.URLParam(r, "kind"), chi.URLParam(r, "key")
	if kind != metadata.KindDashboard && kind != metadata.KindCard {
		WriteNotFound(w, "Unknown preference kind")
		return nil, "", "", nil, false
	}
	if h.metadata == nil || h.metadata.Preferences() == nil {
		WriteError(w, model.NewUnavailableError("Preferences are disabled"))
		return nil, "", "", nil, false
	}
	return req, kind, key, h.metadata.Preferences(), true
}

func (h *handlers) putPreference(w http.ResponseWriter, r *http.Request) {
	req, kind, key, store, ok := h.preferenceTarget(w, r)
	if !ok {
		return
	}

	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPreferenceBytes))
	if err := dec.Decode(&body); err != nil || body == nil {
		WriteError(w, model.NewBadRequestError("Body must be a JSON object"))
		return
	}
	if _, ok := body[metadata.ProtectedKey]; ok {
		WriteValidationError(w, []model.FieldError{{
			Field:   metadata.ProtectedKey,
			Code:    "READ_ONLY",
			Message: "uriKey cannot be overridden",
		}})
		return
	}

	observability.RequestLogger(r.Context(), h.logger).Debug("preference stored",
		zap.String("kind", kind),
		zap.String("key", key),
		zap.Any("meta", observability.Redact(body)),
	)
	if err := store.Put(r.Context(), req.UserKey(), kind, key, body); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deletePreference(w http.ResponseWriter, r *http.Request) {
	req, kind, key, store, ok := h.preferenceTarget(w, r)
	if !ok {
		return
	}
	if err := store.Delete(r.Context(), req.UserKey(), kind, key); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
