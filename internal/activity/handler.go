package activity

import (
	"errors"
	"net/http"

	"github.com/2beens/healthtracker/internal/auth"
	"github.com/2beens/healthtracker/internal/kvstore"
	"github.com/2beens/healthtracker/internal/session"
	"github.com/2beens/healthtracker/internal/telemetry/tracing"
	"github.com/2beens/healthtracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProfileStores hands out the durable store of a profile.
type ProfileStores interface {
	ProfileStore(profileID string) kvstore.Store
}

type Handler struct {
	service *Service
	stores  ProfileStores
}

func NewHandler(service *Service, stores ProfileStores) *Handler {
	return &Handler{
		service: service,
		stores:  stores,
	}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router, sessionGate mux.MiddlewareFunc) {
	dashboardRouter := mainRouter.PathPrefix("/dashboard").Subrouter()
	dashboardRouter.HandleFunc("", handler.handleGet).Methods("GET", "OPTIONS").Name("dashboard")
	dashboardRouter.HandleFunc("/actions/{action}", handler.handleAction).Methods("POST", "OPTIONS").Name("dashboard-action")
	dashboardRouter.Use(sessionGate)
}

func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "activityHandler.get")
	defer span.End()

	store, current, ok := handler.requestScope(w, r)
	if !ok {
		span.SetStatus(codes.Error, "no-session")
		return
	}

	dashboard, err := handler.service.Dashboard(ctx, store, current)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load-dashboard")
		log.Errorf("load dashboard for %s: %s", current.Email, err)
		http.Error(w, "dashboard unavailable", http.StatusServiceUnavailable)
		return
	}

	pkg.WriteJSON(w, http.StatusOK, dashboard)
}

func (handler *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "activityHandler.action")
	defer span.End()

	action, err := ParseAction(mux.Vars(r)["action"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	span.SetAttributes(attribute.String("dashboard.action", string(action)))

	store, current, ok := handler.requestScope(w, r)
	if !ok {
		span.SetStatus(codes.Error, "no-session")
		return
	}

	dashboard, err := handler.service.Apply(ctx, store, current, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply-action")
		log.Errorf("dashboard action %s for %s: %s", action, current.Email, err)
		status := http.StatusInternalServerError
		if errors.Is(err, ErrStorageUnavailable) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, "dashboard action failed", status)
		return
	}

	pkg.WriteJSON(w, http.StatusOK, dashboard)
}

func (handler *Handler) requestScope(w http.ResponseWriter, r *http.Request) (kvstore.Store, session.Session, bool) {
	profileID, ok := auth.ProfileIDFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil, session.Session{}, false
	}
	current, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return nil, session.Session{}, false
	}
	return handler.stores.ProfileStore(profileID), current, true
}
