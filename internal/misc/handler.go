package misc

import (
	"net/http"

	"github.com/2beens/healthtracker/internal/telemetry/metrics"
	"github.com/2beens/healthtracker/internal/telemetry/tracing"
	"github.com/2beens/healthtracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProfileIssuer creates a new profile id and the token that proves it.
type ProfileIssuer interface {
	Issue() (profileID, token string, err error)
}

type NewProfileResponse struct {
	ProfileID string `json:"profileId"`
	Token     string `json:"token"`
}

type Handler struct {
	versionInfo    string
	issuer         ProfileIssuer
	metricsManager *metrics.Manager
}

func NewHandler(
	versionInfo string,
	issuer ProfileIssuer,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		versionInfo:    versionInfo,
		issuer:         issuer,
		metricsManager: metricsManager,
	}
}

// SetupRoutes registers the open routes. newProfileRateLimit guards profile creation.
func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	newProfileRateLimit mux.MiddlewareFunc,
) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "POST", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")
	mainRouter.
		Handle("/profile/new", newProfileRateLimit(http.HandlerFunc(handler.handleNewProfile))).
		Methods("POST", "OPTIONS").Name("new-profile")
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, handler.versionInfo)
}

func (handler *Handler) handleNewProfile(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.newProfile")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	profileID, token, err := handler.issuer.Issue()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue-token")
		log.Errorf("new profile, issue token: %s", err)
		http.Error(w, "generate token error", http.StatusInternalServerError)
		return
	}

	handler.metricsManager.CounterProfilesIssued.Inc()
	span.SetAttributes(attribute.String("profile.id", profileID))
	log.Tracef("new profile issued: %s", profileID)

	pkg.WriteJSON(w, http.StatusCreated, NewProfileResponse{
		ProfileID: profileID,
		Token:     token,
	})
}
