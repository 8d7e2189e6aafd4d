package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/2beens/healthtracker/internal/auth"
	"github.com/2beens/healthtracker/internal/telemetry/metrics"
	"github.com/2beens/healthtracker/internal/telemetry/tracing"
	"github.com/2beens/healthtracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxRequestBodyBytes = 1 << 20

type Handler struct {
	registry       *Registry
	metricsManager *metrics.Manager
}

func NewHandler(registry *Registry, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		registry:       registry,
		metricsManager: metricsManager,
	}
}

type sessionResponse struct {
	IsAuthenticated  bool             `json:"isAuthenticated"`
	Session          *Session         `json:"session"`
	PasswordStrength PasswordStrength `json:"passwordStrength,omitempty"`
}

// SetupRoutes registers the account routes. loginRateLimit guards register and login,
// sessionGate guards the routes that need a signed in account.
func (handler *Handler) SetupRoutes(
	mainRouter *mux.Router,
	loginRateLimit mux.MiddlewareFunc,
	sessionGate mux.MiddlewareFunc,
) {
	authRouter := mainRouter.PathPrefix("/a").Subrouter()
	authRouter.
		Handle("/register", loginRateLimit(http.HandlerFunc(handler.handleRegister))).
		Methods("POST", "OPTIONS").Name("register")
	authRouter.
		Handle("/login", loginRateLimit(http.HandlerFunc(handler.handleLogin))).
		Methods("POST", "OPTIONS").Name("login")
	authRouter.
		HandleFunc("/logout", handler.handleLogout).
		Methods("POST", "OPTIONS").Name("logout")
	authRouter.
		HandleFunc("/session", handler.handleGetSession).
		Methods("GET", "OPTIONS").Name("session")
	authRouter.
		Handle("/profile", sessionGate(http.HandlerFunc(handler.handleUpdateProfile))).
		Methods("PUT", "OPTIONS").Name("update-profile")
}

func (handler *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "sessionHandler.register")
	defer span.End()

	manager, release, ok := handler.profileManager(w, r)
	if !ok {
		span.SetStatus(codes.Error, "no-profile-manager")
		return
	}
	defer release()

	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		handler.metricsManager.CounterRegistrations.WithLabelValues("bad_request").Inc()
		http.Error(w, "invalid register request", http.StatusBadRequest)
		return
	}

	if err := req.Validate(); err != nil {
		handler.metricsManager.CounterRegistrations.WithLabelValues("bad_request").Inc()
		span.SetStatus(codes.Error, "validation")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := manager.Register(ctx, req)
	if err != nil {
		handler.metricsManager.CounterRegistrations.WithLabelValues(resultLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "register")
		writeError(w, "register", err)
		return
	}

	handler.metricsManager.CounterRegistrations.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.String("account.email", s.Email))
	log.Debugf("new account registered: %s", s.Email)

	pkg.WriteJSON(w, http.StatusCreated, sessionResponse{
		IsAuthenticated:  true,
		Session:          &s,
		PasswordStrength: StrengthOf(req.Password),
	})
}

func (handler *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "sessionHandler.login")
	defer span.End()

	manager, release, ok := handler.profileManager(w, r)
	if !ok {
		span.SetStatus(codes.Error, "no-profile-manager")
		return
	}
	defer release()

	type loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var loginReq loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), pkg.ContentType.JSON) {
		if err := decodeJSON(r, &loginReq); err != nil {
			log.Errorf("login, unmarshal json params: %s", err)
			http.Error(w, "login failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("login failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusBadRequest)
			return
		}
		loginReq = loginRequest{
			Email:    r.Form.Get("email"),
			Password: r.Form.Get("password"),
		}
	}

	if loginReq.Email == "" {
		http.Error(w, "error, email empty", http.StatusBadRequest)
		return
	}
	if loginReq.Password == "" {
		http.Error(w, "error, password empty", http.StatusBadRequest)
		return
	}

	s, err := manager.Authenticate(ctx, loginReq.Email, loginReq.Password)
	if err != nil {
		handler.metricsManager.CounterLogins.WithLabelValues(resultLabel(err)).Inc()
		if errors.Is(err, ErrInvalidCredentials) {
			log.Tracef("failed login attempt for: %s", loginReq.Email)
		}
		span.SetStatus(codes.Error, "authenticate")
		writeError(w, "login", err)
		return
	}

	handler.metricsManager.CounterLogins.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.String("account.email", s.Email))

	pkg.WriteJSON(w, http.StatusOK, sessionResponse{
		IsAuthenticated: true,
		Session:         &s,
	})
}

func (handler *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "sessionHandler.logout")
	defer span.End()

	manager, release, ok := handler.profileManager(w, r)
	if !ok {
		span.SetStatus(codes.Error, "no-profile-manager")
		return
	}
	defer release()

	if err := manager.SignOut(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sign-out")
		writeError(w, "logout", err)
		return
	}

	handler.metricsManager.CounterSignOuts.Inc()
	pkg.WriteJSON(w, http.StatusOK, sessionResponse{IsAuthenticated: false})
}

func (handler *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "sessionHandler.getSession")
	defer span.End()

	manager, release, ok := handler.profileManager(w, r)
	if !ok {
		span.SetStatus(codes.Error, "no-profile-manager")
		return
	}
	defer release()

	resp := sessionResponse{}
	if s, ok := manager.CurrentSession(); ok {
		resp.IsAuthenticated = true
		resp.Session = &s
	}
	span.SetAttributes(attribute.Bool("session.authenticated", resp.IsAuthenticated))

	pkg.WriteJSON(w, http.StatusOK, resp)
}

func (handler *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "sessionHandler.updateProfile")
	defer span.End()

	manager, release, ok := handler.profileManager(w, r)
	if !ok {
		span.SetStatus(codes.Error, "no-profile-manager")
		return
	}
	defer release()

	var update ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		http.Error(w, "invalid profile update", http.StatusBadRequest)
		return
	}
	if err := update.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := manager.UpdateProfile(ctx, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update-profile")
		writeError(w, "update profile", err)
		return
	}

	pkg.WriteJSON(w, http.StatusOK, sessionResponse{
		IsAuthenticated: true,
		Session:         &s,
	})
}

// profileManager acquires the session manager of the request's profile, writing the error response if it can't.
// The caller releases the manager once done with it.
func (handler *Handler) profileManager(w http.ResponseWriter, r *http.Request) (*Manager, func(), bool) {
	profileID, ok := auth.ProfileIDFromContext(r.Context())
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return nil, nil, false
	}

	manager, release, err := handler.registry.Acquire(r.Context(), profileID)
	if err != nil {
		writeError(w, "load profile", err)
		return nil, nil, false
	}
	return manager, release, true
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// ErrorStatus maps session errors to http status codes.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrDuplicateAccount):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateAccount):
		return "duplicate"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrInvalidRequest):
		return "bad_request"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	}
	return "error"
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: %s", op, err)
		http.Error(w, "service unavailable, try again later", status)
		return
	}

	message := err.Error()
	switch {
	case errors.Is(err, ErrDuplicateAccount):
		message = "an account with this email already exists"
	case errors.Is(err, ErrInvalidCredentials):
		message = "invalid email or password"
	case errors.Is(err, ErrNotAuthenticated):
		message = "not signed in"
	}
	http.Error(w, message, status)
}
