package middleware

import (
	"context"
	"net/http"

	"github.com/2beens/healthtracker/internal/auth"
	"github.com/2beens/healthtracker/internal/session"
	"github.com/2beens/healthtracker/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

type SessionManagers interface {
	Acquire(ctx context.Context, profileID string) (*session.Manager, func(), error)
}

// RequireSession lets the request through only when the profile has a signed in account,
// and hands the current session to the next handler.
func RequireSession(managers SessionManagers) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.GlobalTracer.Start(r.Context(), "middleware.sessionGate")
			defer span.End()

			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			profileID, ok := auth.ProfileIDFromContext(ctx)
			if !ok {
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "no-profile")
				return
			}

			manager, release, err := managers.Acquire(ctx, profileID)
			if err != nil {
				log.Errorf("[session gate] load profile %s: %s", profileID, err)
				http.Error(w, "session unavailable", session.ErrorStatus(err))
				span.RecordError(err)
				span.SetStatus(codes.Error, "load-profile")
				return
			}

			current, ok := manager.CurrentSession()
			release()
			if !ok {
				log.Tracef("[session gate] not signed in => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "not-authenticated")
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), current)))
		})
	}
}
