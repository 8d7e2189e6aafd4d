package assistant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2beens/healthtracker/internal/telemetry/tracing"
	"github.com/2beens/healthtracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const maxMessageBytes = 4 << 10

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router, sessionGate mux.MiddlewareFunc) {
	chatRouter := mainRouter.PathPrefix("/chat").Subrouter()
	chatRouter.HandleFunc("", handler.handleIntro).Methods("GET", "OPTIONS").Name("chat-intro")
	chatRouter.HandleFunc("", handler.handleMessage).Methods("POST", "OPTIONS").Name("chat-message")
	chatRouter.Use(sessionGate)
}

func (handler *Handler) handleIntro(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteJSON(w, http.StatusOK, struct {
		Greeting       string          `json:"greeting"`
		QuickQuestions []QuickQuestion `json:"quickQuestions"`
	}{
		Greeting:       Greeting,
		QuickQuestions: QuickQuestions,
	})
}

func (handler *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "assistantHandler.message")
	defer span.End()

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		log.Tracef("chat, unmarshal message: %s", err)
		http.Error(w, "invalid chat message", http.StatusBadRequest)
		return
	}

	reply, err := Respond(req.Message)
	if err != nil {
		if errors.Is(err, ErrEmptyMessage) {
			http.Error(w, "message is empty", http.StatusBadRequest)
			return
		}
		http.Error(w, "chat failed", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.String("chat.topic", string(reply.Topic)))
	pkg.WriteJSON(w, http.StatusOK, reply)
}
