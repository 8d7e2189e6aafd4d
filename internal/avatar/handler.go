package avatar

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/2beens/healthtracker/internal/auth"
	"github.com/2beens/healthtracker/internal/telemetry/tracing"
	"github.com/2beens/healthtracker/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultMaxSize = 5 << 20

// sniffLen is what http.DetectContentType looks at
const sniffLen = 512

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type UploadResponse struct {
	ProfilePictureRef string `json:"profilePictureRef"`
}

type Handler struct {
	storage Storage
	maxSize int64

	// ability to inject a clock (for unit testing)
	Clock func() time.Time
}

func NewHandler(storage Storage, maxSize int64) *Handler {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Handler{
		storage: storage,
		maxSize: maxSize,
		Clock:   time.Now,
	}
}

// SetupRoutes registers the upload route. It needs a profile but not a session, signup uploads before the account exists.
func (handler *Handler) SetupRoutes(mainRouter *mux.Router) {
	mainRouter.HandleFunc("/a/avatar", handler.handleUpload).Methods("POST", "OPTIONS").Name("avatar-upload")
}

func (handler *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "avatarHandler.upload")
	defer span.End()

	profileID, ok := auth.ProfileIDFromContext(ctx)
	if !ok {
		http.Error(w, "no can do", http.StatusUnauthorized)
		return
	}

	// room for the multipart envelope around the file itself
	r.Body = http.MaxBytesReader(w, r.Body, handler.maxSize+sniffLen*2)
	if err := r.ParseMultipartForm(handler.maxSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "file too big", http.StatusRequestEntityTooLarge)
			return
		}
		log.Tracef("avatar upload, parse multipart form: %s", err)
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Errorf("avatar upload, remove multipart temp files: %s", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "error, file missing", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > handler.maxSize {
		http.Error(w, "file too big", http.StatusRequestEntityTooLarge)
		return
	}
	if header.Size == 0 {
		http.Error(w, "error, file empty", http.StatusBadRequest)
		return
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}
	contentType := http.DetectContentType(head[:n])
	ext, ok := allowedTypes[contentType]
	if !ok {
		span.SetStatus(codes.Error, "unsupported-type")
		http.Error(w, "unsupported image type: "+contentType, http.StatusUnsupportedMediaType)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "invalid upload", http.StatusBadRequest)
		return
	}

	key := NewKey(profileID, ext, handler.Clock().UTC())
	span.SetAttributes(
		attribute.String("avatar.key", key),
		attribute.String("avatar.type", contentType),
	)

	ref, err := handler.storage.Put(ctx, key, contentType, file, header.Size)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store")
		log.Errorf("avatar upload, store %s: %s", key, err)
		http.Error(w, "avatar storage unavailable", http.StatusServiceUnavailable)
		return
	}

	log.Debugf("avatar uploaded for profile %s: %s", profileID, ref)
	pkg.WriteJSON(w, http.StatusCreated, UploadResponse{ProfilePictureRef: ref})
}
