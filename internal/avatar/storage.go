// Package avatar stores uploaded profile pictures and hands back the reference saved on the account.
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=$GOFILE -destination=storage_mocks_test.go -package=avatar_test

var ErrStorageUnavailable = errors.New("avatar storage unavailable")

// Storage persists a picture under key and returns the reference clients use to load it.
type Storage interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (ref string, err error)
}

// NewKey builds the object key of a new picture: avatars/<profile>/<yyyy>/<mm>/<uuid><ext>.
func NewKey(profileID, ext string, now time.Time) string {
	return path.Join(
		"avatars",
		profileID,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		uuid.NewString()+ext,
	)
}
