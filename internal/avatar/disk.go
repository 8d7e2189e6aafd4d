package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2beens/healthtracker/internal/telemetry/tracing"
	"github.com/2beens/healthtracker/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var _ Storage = (*DiskStorage)(nil)

// DiskStorage keeps pictures under a local root folder. Used in development and by single node setups.
type DiskStorage struct {
	rootPath      string
	publicBaseURL string
}

func NewDiskStorage(rootPath, publicBaseURL string) (*DiskStorage, error) {
	if rootPath == "" {
		return nil, errors.New("root path cannot be empty")
	}
	exists, err := pkg.PathExists(rootPath, true)
	if err != nil {
		return nil, fmt.Errorf("avatars root: %w", err)
	}
	if !exists {
		log.Debugf("creating avatars root: %s", rootPath)
		if err := os.MkdirAll(rootPath, 0o750); err != nil {
			return nil, fmt.Errorf("create avatars root: %w", err)
		}
	}
	return &DiskStorage{
		rootPath:      rootPath,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

func (ds *DiskStorage) Put(ctx context.Context, key, _ string, body io.Reader, size int64) (_ string, err error) {
	_, span := tracing.GlobalTracer.Start(ctx, "avatar.disk.put")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(
		attribute.String("avatar.key", key),
		attribute.Int64("avatar.size", size),
	)

	filePath := filepath.Join(ds.rootPath, filepath.FromSlash(key))
	if !strings.HasPrefix(filePath, filepath.Clean(ds.rootPath)+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid avatar key: %s", key)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	dst, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if _, err := io.Copy(dst, body); err != nil {
		_ = dst.Close()
		if removeErr := os.Remove(filePath); removeErr != nil {
			log.Errorf("failed to remove partial avatar %s: %s", filePath, removeErr)
		}
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	log.Debugf("avatar saved: %s", filePath)

	if ds.publicBaseURL != "" {
		return ds.publicBaseURL + "/" + key, nil
	}
	return "file://" + filepath.ToSlash(filePath), nil
}
