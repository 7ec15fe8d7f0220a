// Package artifacts stores run artifacts (storage-state files, failure
// screenshots) in S3 or a local directory.
package artifacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/kuitang/e2eauth/internal/config"
	"github.com/kuitang/e2eauth/internal/crypto"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("artifacts: not found")

// Store puts and gets artifacts by slash-separated key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Keys used by the login helpers and cmd/authstate.
func FailureScreenshotKey(runID string) string { return "auth-failures/" + runID + ".png" }
func StorageStateKey(runID string) string      { return "auth-state/" + runID + ".json" }

// NewFromConfig returns an S3 store when ARTIFACTS_BUCKET is set, a
// directory store when ARTIFACTS_DIR is set, and nil otherwise. With
// ARTIFACTS_KEY set the store is wrapped in a SealedStore.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	store, err := newBaseStore(ctx, cfg)
	if err != nil || store == nil || cfg.ArtifactsKey == "" {
		return store, err
	}
	masterKey, err := crypto.ParseMasterKey(cfg.ArtifactsKey)
	if err != nil {
		return nil, fmt.Errorf("artifacts: ARTIFACTS_KEY: %w", err)
	}
	sealed, err := NewSealedStore(store, masterKey)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

func newBaseStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch {
	case cfg.ArtifactsBucket != "":
		store, err := NewS3Store(ctx, S3Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			BucketName:      cfg.ArtifactsBucket,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("artifacts: %w", err)
		}
		return store, nil
	case cfg.ArtifactsDir != "":
		store, err := NewDirStore(cfg.ArtifactsDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}
