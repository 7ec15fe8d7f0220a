package artifacts

import (
	"context"
	"fmt"

	"github.com/kuitang/e2eauth/internal/crypto"
)

// SealedSuffix is appended to the key of every sealed object.
const SealedSuffix = ".sealed"

// SealedStore encrypts objects before handing them to the wrapped store.
// Each object gets its own key derived from the master key and the object
// key; the object key is also bound as additional data, so a sealed object
// copied under another key fails to open.
type SealedStore struct {
	inner     Store
	masterKey []byte
}

// NewSealedStore wraps inner. masterKey must be crypto.KeySize bytes.
func NewSealedStore(inner Store, masterKey []byte) (*SealedStore, error) {
	if len(masterKey) != crypto.KeySize {
		return nil, crypto.ErrInvalidKey
	}
	return &SealedStore{inner: inner, masterKey: masterKey}, nil
}

func (s *SealedStore) Put(ctx context.Context, key string, data []byte, _ string) error {
	sealed, err := crypto.Seal(crypto.DeriveKey(s.masterKey, key, crypto.Version), data, []byte(key))
	if err != nil {
		return fmt.Errorf("artifacts: seal %s: %w", key, err)
	}
	return s.inner.Put(ctx, key+SealedSuffix, sealed, "application/octet-stream")
}

func (s *SealedStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key+SealedSuffix)
	if err != nil {
		return nil, err
	}
	data, err := crypto.Open(crypto.DeriveKey(s.masterKey, key, crypto.Version), sealed, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("artifacts: open %s: %w", key, err)
	}
	return data, nil
}
