package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/taxon-resolver-cli/internal/adapters/secrets/file"
	passstore "github.com/bnema/taxon-resolver-cli/internal/adapters/secrets/pass"
	"github.com/bnema/taxon-resolver-cli/internal/domain"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
)

// Store reads and writes through a primary credential store and falls back
// to a secondary one when the primary cannot serve the request.
type Store struct {
	primary  ports.CredentialStore
	fallback ports.CredentialStore
}

var _ ports.CredentialStore = (*Store)(nil)

var errMissingBackend = errors.New("credential backend is nil")

func NewStore(primary ports.CredentialStore, fallback ports.CredentialStore) (*Store, error) {
	if primary == nil || fallback == nil {
		return nil, errMissingBackend
	}
	return &Store{primary: primary, fallback: fallback}, nil
}

func NewPassWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil || isContextError(err) {
		return err
	}

	fallbackErr := s.fallback.Put(ctx, key, value)
	if fallbackErr == nil {
		return nil
	}
	return fmt.Errorf("store credential %q: primary: %w; fallback: %w", key, err, fallbackErr)
}

// Get reports domain.ErrCredentialNotFound only when neither store holds
// the key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if isContextError(err) {
		return "", err
	}

	value, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr == nil {
		return value, nil
	}
	if errors.Is(fallbackErr, domain.ErrCredentialNotFound) &&
		(errors.Is(err, domain.ErrCredentialNotFound) || errors.Is(err, passstore.ErrUnavailable)) {
		return "", fmt.Errorf("read credential %q: %w", key, domain.ErrCredentialNotFound)
	}
	return "", fmt.Errorf("read credential %q: primary: %w; fallback: %w", key, err, fallbackErr)
}

// Delete removes the key from both stores so a cleared credential cannot
// resurface from the fallback.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if isContextError(err) {
		return err
	}
	if errors.Is(err, passstore.ErrUnavailable) {
		err = nil
	}

	fallbackErr := s.fallback.Delete(ctx, key)
	if err != nil || fallbackErr != nil {
		return fmt.Errorf("delete credential %q: %w", key, errors.Join(err, fallbackErr))
	}
	return nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
