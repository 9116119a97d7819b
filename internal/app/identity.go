package app

import (
	"context"

	"quizsync/internal/domain"
)

// IdentityStore reads and writes the current session identity in the local store.
type IdentityStore struct {
	local LocalStore
}

func NewIdentityStore(local LocalStore) *IdentityStore {
	return &IdentityStore{local: local}
}

// Current returns the signed-in identity or nil when nobody is signed in.
func (s *IdentityStore) Current(ctx context.Context) (*domain.Identity, error) {
	var who domain.Identity
	ok, err := s.local.GetJSON(ctx, KeyCurrentUser, &who)
	if err != nil || !ok {
		return nil, err
	}
	return &who, nil
}

func (s *IdentityStore) Set(ctx context.Context, who domain.Identity) error {
	return s.local.SetJSON(ctx, KeyCurrentUser, who)
}

func (s *IdentityStore) Clear(ctx context.Context) error {
	return s.local.Delete(ctx, KeyCurrentUser)
}
