package testutil

import (
	"context"
	"testing"

	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/store"
)

// NewTestStore creates an in-memory SQLStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestUser registers a user with the given phone and timezone.
func NewTestUser(t *testing.T, s store.Store, phone, tz string) *model.User {
	t.Helper()

	u, err := s.UpsertUserByPhone(context.Background(), phone, "Test User")
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	if tz != "" {
		u.Timezone = tz
		if err := s.UpdateUser(context.Background(), *u); err != nil {
			t.Fatalf("setting test user timezone: %v", err)
		}
	}
	return u
}
