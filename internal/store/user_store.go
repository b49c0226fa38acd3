package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/chattask/internal/model"
)

// UpsertUserByPhone returns the user registered under phone, creating it on
// first contact. An existing user's name is filled in if it was empty.
func (s *SQLStore) UpsertUserByPhone(ctx context.Context, phone, name string) (*model.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("user phone must not be empty")
	}

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, phone, name, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (phone) DO NOTHING`),
		uuid.New().String(), phone, name, model.DefaultTimezone, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting user %s: %w", phone, err)
	}

	if name != "" {
		_, err = s.db.ExecContext(ctx, s.q(
			"UPDATE users SET name = ?, updated_at = ? WHERE phone = ? AND name = ''"),
			name, now, phone,
		)
		if err != nil {
			return nil, fmt.Errorf("naming user %s: %w", phone, err)
		}
	}

	return s.GetUserByPhone(ctx, phone)
}

// GetUserByID retrieves a user by ID.
func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.q("SELECT * FROM users WHERE id = ?"), id); err != nil {
		return nil, notFound(err, "getting user "+id)
	}
	return &u, nil
}

// GetUserByPhone retrieves a user by phone number.
func (s *SQLStore) GetUserByPhone(ctx context.Context, phone string) (*model.User, error) {
	var u model.User
	if err := s.db.GetContext(ctx, &u, s.q("SELECT * FROM users WHERE phone = ?"), phone); err != nil {
		return nil, notFound(err, "getting user by phone "+phone)
	}
	return &u, nil
}

// UpdateUser updates a user's name and timezone.
func (s *SQLStore) UpdateUser(ctx context.Context, user model.User) error {
	if user.Timezone == "" {
		user.Timezone = model.DefaultTimezone
	}
	result, err := s.db.ExecContext(ctx, s.q(
		"UPDATE users SET name = ?, timezone = ?, updated_at = ? WHERE id = ?"),
		user.Name, user.Timezone, s.now().UTC(), user.ID,
	)
	if err != nil {
		return fmt.Errorf("updating user %s: %w", user.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}
	return nil
}

// TouchLastInbound records the time of the user's latest inbound message,
// which opens the messaging session window.
func (s *SQLStore) TouchLastInbound(ctx context.Context, userID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, s.q(
		"UPDATE users SET last_inbound_at = ?, updated_at = ? WHERE id = ?"),
		at.UTC(), s.now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("touching user %s: %w", userID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}
