// Package directory provides PostgreSQL-backed access to the full set of
// user profiles, independent of any conversation.
package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Profile is one user directory entry.
type Profile struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Headline  string    `json:"headline"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages profile rows in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a directory store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListAllExcept returns every profile except the given user's, ordered by
// display name.
func (s *Store) ListAllExcept(ctx context.Context, userID string) ([]Profile, error) {
	const query = `
		SELECT user_id, name, COALESCE(profile_picture, ''), COALESCE(headline, ''), updated_at
		FROM profiles
		WHERE user_id <> $1
		ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("directory: list: %w", err)
	}
	defer rows.Close()

	out := []Profile{}
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.UserID, &p.Name, &p.Avatar, &p.Headline, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("directory: list scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list rows: %w", err)
	}
	return out, nil
}

// Get retrieves a single profile. Returns nil if the user is unknown.
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	const query = `
		SELECT user_id, name, COALESCE(profile_picture, ''), COALESCE(headline, ''), updated_at
		FROM profiles
		WHERE user_id = $1`

	var p Profile
	err := s.db.QueryRowContext(ctx, query, userID).
		Scan(&p.UserID, &p.Name, &p.Avatar, &p.Headline, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get: %w", err)
	}
	return &p, nil
}

// Upsert inserts or updates a profile row.
func (s *Store) Upsert(ctx context.Context, p *Profile) error {
	const query = `
		INSERT INTO profiles (user_id, name, profile_picture, headline)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET name = EXCLUDED.name,
		    profile_picture = EXCLUDED.profile_picture,
		    headline = EXCLUDED.headline,
		    updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, p.UserID, p.Name, p.Avatar, p.Headline); err != nil {
		return fmt.Errorf("directory: upsert: %w", err)
	}
	return nil
}
