package storage

import (
	"context"
	"time"

	"spendwise/internal/models"
)

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := db.exec(ctx,
		"INSERT INTO sessions (token, user_id, expires_at, last_activity, remembered) VALUES (?, ?, ?, ?, ?)",
		s.Token, s.UserID, s.ExpiresAt.Unix(), time.Now().Unix(), s.Remembered,
	)
	return translateError(err)
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
	Remembered   bool
}

// ValidateSession checks if a session token is valid and returns the associated user.
func (db *DB) ValidateSession(ctx context.Context, token string, now time.Time) (*models.User, error) {
	info, err := db.ValidateSessionWithInfo(ctx, token, now)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo checks if a session token is valid at now and returns session details.
func (db *DB) ValidateSessionWithInfo(ctx context.Context, token string, now time.Time) (*SessionInfo, error) {
	row := db.queryRow(ctx, `
		SELECT u.id, u.username, COALESCE(u.password, ''), COALESCE(u.email, ''), COALESCE(u.google_id, ''), u.created_at,
		       s.last_activity, s.expires_at, s.remembered
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, now.Unix())

	var (
		u                       models.User
		lastActivity, expiresAt int64
		remembered              bool
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.GoogleID, &u.CreatedAt,
		&lastActivity, &expiresAt, &remembered); err != nil {
		return nil, translateError(err)
	}
	return &SessionInfo{
		User:         &u,
		LastActivity: time.Unix(lastActivity, 0),
		ExpiresAt:    time.Unix(expiresAt, 0),
		Remembered:   remembered,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	_, err := db.exec(ctx,
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().Unix(), newExpiresAt.Unix(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.exec(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all sessions expired at now and reports how many were removed.
func (db *DB) CleanExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.exec(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
