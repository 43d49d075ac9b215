package storage

import (
	"context"
	"database/sql"

	"spendwise/internal/models"
)

const userColumns = "id, username, COALESCE(password, ''), COALESCE(email, ''), COALESCE(google_id, ''), created_at"

// CreateUser creates a new local user with the given username and password hash.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	id, err := db.insert(ctx,
		"INSERT INTO users (username, password) VALUES (?, ?)",
		username, passwordHash,
	)
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(ctx, id)
}

// CreateOAuthUser creates a user known only through an external identity provider.
func (db *DB) CreateOAuthUser(ctx context.Context, username, email, googleID string) (*models.User, error) {
	id, err := db.insert(ctx,
		"INSERT INTO users (username, email, google_id) VALUES (?, ?, ?)",
		username, nullString(email), googleID,
	)
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.scanUser(db.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.scanUser(db.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
}

// GetUserByGoogleID retrieves a user by the Google subject identifier.
func (db *DB) GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	return db.scanUser(db.queryRow(ctx, "SELECT "+userColumns+" FROM users WHERE google_id = ?", googleID))
}

// UsernameExists reports whether a user with the given username exists.
func (db *DB) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := db.queryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)", username).Scan(&exists)
	return exists, err
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount(ctx context.Context) (int, error) {
	var count int
	err := db.queryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

func (db *DB) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Email, &u.GoogleID, &u.CreatedAt); err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
