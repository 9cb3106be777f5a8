package database

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/user/dexsettle/backend/internal/models"
)

// CreateUser inserts a new user into the database.
func CreateUser(ctx context.Context, username string, passwordHash string, account common.Address) (*models.User, error) {
	user := &models.User{
		Username: username,
		Password: passwordHash, // This is the hash
		Account:  account,
	}

	query := `INSERT INTO users (username, password_hash, account) VALUES ($1, $2, $3)
			  RETURNING id, created_at`

	err := DB.QueryRow(ctx, query, username, passwordHash, account.Bytes()).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureUser creates the user unless the username is already taken. It is
// used to provision the genesis accounts on startup.
func EnsureUser(ctx context.Context, username string, passwordHash string, account common.Address) error {
	query := `INSERT INTO users (username, password_hash, account) VALUES ($1, $2, $3)
			  ON CONFLICT (username) DO NOTHING`
	_, err := DB.Exec(ctx, query, username, passwordHash, account.Bytes())
	return err
}

// GetUserByUsername retrieves a user by their username.
func GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, password_hash, account, created_at FROM users WHERE username = $1`

	err := DB.QueryRow(ctx, query, username).
		Scan(&user.ID, &user.Username, &user.Password, &user.Account, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // User not found, return nil without error
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by their ID.
func GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, password_hash, account, created_at FROM users WHERE id = $1`

	err := DB.QueryRow(ctx, query, userID).
		Scan(&user.ID, &user.Username, &user.Password, &user.Account, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}
