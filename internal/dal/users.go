// Package dal is the data access layer for the account store. It
// contains functions that perform SQL queries and logic that cannot be
// decoupled from the queries.
package dal

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Account is one locally provisioned credential record.
type Account struct {
	ID        uuid.UUID
	Username  string
	Password  string
	CreatedAt string
}

// CreateAccount inserts a new credential record and returns its id.
func CreateAccount(db *sql.DB, username, hashedPassword string) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec(
		"INSERT INTO accounts (id, username, password) VALUES (?, ?, ?)",
		id, username, hashedPassword,
	)
	if err != nil {
		return "", fmt.Errorf("error inserting account: %w", err)
	}
	return id, nil
}

// GetAccountByUsername looks up one account; usernames compare
// case-insensitively.
func GetAccountByUsername(db *sql.DB, username string) (*Account, error) {
	var account Account

	query := "SELECT id, username, password, created_at FROM accounts WHERE username = ?"
	err := db.QueryRow(query, username).Scan(&account.ID, &account.Username, &account.Password, &account.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("account not found: %s", username)
		}
		return nil, fmt.Errorf("error querying account: %w", err)
	}
	return &account, nil
}
