package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// CredentialRepository persists OAuth credentials keyed by (platform, subject).
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new [CredentialRepository] with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

const credentialColumns = `id, platform, subject, access_token, refresh_token, token_type, scope, expires_at, created_at, updated_at`

// Get returns the credential for platform and subject, or [shared.ErrNotConnected] when none is stored.
func (r *CredentialRepository) Get(platform models.Platform, subject string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE platform = ? AND subject = ?`

	cred, err := scanCredential(r.db.QueryRow(query, platform, subject))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s for subject %s", shared.ErrNotConnected, platform, subject)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}
	return cred, nil
}

// Save inserts the credential or replaces the stored tokens for its (platform, subject).
func (r *CredentialRepository) Save(cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if cred.ID == "" {
		cred.ID = shared.GenerateID()
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now

	query := `
		INSERT INTO credentials (` + credentialColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, subject) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		cred.ID, cred.Platform, cred.Subject, cred.AccessToken, nullString(cred.RefreshToken),
		nullString(cred.TokenType), nullString(cred.Scope), nullTime(cred.ExpiresAt), cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Delete removes the credential for platform and subject.
func (r *CredentialRepository) Delete(platform models.Platform, subject string) error {
	result, err := r.db.Exec(`DELETE FROM credentials WHERE platform = ? AND subject = ?`, platform, subject)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return expectOneRow(result, "credential", string(platform), shared.ErrNotConnected)
}

// List returns every credential stored for subject, ordered by platform.
func (r *CredentialRepository) List(subject string) ([]*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE subject = ? ORDER BY platform ASC`

	rows, err := r.db.Query(query, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return creds, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(s scanner) (*models.Credential, error) {
	var (
		cred                           models.Credential
		platform                       string
		refreshToken, tokenType, scope sql.NullString
		expiresAt                      sql.NullTime
	)

	err := s.Scan(&cred.ID, &platform, &cred.Subject, &cred.AccessToken, &refreshToken, &tokenType, &scope,
		&expiresAt, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return nil, err
	}

	cred.Platform = models.Platform(platform)
	cred.RefreshToken = refreshToken.String
	cred.TokenType = tokenType.String
	cred.Scope = scope.String
	if expiresAt.Valid {
		cred.SetExpiry(expiresAt.Time)
	}
	return &cred, nil
}
