package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/opentrusty/internal/oauth2"
)

// AuthorizationCodeRepository implements oauth2.AuthorizationCodeRepository.
type AuthorizationCodeRepository struct {
	db *DB
}

// NewAuthorizationCodeRepository creates a new authorization code repository.
func NewAuthorizationCodeRepository(db *DB) *AuthorizationCodeRepository {
	return &AuthorizationCodeRepository{db: db}
}

// Create inserts a freshly minted authorization code.
func (r *AuthorizationCodeRepository) Create(code *oauth2.AuthorizationCode) error {
	ctx := context.Background()

	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO authorization_codes (
			code, client_id, user_id, redirect_uri, scope, state,
			code_challenge, code_challenge_method, expires_at, used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		code.Code, code.ClientID, code.UserID, code.RedirectURI, code.Scope, code.State,
		code.CodeChallenge, code.CodeChallengeMethod, code.ExpiresAt, code.Used, code.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating authorization code: %w", err)
	}
	return nil
}

// GetByCode retrieves an authorization code by its opaque value.
func (r *AuthorizationCodeRepository) GetByCode(codeStr string) (*oauth2.AuthorizationCode, error) {
	ctx := context.Background()

	var code oauth2.AuthorizationCode
	var usedAt *time.Time

	err := r.db.pool.QueryRow(ctx, `
		SELECT code, client_id, user_id, redirect_uri, scope, state,
			code_challenge, code_challenge_method, expires_at, used, used_at, created_at
		FROM authorization_codes
		WHERE code = $1
	`, codeStr).Scan(
		&code.Code, &code.ClientID, &code.UserID, &code.RedirectURI, &code.Scope, &code.State,
		&code.CodeChallenge, &code.CodeChallengeMethod, &code.ExpiresAt, &code.Used, &usedAt, &code.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, oauth2.ErrCodeNotFound
		}
		return nil, fmt.Errorf("getting authorization code: %w", err)
	}
	code.UsedAt = usedAt

	return &code, nil
}

// MarkAsUsed atomically flips a code from unused to used, distinguishing a
// code that was already redeemed from one that never existed. The WHERE
// clause's "AND used = false" guard is the compare-and-set: only the first
// of two concurrent redemptions can ever affect a row, so the second always
// observes RowsAffected() == 0 and must then look the code up again to tell
// replay apart from a bad code.
func (r *AuthorizationCodeRepository) MarkAsUsed(codeStr string) error {
	ctx := context.Background()
	now := time.Now()

	result, err := r.db.pool.Exec(ctx, `
		UPDATE authorization_codes SET used = true, used_at = $2
		WHERE code = $1 AND used = false
	`, codeStr, now)
	if err != nil {
		return fmt.Errorf("marking code used: %w", err)
	}

	if result.RowsAffected() > 0 {
		return nil
	}

	// No row was flipped: either the code does not exist, or it was already
	// used (by this call or a racing one). Distinguish the two with a read.
	existing, err := r.GetByCode(codeStr)
	if err != nil {
		return err
	}
	if existing.Used {
		return oauth2.ErrCodeAlreadyUsed
	}
	return oauth2.ErrCodeNotFound
}

// Delete removes a code outright, used by explicit revocation paths.
func (r *AuthorizationCodeRepository) Delete(codeStr string) error {
	ctx := context.Background()

	_, err := r.db.pool.Exec(ctx, `DELETE FROM authorization_codes WHERE code = $1`, codeStr)
	if err != nil {
		return fmt.Errorf("deleting code: %w", err)
	}
	return nil
}

// DeleteExpiredOrUsed prunes codes that are no longer redeemable, called
// periodically by the cleanup ticker.
func (r *AuthorizationCodeRepository) DeleteExpiredOrUsed() error {
	ctx := context.Background()

	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM authorization_codes WHERE expires_at < $1 OR used = true
	`, time.Now())
	if err != nil {
		return fmt.Errorf("deleting expired or used codes: %w", err)
	}
	return nil
}
