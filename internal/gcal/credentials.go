package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/oauth2"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialStore persists each provider's OAuth token.
type CredentialStore struct {
	db DB
}

// NewCredentialStore creates a credential store.
func NewCredentialStore(db DB) *CredentialStore {
	if db == nil {
		panic("gcal: db required")
	}
	return &CredentialStore{db: db}
}

// Get loads a provider's OAuth token.
func (s *CredentialStore) Get(ctx context.Context, providerID uuid.UUID) (*oauth2.Token, error) {
	var (
		access, refresh string
		expiry          time.Time
	)
	err := s.db.QueryRow(ctx, `
		SELECT access_token, refresh_token, expiry
		FROM calendar_credentials
		WHERE provider_id = $1`, providerID).Scan(&access, &refresh, &expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("gcal: get credentials: %w", err)
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       expiry,
		TokenType:    "Bearer",
	}, nil
}

// Save upserts a provider's OAuth token, typically after the external
// auth collaborator completes the OAuth exchange or after a refresh.
func (s *CredentialStore) Save(ctx context.Context, providerID uuid.UUID, tok *oauth2.Token) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO calendar_credentials (provider_id, access_token, refresh_token, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN calendar_credentials.refresh_token ELSE EXCLUDED.refresh_token END,
			expiry = EXCLUDED.expiry,
			updated_at = EXCLUDED.updated_at`,
		providerID, tok.AccessToken, tok.RefreshToken, tok.Expiry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("gcal: save credentials: %w", err)
	}
	return nil
}
