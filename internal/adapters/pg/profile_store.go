package pg

// Package pg provides the Postgres-backed remote profile store adapter.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
	apperrors "github.com/chambahq/identity-core/internal/errors"
)

// ProfileStore performs point reads against the remote profiles table by
// identity id. It is read-only: profile mutation belongs to the onboarding
// surfaces, not the session core.
type ProfileStore struct {
	DB *sql.DB
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{DB: db}
}

// FetchByIdentityID returns the profile for the given identity id, or a
// NotFound error when no row exists.
func (r *ProfileStore) FetchByIdentityID(ctx context.Context, identityID string) (domainauth.Profile, error) {
	if identityID == "" {
		return domainauth.Profile{}, apperrors.Validation("identity id is required")
	}

	var out domainauth.Profile
	err := withPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		row := conn.QueryRow(ctx, `
			SELECT identity_id, display_name, COALESCE(role, ''), phone, location,
			       academic_info, company_name, COALESCE(extra, 'null'::jsonb), updated_at
			FROM profiles
			WHERE identity_id = $1
		`, identityID)

		var role string
		if scanErr := row.Scan(
			&out.IdentityID,
			&out.DisplayName,
			&role,
			&out.Phone,
			&out.Location,
			&out.AcademicInfo,
			&out.CompanyName,
			&out.Extra,
			&out.UpdatedAt,
		); scanErr != nil {
			return scanErr
		}
		out.Role = domainauth.Role(role)
		return nil
	})
	if err != nil {
		return domainauth.Profile{}, apperrors.MapDBError(err)
	}

	return out, nil
}

// withPgxConn acquires a *pgx.Conn via the stdlib bridge and executes fn with it.
func withPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			// connection close failure is best-effort and ignored
			_ = closeErr
		}
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		return fn(std.Conn())
	})
}
