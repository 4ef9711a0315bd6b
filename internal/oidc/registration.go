package oidc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Registration is the trust configuration linking this tool to one
// platform under LTI 1.3: who the issuer is, which client id the tool
// was registered as, and where to send the authentication request.
type Registration struct {
	ID           int64
	Issuer       string
	ClientID     string
	AuthLoginURL string
	KeySetURL    string
	TokenURL     string
}

// RegistrationNotFoundError carries the lookup pair that matched
// nothing. Maps to a forbidden response at the HTTP boundary.
type RegistrationNotFoundError struct {
	Issuer   string
	ClientID string
}

func (e *RegistrationNotFoundError) Error() string {
	return fmt.Sprintf("oidc: registration not found for iss %q, client_id %q", e.Issuer, e.ClientID)
}

// RegistrationStore looks up and manages trusted registrations.
type RegistrationStore interface {
	// Get resolves a registration by issuer, narrowed by client id when
	// the platform supplied one. Returns *RegistrationNotFoundError when
	// nothing matches.
	Get(ctx context.Context, issuer, clientID string) (Registration, error)
	Create(ctx context.Context, r Registration) (Registration, error)
	List(ctx context.Context, offset, limit int) ([]Registration, error)
}

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

func (s *SQLStore) Get(ctx context.Context, issuer, clientID string) (Registration, error) {
	var (
		row *sql.Row
		r   Registration
	)
	if clientID != "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, issuer, client_id, auth_login_url, key_set_url, token_url
			 FROM lti_registrations WHERE issuer=$1 AND client_id=$2`, issuer, clientID)
	} else {
		// Some platforms omit client_id on login initiation; fall back to
		// the oldest registration for the issuer.
		row = s.db.QueryRowContext(ctx,
			`SELECT id, issuer, client_id, auth_login_url, key_set_url, token_url
			 FROM lti_registrations WHERE issuer=$1 ORDER BY id LIMIT 1`, issuer)
	}
	err := row.Scan(&r.ID, &r.Issuer, &r.ClientID, &r.AuthLoginURL, &r.KeySetURL, &r.TokenURL)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, &RegistrationNotFoundError{Issuer: issuer, ClientID: clientID}
	}
	if err != nil {
		return Registration{}, err
	}
	return r, nil
}

func (s *SQLStore) Create(ctx context.Context, r Registration) (Registration, error) {
	if s.driver == "postgres" {
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO lti_registrations (issuer, client_id, auth_login_url, key_set_url, token_url, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
			r.Issuer, r.ClientID, r.AuthLoginURL, r.KeySetURL, r.TokenURL, s.now().Unix()).Scan(&r.ID)
		return r, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO lti_registrations (issuer, client_id, auth_login_url, key_set_url, token_url, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		r.Issuer, r.ClientID, r.AuthLoginURL, r.KeySetURL, r.TokenURL, s.now().Unix())
	if err != nil {
		return Registration{}, err
	}
	r.ID, err = res.LastInsertId()
	return r, err
}

func (s *SQLStore) List(ctx context.Context, offset, limit int) ([]Registration, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, issuer, client_id, auth_login_url, key_set_url, token_url
		 FROM lti_registrations ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Registration
	for rows.Next() {
		var r Registration
		if err := rows.Scan(&r.ID, &r.Issuer, &r.ClientID, &r.AuthLoginURL, &r.KeySetURL, &r.TokenURL); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
