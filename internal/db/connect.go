package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:ltibridge.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/ltibridge?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS lti_registrations (
  id INTEGER PRIMARY KEY AUTOINCREMENT, -- BIGSERIAL in Postgres
  issuer TEXT NOT NULL,
  client_id TEXT NOT NULL,
  auth_login_url TEXT NOT NULL,
  key_set_url TEXT NOT NULL DEFAULT '',
  token_url TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  UNIQUE (issuer, client_id)
);

CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  consumer_key TEXT UNIQUE,
  shared_secret TEXT NOT NULL,
  lms_url TEXT NOT NULL,
  requester_email TEXT NOT NULL,
  developer_key TEXT,
  developer_secret BLOB,
  cipher_iv BLOB,
  provisioning INTEGER NOT NULL DEFAULT 1,
  tool_consumer_instance_guid TEXT,
  product_family_code TEXT,
  product_version TEXT,
  instance_name TEXT,
  instance_description TEXT,
  instance_url TEXT,
  instance_contact_email TEXT,
  registration_id INTEGER REFERENCES lti_registrations(id) ON DELETE CASCADE,
  deployment_id TEXT,
  created_at INTEGER NOT NULL,

  -- Legacy installs carry a consumer key; 1.3 installs a registration
  -- plus deployment. An upgraded install may carry all three.
  CHECK (consumer_key IS NOT NULL
         OR (registration_id IS NOT NULL AND deployment_id IS NOT NULL)),
  UNIQUE (registration_id, deployment_id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS lti_registrations (
  id BIGSERIAL PRIMARY KEY,
  issuer TEXT NOT NULL,
  client_id TEXT NOT NULL,
  auth_login_url TEXT NOT NULL,
  key_set_url TEXT NOT NULL DEFAULT '',
  token_url TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  UNIQUE (issuer, client_id)
);

CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  consumer_key TEXT UNIQUE,
  shared_secret TEXT NOT NULL,
  lms_url TEXT NOT NULL,
  requester_email TEXT NOT NULL,
  developer_key TEXT,
  developer_secret BYTEA,
  cipher_iv BYTEA,
  provisioning BOOLEAN NOT NULL DEFAULT TRUE,
  tool_consumer_instance_guid TEXT,
  product_family_code TEXT,
  product_version TEXT,
  instance_name TEXT,
  instance_description TEXT,
  instance_url TEXT,
  instance_contact_email TEXT,
  registration_id BIGINT REFERENCES lti_registrations(id) ON DELETE CASCADE,
  deployment_id TEXT,
  created_at BIGINT NOT NULL,

  CHECK (consumer_key IS NOT NULL
         OR (registration_id IS NOT NULL AND deployment_id IS NOT NULL)),
  UNIQUE (registration_id, deployment_id)
);
`
