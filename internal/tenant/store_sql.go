package tenant

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

const tenantColumns = `id, consumer_key, shared_secret, lms_url, requester_email,
	developer_key, developer_secret, cipher_iv, provisioning,
	tool_consumer_instance_guid, product_family_code, product_version,
	instance_name, instance_description, instance_url, instance_contact_email,
	registration_id, deployment_id, created_at`

func (s *SQLStore) Create(ctx context.Context, t Identity) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		t.ID,
		nullStr(t.ConsumerKey),
		t.SharedSecret,
		t.LMSURL,
		t.RequesterEmail,
		nullStr(t.DeveloperKey),
		t.DeveloperSecret,
		t.CipherIV,
		t.Provisioning,
		nullStr(t.ToolConsumerInstanceGUID),
		nullStr(t.ProductFamilyCode),
		nullStr(t.ProductVersion),
		nullStr(t.InstanceName),
		nullStr(t.InstanceDescription),
		nullStr(t.InstanceURL),
		nullStr(t.InstanceContactEmail),
		nullInt(t.RegistrationID),
		nullStr(t.DeploymentID),
		t.CreatedAt.Unix(),
	)
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (Identity, error) {
	return s.get(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id=$1`, id)
}

func (s *SQLStore) GetByConsumerKey(ctx context.Context, consumerKey string) (Identity, error) {
	return s.get(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE consumer_key=$1`, consumerKey)
}

func (s *SQLStore) GetByDeployment(ctx context.Context, registrationID int64, deploymentID string) (Identity, error) {
	return s.get(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE registration_id=$1 AND deployment_id=$2`,
		registrationID, deploymentID)
}

func (s *SQLStore) List(ctx context.Context, offset, limit int) ([]Identity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateFingerprint(ctx context.Context, id string, fp InstanceFingerprint) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tenants SET
		tool_consumer_instance_guid=$1,
		product_family_code=$2,
		product_version=$3,
		instance_name=$4,
		instance_description=$5,
		instance_url=$6,
		instance_contact_email=$7
		WHERE id=$8`,
		nullStr(fp.GUID),
		nullStr(fp.ProductFamilyCode),
		nullStr(fp.ProductVersion),
		nullStr(fp.InstanceName),
		nullStr(fp.InstanceDescription),
		nullStr(fp.InstanceURL),
		nullStr(fp.InstanceContactEmail),
		id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) get(ctx context.Context, query string, args ...interface{}) (Identity, error) {
	t, err := scanTenant(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	return t, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (Identity, error) {
	var (
		t              Identity
		consumerKey    sql.NullString
		developerKey   sql.NullString
		guid           sql.NullString
		familyCode     sql.NullString
		version        sql.NullString
		name           sql.NullString
		description    sql.NullString
		instanceURL    sql.NullString
		contactEmail   sql.NullString
		registrationID sql.NullInt64
		deploymentID   sql.NullString
		createdAt      int64
	)
	if err := row.Scan(
		&t.ID, &consumerKey, &t.SharedSecret, &t.LMSURL, &t.RequesterEmail,
		&developerKey, &t.DeveloperSecret, &t.CipherIV, &t.Provisioning,
		&guid, &familyCode, &version,
		&name, &description, &instanceURL, &contactEmail,
		&registrationID, &deploymentID, &createdAt,
	); err != nil {
		return Identity{}, err
	}
	t.ConsumerKey = consumerKey.String
	t.DeveloperKey = developerKey.String
	t.ToolConsumerInstanceGUID = guid.String
	t.ProductFamilyCode = familyCode.String
	t.ProductVersion = version.String
	t.InstanceName = name.String
	t.InstanceDescription = description.String
	t.InstanceURL = instanceURL.String
	t.InstanceContactEmail = contactEmail.String
	t.RegistrationID = registrationID.Int64
	t.DeploymentID = deploymentID.String
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return t, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
