// pkg/lti/storage/sql.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
)

// SQLRegistry implements lti.RegistrationStore on database/sql. Queries use
// $N placeholders, which both pgx and modernc sqlite accept.
type SQLRegistry struct {
	DB *sql.DB
}

func NewSQLRegistry(db *sql.DB) *SQLRegistry { return &SQLRegistry{DB: db} }

const registrationColumns = `issuer, client_id, key_set_url, auth_login_url, auth_token_url,
	auth_server, tool_private_key, kid, alg`

func (s *SQLRegistry) FindRegistration(ctx context.Context, issuer, clientID string) (lti.Registration, error) {
	var row *sql.Row
	if clientID == "" {
		row = s.DB.QueryRowContext(ctx, `SELECT `+registrationColumns+`
			FROM lti_registrations WHERE issuer=$1 ORDER BY client_id LIMIT 1`, issuer)
	} else {
		row = s.DB.QueryRowContext(ctx, `SELECT `+registrationColumns+`
			FROM lti_registrations WHERE issuer=$1 AND client_id=$2`, issuer, clientID)
	}
	var (
		r   lti.Registration
		key string
	)
	err := row.Scan(&r.Issuer, &r.ClientID, &r.KeySetURL, &r.AuthLoginURL, &r.AuthTokenURL,
		&r.AuthServer, &key, &r.KID, &r.Algorithm)
	if errors.Is(err, sql.ErrNoRows) {
		return lti.Registration{}, fmt.Errorf("registration %s/%s: %w", issuer, clientID, lti.ErrNotFound)
	}
	if err != nil {
		return lti.Registration{}, fmt.Errorf("find registration: %w", err)
	}
	r.ToolPrivateKey = []byte(key)
	return r, nil
}

func (s *SQLRegistry) FindDeployment(ctx context.Context, issuer, deploymentID string) (lti.Deployment, error) {
	var d lti.Deployment
	err := s.DB.QueryRowContext(ctx, `SELECT deployment_id FROM lti_deployments
		WHERE issuer=$1 AND deployment_id=$2`, issuer, deploymentID).Scan(&d.DeploymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return lti.Deployment{}, fmt.Errorf("deployment %s/%s: %w", issuer, deploymentID, lti.ErrNotFound)
	}
	if err != nil {
		return lti.Deployment{}, fmt.Errorf("find deployment: %w", err)
	}
	return d, nil
}

// SaveRegistration inserts or replaces the registration for (issuer, client id).
func (s *SQLRegistry) SaveRegistration(ctx context.Context, r lti.Registration) error {
	if r.Issuer == "" || r.ClientID == "" {
		return errors.New("storage: issuer and client id are required")
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO lti_registrations (`+registrationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (issuer, client_id) DO UPDATE SET
		  key_set_url=excluded.key_set_url,
		  auth_login_url=excluded.auth_login_url,
		  auth_token_url=excluded.auth_token_url,
		  auth_server=excluded.auth_server,
		  tool_private_key=excluded.tool_private_key,
		  kid=excluded.kid,
		  alg=excluded.alg`,
		r.Issuer, r.ClientID, r.KeySetURL, r.AuthLoginURL, r.AuthTokenURL,
		r.AuthServer, string(r.ToolPrivateKey), r.KID, r.Algorithm)
	if err != nil {
		return fmt.Errorf("save registration: %w", err)
	}
	return nil
}

// AddDeployment binds deploymentID to the registration (issuer, clientID).
func (s *SQLRegistry) AddDeployment(ctx context.Context, issuer, clientID, deploymentID string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO lti_deployments (issuer, client_id, deployment_id)
		VALUES ($1,$2,$3)
		ON CONFLICT (issuer, deployment_id) DO NOTHING`, issuer, clientID, deploymentID)
	if err != nil {
		return fmt.Errorf("add deployment: %w", err)
	}
	return nil
}

// Registrations lists every registration, ordered by issuer and client id.
func (s *SQLRegistry) Registrations(ctx context.Context) ([]lti.Registration, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+registrationColumns+`
		FROM lti_registrations ORDER BY issuer, client_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []lti.Registration
	for rows.Next() {
		var (
			r   lti.Registration
			key string
		)
		if err := rows.Scan(&r.Issuer, &r.ClientID, &r.KeySetURL, &r.AuthLoginURL, &r.AuthTokenURL,
			&r.AuthServer, &key, &r.KID, &r.Algorithm); err != nil {
			return nil, err
		}
		r.ToolPrivateKey = []byte(key)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Migrate creates the registration tables (idempotent).
func Migrate(ctx context.Context, db *sql.DB) error {
	// Try to run as a single script first; if driver rejects multi statements, fall back to splitting.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, e := db.ExecContext(ctx, stmt); e != nil {
				return fmt.Errorf("migration failed at: %s\nerror: %w", firstLine(stmt), e)
			}
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

const schema = `
CREATE TABLE IF NOT EXISTS lti_registrations (
  issuer           TEXT NOT NULL,
  client_id        TEXT NOT NULL,
  key_set_url      TEXT NOT NULL,
  auth_login_url   TEXT NOT NULL,
  auth_token_url   TEXT NOT NULL DEFAULT '',
  auth_server      TEXT NOT NULL DEFAULT '',
  tool_private_key TEXT NOT NULL DEFAULT '',
  kid              TEXT NOT NULL DEFAULT '',
  alg              TEXT NOT NULL DEFAULT '',
  created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (issuer, client_id)
);

CREATE TABLE IF NOT EXISTS lti_deployments (
  issuer        TEXT NOT NULL,
  client_id     TEXT NOT NULL,
  deployment_id TEXT NOT NULL,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY (issuer, deployment_id),
  FOREIGN KEY (issuer, client_id) REFERENCES lti_registrations (issuer, client_id) ON DELETE CASCADE
);
`
