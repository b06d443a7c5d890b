package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"filmfest.org/internal/ids"
)

var _ Directory = (*PGDirectory)(nil)

// PGDirectory implements Directory over PostgreSQL.
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(db *sql.DB) *PGDirectory {
	return &PGDirectory{db: db}
}

const userColumns = `id, email, password_hash, role, active, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (d *PGDirectory) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := d.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (d *PGDirectory) FindUser(ctx context.Context, id string) (*User, error) {
	row := d.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (d *PGDirectory) CreateUser(ctx context.Context, fields UserFields) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(fields.Email))
	if email == "" || fields.PasswordHash == "" || !fields.Role.Valid() {
		return nil, ErrInvalidInput
	}
	id := ids.New()
	_, err := d.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, role, active) values($1,$2,$3,$4,$5)`,
		id, email, fields.PasswordHash, fields.Role, fields.Active,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return d.FindUser(ctx, id)
}

func (d *PGDirectory) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if _, err := d.db.ExecContext(ctx,
			`update users set email=$1, updated_at=now() where id=$2`, email, id); err != nil {
			return nil, err
		}
	}
	if upd.PasswordHash != nil {
		if _, err := d.db.ExecContext(ctx,
			`update users set password_hash=$1, updated_at=now() where id=$2`, *upd.PasswordHash, id); err != nil {
			return nil, err
		}
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, ErrInvalidInput
		}
		if _, err := d.db.ExecContext(ctx,
			`update users set role=$1, updated_at=now() where id=$2`, *upd.Role, id); err != nil {
			return nil, err
		}
	}
	if upd.Active != nil {
		if _, err := d.db.ExecContext(ctx,
			`update users set active=$1, updated_at=now() where id=$2`, *upd.Active, id); err != nil {
			return nil, err
		}
	}
	return d.FindUser(ctx, id)
}

// isUniqueViolation matches the Postgres unique_violation SQLSTATE without
// importing driver error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

var _ SessionRegistry = (*PGSessionRegistry)(nil)

// PGSessionRegistry implements SessionRegistry over PostgreSQL.
type PGSessionRegistry struct {
	db *sql.DB
}

func NewPGSessionRegistry(db *sql.DB) *PGSessionRegistry {
	return &PGSessionRegistry{db: db}
}

const sessionColumns = `id, user_id, site_mode, generation, created_at, last_activity, expires_at, ip_address, user_agent, revoked`

func (r *PGSessionRegistry) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return ErrInvalidInput
	}
	_, err := r.db.ExecContext(ctx,
		`insert into sessions(id, user_id, site_mode, generation, created_at, last_activity, expires_at, ip_address, user_agent, revoked)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,false)`,
		sess.ID, sess.UserID, sess.SiteMode, sess.Generation,
		sess.CreatedAt, sess.LastActivity, sess.ExpiresAt,
		sess.IPAddress, sess.UserAgent,
	)
	return err
}

func (r *PGSessionRegistry) Find(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id=$1`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.SiteMode, &sess.Generation,
		&sess.CreatedAt, &sess.LastActivity, &sess.ExpiresAt,
		&sess.IPAddress, &sess.UserAgent, &sess.Revoked); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (r *PGSessionRegistry) Touch(ctx context.Context, id string, generation int, lastActivity, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`update sessions set generation=$1, last_activity=$2, expires_at=$3 where id=$4 and not revoked`,
		generation, lastActivity, expiresAt, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGSessionRegistry) Revoke(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`update sessions set revoked=true where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGSessionRegistry) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`update sessions set revoked=true where user_id=$1 and not revoked`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGSessionRegistry) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions where user_id=$1 order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.SiteMode, &sess.Generation,
			&sess.CreatedAt, &sess.LastActivity, &sess.ExpiresAt,
			&sess.IPAddress, &sess.UserAgent, &sess.Revoked); err != nil {
			return nil, err
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}
