package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vowpact/internal/contract"
	"vowpact/internal/logging"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	dialectSQLite = "sqlite3"

	tableContracts = "contracts"
	tableUsers     = "users"
	tableSessions  = "sessions"

	colID         = "id"
	colOwnerID    = "owner_id"
	colStatus     = "status"
	colShareToken = "share_token"
	colEmail      = "email"
	colToken      = "token"
	colUserID     = "user_id"
	colExpiresAt  = "expires_at"
	colCreatedAt  = "created_at"
	colUpdatedAt  = "updated_at"
	colDoc        = "doc"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS contracts (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	status TEXT NOT NULL,
	share_token TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contracts_owner ON contracts(owner_id, status);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	doc TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at);
`

type docRow struct {
	Doc string `db:"doc"`
}

// SQLiteStore keeps indexed columns for filtering and the full record as a
// JSON document.
type SQLiteStore struct {
	db     *sqlx.DB
	dbPath string
	dialect goqu.DialectWrapper
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps UpdateContract transactions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Store("sqlite store opened at %s", path)
	return &SQLiteStore{db: db, dbPath: path, dialect: goqu.Dialect(dialectSQLite)}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func encodeDoc(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

func contractRecord(c *contract.Contract) (goqu.Record, error) {
	doc, err := encodeDoc(c)
	if err != nil {
		return nil, err
	}
	return goqu.Record{
		colID:         c.ID,
		colOwnerID:    c.OwnerID,
		colStatus:     string(c.Status),
		colShareToken: c.ShareToken,
		colCreatedAt:  c.CreatedAt.UnixNano(),
		colUpdatedAt:  c.UpdatedAt.UnixNano(),
		colDoc:        doc,
	}, nil
}

func decodeContract(doc string) (*contract.Contract, error) {
	var c contract.Contract
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateContract(ctx context.Context, c *contract.Contract) error {
	rec, err := contractRecord(c)
	if err != nil {
		return err
	}
	q, _, err := s.dialect.Insert(tableContracts).Rows(rec).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("contract %s: %w", c.ID, ErrDuplicate)
		}
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getContractWhere(ctx context.Context, q sqlx.QueryerContext, what string, ex goqu.Ex) (*contract.Contract, error) {
	query, _, err := s.dialect.From(tableContracts).Select(colDoc).Where(ex).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var row docRow
	if err := sqlx.GetContext(ctx, q, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return nil, err
	}
	return decodeContract(row.Doc)
}

func (s *SQLiteStore) GetContract(ctx context.Context, id string) (*contract.Contract, error) {
	return s.getContractWhere(ctx, s.db, "contract "+id, goqu.Ex{colID: id})
}

func (s *SQLiteStore) GetContractByShareToken(ctx context.Context, token string) (*contract.Contract, error) {
	if token == "" {
		return nil, fmt.Errorf("share token: %w", ErrNotFound)
	}
	return s.getContractWhere(ctx, s.db, "share token", goqu.Ex{colShareToken: token})
}

func (s *SQLiteStore) ListContracts(ctx context.Context, f ContractFilter) ([]*contract.Contract, error) {
	sel := s.dialect.From(tableContracts).Select(colDoc).
		Order(goqu.I(colUpdatedAt).Desc(), goqu.I(colID).Asc())

	var where []goqu.Expression
	if f.OwnerID != "" {
		where = append(where, goqu.C(colOwnerID).Eq(f.OwnerID))
	}
	switch {
	case len(f.Statuses) > 0:
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, goqu.C(colStatus).In(statuses))
	case !f.IncludeDeleted:
		where = append(where, goqu.C(colStatus).Neq(string(contract.StatusDeleted)))
	}
	if len(where) > 0 {
		sel = sel.Where(goqu.And(where...))
	}

	query, _, err := sel.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	out := make([]*contract.Contract, 0, len(rows))
	for _, r := range rows {
		c, err := decodeContract(r.Doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateContract(ctx context.Context, id string, fn UpdateFunc) (*contract.Contract, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	c, err := s.getContractWhere(ctx, tx, "contract "+id, goqu.Ex{colID: id})
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	c.ID = id

	rec, err := contractRecord(c)
	if err != nil {
		return nil, err
	}
	delete(rec, colID)
	delete(rec, colCreatedAt)
	q, _, err := s.dialect.Update(tableContracts).Set(rec).Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, q); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("share token: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("update contract: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}

// =============================================================================
// USERS
// =============================================================================

func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	cp := cloneUser(u)
	cp.Email = NormalizeEmail(u.Email)
	doc, err := encodeDoc(cp)
	if err != nil {
		return err
	}
	q, _, err := s.dialect.Insert(tableUsers).Rows(goqu.Record{
		colID:    cp.ID,
		colEmail: cp.Email,
		colDoc:   doc,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", cp.Email, ErrDuplicate)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getUserWhere(ctx context.Context, what string, ex goqu.Ex) (*User, error) {
	query, _, err := s.dialect.From(tableUsers).Select(colDoc).Where(ex).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var row docRow
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", what, ErrNotFound)
		}
		return nil, err
	}
	var u User
	if err := json.Unmarshal([]byte(row.Doc), &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUserWhere(ctx, id, goqu.Ex{colID: id})
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	return s.getUserWhere(ctx, email, goqu.Ex{colEmail: email})
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	query, _, err := s.dialect.From(tableUsers).Select(colDoc).Order(goqu.I(colEmail).Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	var rows []docRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]*User, 0, len(rows))
	for _, r := range rows {
		var u User
		if err := json.Unmarshal([]byte(r.Doc), &u); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		out = append(out, &u)
	}
	return out, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *Session) error {
	doc, err := encodeDoc(sess)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	del, _, err := s.dialect.Delete(tableSessions).Where(goqu.C(colToken).Eq(sess.Token)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	ins, _, err := s.dialect.Insert(tableSessions).Rows(goqu.Record{
		colToken:     sess.Token,
		colUserID:    sess.UserID,
		colExpiresAt: sess.ExpiresAt.UnixNano(),
		colDoc:       doc,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ins); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*Session, error) {
	query, _, err := s.dialect.From(tableSessions).Select(colDoc).Where(goqu.C(colToken).Eq(token)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	var row docRow
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", ErrNotFound)
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(row.Doc), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	q, _, err := s.dialect.Delete(tableSessions).Where(goqu.C(colToken).Eq(token)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	_, err = s.db.ExecContext(ctx, q)
	return err
}

func (s *SQLiteStore) PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	q, _, err := s.dialect.Delete(tableSessions).Where(goqu.C(colExpiresAt).Lte(now.UnixNano())).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build purge: %w", err)
	}
	res, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
