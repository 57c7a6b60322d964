// Package sqlstate is a durable contract.State on SQLite.
package sqlstate

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"xdao.co/imagevault/account"
	"xdao.co/imagevault/ledger/contract"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner       TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL,
	uri         TEXT NOT NULL,
	block       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS records_owner ON records (owner, seq);
CREATE TABLE IF NOT EXISTS access (
	owner   TEXT NOT NULL,
	user    TEXT NOT NULL,
	allowed INTEGER NOT NULL,
	pos     INTEGER NOT NULL,
	block   INTEGER NOT NULL,
	PRIMARY KEY (owner, user)
);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// Config holds the parameters for opening a State.
type Config struct {
	// Path is the database file. It is created if missing.
	Path string
	// PoolSize defaults to 4.
	PoolSize int
	Logger   *zap.Logger
}

// State is a contract.State backed by a SQLite connection pool.
type State struct {
	pool   *sqlitex.Pool
	path   string
	logger *zap.Logger
}

var _ contract.State = (*State)(nil)

// Open opens (and if needed creates) the database at cfg.Path.
func Open(cfg Config) (*State, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlstate: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstate: opening %s", cfg.Path)
	}
	logger.Named("sqlstate").Info("opened", zap.String("path", cfg.Path), zap.Int("pool_size", poolSize))
	return &State{pool: pool, path: cfg.Path, logger: logger.Named("sqlstate")}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return errors.Wrapf(err, "sqlstate: %s", pragma)
		}
	}
	return errors.Wrap(sqlitex.ExecuteScript(conn, schema, nil), "sqlstate: schema")
}

func (s *State) Close() error {
	if err := s.pool.Close(); err != nil {
		return errors.Wrapf(err, "sqlstate: closing %s", s.path)
	}
	s.logger.Info("closed", zap.String("path", s.path))
	return nil
}

func (s *State) Height(ctx context.Context) (uint64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "sqlstate: take")
	}
	defer s.pool.Put(conn)

	var h int64
	err = sqlitex.Execute(conn, `SELECT value FROM meta WHERE key = 'height'`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			h = stmt.ColumnInt64(0)
			return nil
		},
	})
	return uint64(h), errors.Wrap(err, "sqlstate: height")
}

func (s *State) Records(ctx context.Context, owner account.Account) ([]contract.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstate: take")
	}
	defer s.pool.Put(conn)

	out := []contract.Record{}
	err = sqlitex.Execute(conn,
		`SELECT name, description, uri FROM records WHERE owner = ? ORDER BY seq`,
		&sqlitex.ExecOptions{
			Args: []any{owner.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				out = append(out, contract.Record{
					Name:        stmt.ColumnText(0),
					Description: stmt.ColumnText(1),
					URI:         stmt.ColumnText(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, errors.Wrap(err, "sqlstate: records")
	}
	return out, nil
}

func (s *State) Access(ctx context.Context, owner account.Account) ([]contract.Grant, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstate: take")
	}
	defer s.pool.Put(conn)

	out := []contract.Grant{}
	err = sqlitex.Execute(conn,
		`SELECT user, allowed FROM access WHERE owner = ? ORDER BY pos`,
		&sqlitex.ExecOptions{
			Args: []any{owner.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				user, err := account.Parse(stmt.ColumnText(0))
				if err != nil {
					return err
				}
				out = append(out, contract.Grant{User: user, Allowed: stmt.ColumnInt(1) != 0})
				return nil
			},
		})
	if err != nil {
		return nil, errors.Wrap(err, "sqlstate: access")
	}
	return out, nil
}

func (s *State) AppendRecord(ctx context.Context, block uint64, owner account.Account, rec contract.Record) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return errors.Wrap(err, "sqlstate: take")
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return errors.Wrap(err, "sqlstate: begin transaction")
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`INSERT INTO records (owner, name, description, uri, block) VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{owner.String(), rec.Name, rec.Description, rec.URI, int64(block)}})
	if err != nil {
		return errors.Wrap(err, "sqlstate: insert record")
	}
	return setHeight(conn, block)
}

func (s *State) SetAccess(ctx context.Context, block uint64, owner, user account.Account, allowed bool) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return errors.Wrap(err, "sqlstate: take")
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return errors.Wrap(err, "sqlstate: begin transaction")
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`UPDATE access SET allowed = ?, block = ? WHERE owner = ? AND user = ?`,
		&sqlitex.ExecOptions{Args: []any{boolInt(allowed), int64(block), owner.String(), user.String()}})
	if err != nil {
		return errors.Wrap(err, "sqlstate: update access")
	}
	if conn.Changes() == 0 && allowed {
		err = sqlitex.Execute(conn,
			`INSERT INTO access (owner, user, allowed, pos, block) VALUES (?, ?, 1, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{owner.String(), user.String(), int64(block), int64(block)}})
		if err != nil {
			return errors.Wrap(err, "sqlstate: insert access")
		}
	}
	return setHeight(conn, block)
}

func setHeight(conn *sqlite.Conn, block uint64) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO meta (key, value) VALUES ('height', ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{int64(block)}})
	return errors.Wrap(err, "sqlstate: set height")
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
