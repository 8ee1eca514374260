package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	maxOpenConns    = 10
	connMaxIdleTime = 5 * time.Minute
)

// PostgresStore keeps the registry in a single table. seq records insertion
// order, names are stored as raw bytes so any string round-trips (TEXT rejects
// NUL), and every operation runs in its own transaction holding an exclusive
// table lock, which gives the same serialization the in-memory store has.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a pool through the pgx driver and verifies the
// connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := withTimeout(ctx, pingTimeout, db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS items (
				seq  BIGSERIAL PRIMARY KEY,
				id   NUMERIC(20, 0) NOT NULL,
				name BYTEA NOT NULL
			)
		`)
		if err != nil {
			return fmt.Errorf("create items table: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, s.db.PingContext)
}

func (s *PostgresStore) List(ctx context.Context) ([]Item, error) {
	out := make([]Item, 0, 16)

	err := s.locked(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id::text, name
			FROM items
			ORDER BY seq ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			it, err := scanItem(rows)
			if err != nil {
				return err
			}
			out = append(out, it)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Add(ctx context.Context, it Item) error {
	err := s.locked(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, name)
			VALUES ($1::numeric, $2)
		`, formatID(it.ID), []byte(it.Name))
		return err
	})
	if err != nil {
		return fmt.Errorf("add item %d: %w", it.ID, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id uint64, name string) (Item, error) {
	var it Item

	err := s.locked(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			UPDATE items
			SET name = $2
			WHERE seq = (
				SELECT seq FROM items
				WHERE id = $1::numeric
				ORDER BY seq ASC
				LIMIT 1
			)
			RETURNING id::text, name
		`, formatID(id), []byte(name))

		var err error
		it, err = scanItem(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("update item %d: %w", id, err)
	}
	return it, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uint64) error {
	var n int64

	err := s.locked(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM items
			WHERE seq = (
				SELECT seq FROM items
				WHERE id = $1::numeric
				ORDER BY seq ASC
				LIMIT 1
			)
		`, formatID(id))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `SELECT count(*) FROM items`).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// locked runs fn in a transaction that first takes an exclusive lock on the
// items table. The lock is released when the transaction ends.
func (s *PostgresStore) locked(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `LOCK TABLE items IN ACCESS EXCLUSIVE MODE`); err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		rawID   string
		rawName []byte
	)
	if err := row.Scan(&rawID, &rawName); err != nil {
		return Item{}, err
	}

	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return Item{}, fmt.Errorf("stored id %q: %w", rawID, err)
	}
	return Item{ID: id, Name: string(rawName)}, nil
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isTimeoutErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err)
}

// pgCode extracts the SQLSTATE of a server-side error for logging.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
