package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Store struct {
	DB     *sql.DB
	driver string
}

func NewStore(db *sql.DB, driver string) *Store {
	if driver == "" {
		driver = DriverSQLite
	}
	return &Store{DB: db, driver: driver}
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Session opens a unit of work. Reads run directly against the pool until
// the first write, which starts a transaction; every later statement of the
// session runs inside it. SaveChanges commits, Close rolls back whatever was
// not saved. A session must not be shared between goroutines.
func (s *Store) Session() *Session {
	return &Session{store: s}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Session struct {
	store  *Store
	tx     *sql.Tx
	closed bool
}

var ErrSessionClosed = errors.New("session closed")

func (s *Session) reader() (querier, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.store.DB, nil
}

func (s *Session) writer(ctx context.Context) (querier, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx == nil {
		tx, err := s.store.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin unit of work: %w", err)
		}
		s.tx = tx
	}
	return s.tx, nil
}

// Pending reports whether the session holds unsaved writes.
func (s *Session) Pending() bool {
	return s.tx != nil
}

func (s *Session) SaveChanges(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save changes: %w", translateError(err))
	}
	return nil
}

func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (s *Session) rebind(query string) string {
	return rebind(s.store.driver, query)
}

// rebind rewrites '?' placeholders to the $n form postgres expects.
func rebind(driver, query string) string {
	if driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
