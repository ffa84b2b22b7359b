package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed schema_sqlite.sql schema_postgres.sql
var schemaFS embed.FS

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	OnDeleteCascade  = "cascade"
	OnDeleteRestrict = "restrict"
)

type Options struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is a file path or ":memory:" for sqlite, a connection URL for postgres.
	DSN string
	// OnPlantDelete decides what happens to the maintenance tasks of a
	// deleted plant: "cascade" (default) removes them, "restrict" makes the
	// delete fail while tasks still reference the plant.
	OnPlantDelete string
}

func Open(opts Options) (*sql.DB, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}

	var (
		db  *sql.DB
		err error
	)
	switch opts.Driver {
	case DriverSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(opts.DSN))
		if err == nil {
			// One connection serializes writers and keeps ":memory:" databases alive.
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}

	if err := applySchema(context.Background(), db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func applySchema(ctx context.Context, db *sql.DB, opts Options) error {
	file := "schema_sqlite.sql"
	if opts.Driver == DriverPostgres {
		file = "schema_postgres.sql"
	}

	schemaSQL, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	onDelete, err := onDeleteClause(opts.OnPlantDelete)
	if err != nil {
		return err
	}
	statements := strings.ReplaceAll(string(schemaSQL), "{{ON_PLANT_DELETE}}", onDelete)

	if _, err := db.ExecContext(ctx, statements); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

func onDeleteClause(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", OnDeleteCascade:
		return "CASCADE", nil
	case OnDeleteRestrict:
		return "RESTRICT", nil
	default:
		return "", fmt.Errorf("unsupported on-delete behaviour %q", value)
	}
}

// sqliteDSN turns foreign key enforcement on for every connection. SQLite
// leaves it off by default.
func sqliteDSN(path string) string {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return path + separator + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
