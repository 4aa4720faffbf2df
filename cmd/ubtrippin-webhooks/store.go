package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/fistfulayen/ubtrippin-sub001/store"
	"github.com/fistfulayen/ubtrippin-sub001/store/bunstore"
	"github.com/fistfulayen/ubtrippin-sub001/store/memory"
)

// openStore connects the configured backend. The grove-backed stores
// (postgres, sqlite, mongo, redis packages) take a database handle owned by
// the embedding application and are not opened here.
func openStore(c StoreConfig) (store.Store, error) {
	switch c.Driver {
	case "memory":
		return memory.New(), nil

	case "postgres":
		if c.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for postgres")
		}
		sqldb, err := sql.Open("postgres", c.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return bunstore.New(bun.NewDB(sqldb, pgdialect.New())), nil

	case "sqlite":
		dsn := c.DSN
		if dsn == "" {
			dsn = "file:ubtrippin.db?_foreign_keys=on&_busy_timeout=5000"
		}
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite serializes writers; one connection avoids SQLITE_BUSY churn.
		sqldb.SetMaxOpenConns(1)
		return bunstore.New(bun.NewDB(sqldb, sqlitedialect.New())), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q: must be memory, postgres or sqlite", c.Driver)
	}
}
