package storage

import (
	"database/sql"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Supported values of the store.driver setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	// DriverMemory selects MemoryStore; Open does not accept it.
	DriverMemory = "memory"
)

// Open connects to the database and wraps it in an ent driver carrying the
// matching SQL dialect.
func Open(driver, dsn string) (*entsql.Driver, error) {
	var (
		sqlDriver string
		dia       string
	)
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3", "":
		sqlDriver, dia = "sqlite", dialect.SQLite
	case DriverPostgres, "pgx":
		sqlDriver, dia = "pgx", dialect.Postgres
	default:
		return nil, eris.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: open %s", driver)
	}
	if dia == dialect.SQLite {
		// One connection keeps in-memory databases shared and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	return entsql.OpenDB(dia, db), nil
}
