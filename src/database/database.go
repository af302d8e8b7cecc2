package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/fundfolio/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

const createTableStatement = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	sort_order INTEGER,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS funds (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	account TEXT NOT NULL DEFAULT 'Default',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	fund_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	trade_time TEXT NOT NULL,
	amount REAL NOT NULL DEFAULT 0,
	shares REAL NOT NULL DEFAULT 0,
	price REAL NOT NULL DEFAULT 0,
	fee REAL NOT NULL DEFAULT 0,
	note TEXT,
	status TEXT NOT NULL DEFAULT 'settled',
	FOREIGN KEY(fund_id) REFERENCES funds(id)
);

CREATE TABLE IF NOT EXISTS positions (
	fund_id INTEGER PRIMARY KEY,
	shares REAL NOT NULL DEFAULT 0,
	cost_amount REAL NOT NULL DEFAULT 0,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY(fund_id) REFERENCES funds(id)
);
`

// Open opens a sqlite database at the given path. Tests use ":memory:".
func Open(databasePath string) (*sql.DB, error) {
	return sql.Open("sqlite", databasePath)
}

// EnsureSchema creates missing tables and applies column migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(createTableStatement); err != nil {
		return err
	}
	migrateTradesTable(db)
	migrateAccountsTable(db)
	return nil
}

// InitDB opens the database, ensures the schema, and installs the global
// handle used by the rest of the application.
func InitDB(databasePath string) {
	db, err := Open(databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}
	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database schema", "databasePath", databasePath)
	}
	if err := EnsureSchema(db); err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	}
}

// migrateTradesTable adds the settlement status column to databases created
// before trades carried an explicit state.
func migrateTradesTable(db *sql.DB) {
	if !columnExists(db, "trades", "status") {
		if _, err := db.Exec("ALTER TABLE trades ADD COLUMN status TEXT NOT NULL DEFAULT 'settled'"); err != nil {
			if logger.L != nil {
				logger.L.Error("Error adding 'status' column to 'trades' table", "error", err)
			}
			return
		}
		// Legacy rows encoded "pending" as a zero-share buy with spent amount.
		_, err := db.Exec("UPDATE trades SET status = 'pending' WHERE kind = 'buy' AND shares <= 0 AND amount > 0")
		if err != nil && logger.L != nil {
			logger.L.Error("Error backfilling trade status for pending buys", "error", err)
		}
		if logger.L != nil {
			logger.L.Info("Added 'status' column to 'trades' table")
		}
	}
}

func migrateAccountsTable(db *sql.DB) {
	if !columnExists(db, "accounts", "sort_order") {
		if _, err := db.Exec("ALTER TABLE accounts ADD COLUMN sort_order INTEGER"); err != nil {
			if logger.L != nil {
				logger.L.Error("Error adding 'sort_order' column to 'accounts' table", "error", err)
			}
			return
		}
	}
	if _, err := db.Exec("UPDATE accounts SET sort_order = id WHERE sort_order IS NULL"); err != nil {
		if logger.L != nil {
			logger.L.Error("Error backfilling account sort order", "error", err)
		}
	}
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema", "table", table, "error", err)
		}
		return true // assume present rather than risk a bad ALTER
	}
	defer rows.Close()

	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info", "table", table, "error", err)
			}
			return true
		}
		if name == column {
			return true
		}
	}
	return false
}
