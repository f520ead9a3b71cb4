package history

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/surge-downloader/loader/internal/utils"
)

var (
	db         *sql.DB
	dbMu       sync.Mutex
	dbPath     string
	configured bool
)

// Configure sets the path of the SQLite ledger. The database is opened
// lazily on first use.
func Configure(path string) {
	dbMu.Lock()
	defer dbMu.Unlock()
	dbPath = path
	configured = true
}

func initDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		return nil
	}
	if !configured || dbPath == "" {
		return fmt.Errorf("history database not configured: call history.Configure() first")
	}

	var err error
	db, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// Recorders write from loader goroutines; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	query := `
	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		loader_id TEXT,
		url TEXT NOT NULL,
		url_hash TEXT,
		status TEXT NOT NULL,
		loaded INTEGER,
		total INTEGER,
		http_status INTEGER,
		error_code INTEGER,
		error TEXT,
		kind TEXT,
		mime TEXT,
		started_at INTEGER,
		finished_at INTEGER,
		elapsed INTEGER
	);

	CREATE INDEX IF NOT EXISTS transfers_url_hash ON transfers(url_hash);
	`
	if _, err := db.Exec(query); err != nil {
		_ = db.Close()
		db = nil
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// CloseDB closes the database connection. A later call reopens it.
func CloseDB() {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		_ = db.Close()
		db = nil
	}
}

// GetDB returns the database instance, initializing it if necessary.
func GetDB() (*sql.DB, error) {
	dbMu.Lock()
	d := db
	dbMu.Unlock()
	if d != nil {
		return d, nil
	}
	if err := initDB(); err != nil {
		return nil, err
	}
	dbMu.Lock()
	defer dbMu.Unlock()
	return db, nil
}

func getDBHelper() *sql.DB {
	d, err := GetDB()
	if err != nil {
		utils.Debug("History DB Error: %v", err)
		return nil
	}
	return d
}

func withTx(fn func(*sql.Tx) error) error {
	d := getDBHelper()
	if d == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := d.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
