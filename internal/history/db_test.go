package history

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	CloseDB()
	Configure(filepath.Join(t.TempDir(), "history.db"))
	if _, err := GetDB(); err != nil {
		t.Fatalf("GetDB failed: %v", err)
	}
	t.Cleanup(CloseDB)
}

func TestDBLifecycle(t *testing.T) {
	setupTestDB(t)

	d, err := GetDB()
	if err != nil {
		t.Fatalf("GetDB failed: %v", err)
	}
	d2, err := GetDB()
	if err != nil {
		t.Fatalf("GetDB 2 failed: %v", err)
	}
	if d != d2 {
		t.Error("GetDB should return the same instance")
	}

	CloseDB()
	if db != nil {
		t.Error("db variable should be nil after CloseDB")
	}

	d3, err := GetDB()
	if err != nil {
		t.Fatalf("Re-opening GetDB failed: %v", err)
	}
	if _, err := d3.Exec("SELECT * FROM transfers LIMIT 1"); err != nil {
		t.Errorf("Table 'transfers' check failed: %v", err)
	}
}

func TestGetDB_NotConfigured(t *testing.T) {
	CloseDB()
	dbMu.Lock()
	prevPath, prevConfigured := dbPath, configured
	dbPath, configured = "", false
	dbMu.Unlock()
	t.Cleanup(func() {
		dbMu.Lock()
		dbPath, configured = prevPath, prevConfigured
		dbMu.Unlock()
	})

	if _, err := GetDB(); err == nil {
		t.Fatal("expected error from unconfigured database")
	}
	if err := withTx(func(*sql.Tx) error { return nil }); err == nil {
		t.Fatal("expected withTx to fail without a database")
	}
}

func TestWithTx_Commit(t *testing.T) {
	setupTestDB(t)

	err := withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO transfers (id, url, status) VALUES (?, ?, ?)", "tx-test-1", "http://tx.com/1", "completed")
		return err
	})
	if err != nil {
		t.Fatalf("withTx failed: %v", err)
	}

	d, _ := GetDB()
	var url string
	if err := d.QueryRow("SELECT url FROM transfers WHERE id = ?", "tx-test-1").Scan(&url); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if url != "http://tx.com/1" {
		t.Errorf("Expected 'http://tx.com/1', got '%s'", url)
	}
}

func TestWithTx_Rollback(t *testing.T) {
	setupTestDB(t)

	expectedErr := fmt.Errorf("intentional error")
	err := withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO transfers (id, url, status) VALUES (?, ?, ?)", "tx-test-2", "http://tx.com/2", "failed"); err != nil {
			return err
		}
		return expectedErr
	})
	if err != expectedErr {
		t.Fatalf("Expected error %v, got %v", expectedErr, err)
	}

	d, _ := GetDB()
	var count int
	if err := d.QueryRow("SELECT count(*) FROM transfers WHERE id = ?", "tx-test-2").Scan(&count); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if count != 0 {
		t.Error("Transaction should have rolled back, but record found")
	}
}
