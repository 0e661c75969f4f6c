package config

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/xlttj/kportfwd/pkg/logging"

	_ "modernc.org/sqlite"
)

// SQLiteCatalogStore keeps catalog entries in a SQLite database. It is the
// write side used by `catalog import`; sessions only ever see the immutable
// Catalog produced by Snapshot.
type SQLiteCatalogStore struct {
	db     *sql.DB
	mutex  sync.RWMutex
	dbPath string
}

// OpenSQLiteCatalogStore opens (creating if needed) the database at path.
func OpenSQLiteCatalogStore(path string) (*SQLiteCatalogStore, error) {
	dbPath, err := expandHomeDir(path)
	if err != nil {
		return nil, err
	}
	if err := ensureConfigDir(dbPath, 0700); err != nil {
		return nil, err
	}

	// Attempt to set restrictive permissions on first creation
	if _, statErr := os.Stat(dbPath); os.IsNotExist(statErr) {
		f, ferr := os.OpenFile(dbPath, os.O_CREATE|os.O_RDONLY, 0600)
		if ferr == nil {
			_ = f.Close()
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteCatalogStore{db: db, dbPath: dbPath}
	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.LogDebug("SQLite catalog store opened at: %s", dbPath)
	return store, nil
}

func (cs *SQLiteCatalogStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS services (
		name TEXT PRIMARY KEY,
		namespace TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		object TEXT NOT NULL DEFAULT '',
		port TEXT NOT NULL DEFAULT '',
		service_port TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_services_namespace ON services(namespace);
	`
	if _, err := cs.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (cs *SQLiteCatalogStore) Close() error {
	if cs.db != nil {
		return cs.db.Close()
	}
	return nil
}

// Put inserts or replaces the given descriptions in one transaction.
func (cs *SQLiteCatalogStore) Put(services ...ServiceDescription) error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	tx, err := cs.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO services (name, namespace, kind, object, port, service_port)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for _, svc := range services {
		if svc.Name == "" {
			return fmt.Errorf("service with empty name cannot be stored")
		}
		if _, err := tx.Exec(query, svc.Name, svc.Namespace, svc.Kind, svc.Object, string(svc.Port), string(svc.ServicePort)); err != nil {
			return fmt.Errorf("failed to store service %s: %w", svc.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	logging.LogDebug("Stored %d services in %s", len(services), cs.dbPath)
	return nil
}

// Delete removes a service by name.
func (cs *SQLiteCatalogStore) Delete(name string) error {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	result, err := cs.db.Exec("DELETE FROM services WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &InvalidServiceError{Service: name, Reason: "not found in catalog"}
	}
	return nil
}

// Snapshot reads every row into an immutable Catalog.
func (cs *SQLiteCatalogStore) Snapshot() (*Catalog, error) {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	rows, err := cs.db.Query(`SELECT name, namespace, kind, object, port, service_port FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	services := make(map[string]ServiceDescription)
	for rows.Next() {
		var svc ServiceDescription
		var port, servicePort string
		if err := rows.Scan(&svc.Name, &svc.Namespace, &svc.Kind, &svc.Object, &port, &servicePort); err != nil {
			logging.LogError("Failed to scan service row: %v", err)
			continue
		}
		svc.Port = Port(port)
		svc.ServicePort = Port(servicePort)
		services[svc.Name] = svc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate services: %w", err)
	}

	cat := NewCatalog(services)
	cat.source = cs.dbPath
	return cat, nil
}

// loadSQLiteCatalog snapshots the database at path. A missing database is an
// empty catalog and is not created.
func loadSQLiteCatalog(path string) (*Catalog, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logging.LogDebug("Catalog database %s does not exist, using empty catalog", path)
		return NewCatalog(nil), nil
	}
	store, err := OpenSQLiteCatalogStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Snapshot()
}
