package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	dbstore "github.com/soaringjerry/intake/internal/db"
	"github.com/soaringjerry/intake/internal/services"
)

// openDatabase creates the parent directory, opens SQLite and applies pending
// migrations.
func openDatabase(ctx context.Context, driver, path, migrationsDir string, logger *log.Logger) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := dbstore.Open(driver, path)
	if err != nil {
		return nil, err
	}
	applied, err := dbstore.RunMigrations(ctx, db, migrationsDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		logger.Printf("applied migration %s", name)
	}
	return db, nil
}

// warnOnOverlappingCycles logs when more than one cycle is open right now.
// The store does not prevent overlapping windows.
func warnOnOverlappingCycles(ctx context.Context, store services.CycleStore, logger *log.Logger) {
	cycles, err := store.ListCycles(ctx)
	if err != nil {
		logger.Printf("list cycles: %v", err)
		return
	}
	if err := services.CheckSingleActive(cycles, time.Now().UTC()); err != nil {
		logger.Printf("warning: %v", err)
	}
}
