package storage

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/MYH-Projet/dirhamy/internal/log"
)

//go:embed migrations/*.sql
var schema embed.FS

// RunMigrations applies every pending schema migration to the ledger database
// at dbPath. The migrator opens and closes its own connection.
func RunMigrations(dbPath string) (err error) {
	src, err := iofs.New(schema, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+dbPath)
	if err != nil {
		return fmt.Errorf("open migrator for %s: %w", dbPath, err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	log.Default(log.ComponentStorage).Debug("Schema up to date", "version", version, "dirty", dirty)
	return nil
}
