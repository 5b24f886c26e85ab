// Package store provides the one factory function that turns a
// config.Config into a recorder.Interface: a pure function at the
// boundary, not a CLI.
package store

import (
	"fmt"

	"github.com/quintans/faults"

	"github.com/gregbrowndev/eventsourcing/config"
	"github.com/gregbrowndev/eventsourcing/recorder"
	"github.com/gregbrowndev/eventsourcing/store/memory"
	"github.com/gregbrowndev/eventsourcing/store/postgres"
	"github.com/gregbrowndev/eventsourcing/store/sqlite"
)

// Open builds the recorder.Interface named by cfg.InfrastructureFactory.
func Open(cfg config.Config) (recorder.Interface, error) {
	switch cfg.InfrastructureFactory {
	case config.FactoryMemory, "":
		return memory.New(), nil
	case config.FactorySQLite:
		return sqlite.New(cfg.SQLiteDBName)
	case config.FactoryPostgres:
		sslMode := cfg.PostgresSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dburl := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDatabase, sslMode)
		return postgres.New(dburl)
	default:
		return nil, faults.Errorf("unknown infrastructure factory %q", cfg.InfrastructureFactory)
	}
}
