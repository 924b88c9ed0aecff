package postgres

import (
	"database/sql"
	"fmt"

	"cvdcollector/config"

	_ "github.com/lib/pq"
)

// CreateDatabase connects to the postgres server and creates the archive
// database if it doesn't exist. The archive DSN cannot be used here: its
// dbname is the very database being created.
func CreateDatabase(cfg config.PostgresConfig, env string) error {
	db, err := sql.Open("postgres", maintenanceDSN(cfg, env))
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer db.Close()

	// Check if database exists
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1);`
	if err := db.QueryRow(query, cfg.DBName).Scan(&exists); err != nil {
		return fmt.Errorf("check db exists failed: %w", err)
	}

	if exists {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.DBName))
	if err != nil {
		return fmt.Errorf("create db failed: %w", err)
	}

	return nil
}

// maintenanceDSN targets the server's always-present "postgres" database.
func maintenanceDSN(cfg config.PostgresConfig, env string) string {
	cfg.DBName = "postgres"
	return cfg.DSN(env)
}
