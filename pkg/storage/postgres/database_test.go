package postgres

import (
	"strings"
	"testing"

	"cvdcollector/config"
)

// Bootstrap must not connect to the database it is about to create.
func TestMaintenanceDSNTargetsServerDatabase(t *testing.T) {
	cfg := config.PostgresConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "collector",
		Password: "pw",
		DBName:   "cvdcollector",
		SSLMode:  "disable",
	}

	dsn := maintenanceDSN(cfg, "dev")
	if !strings.Contains(dsn, "dbname=postgres") {
		t.Errorf("dsn = %q, want maintenance dbname=postgres", dsn)
	}
	if strings.Contains(dsn, "dbname=cvdcollector") {
		t.Errorf("dsn = %q must not target the archive database", dsn)
	}
	if !strings.Contains(dsn, "host=db.example.com") || !strings.Contains(dsn, "user=collector") {
		t.Errorf("dsn = %q lost connection settings", dsn)
	}

	// The caller's config is passed by value and stays untouched.
	if cfg.DBName != "cvdcollector" {
		t.Errorf("cfg.DBName mutated to %s", cfg.DBName)
	}
}
