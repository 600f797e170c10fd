package state

import (
	"strings"
	"testing"
)

func TestPostgresFillFromEnv(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGUSER", "ewc")
	t.Setenv("PGPASSWORD", "hunter2")
	t.Setenv("PGDATABASE", "checkpoints")

	var cfg PostgresConfig
	cfg.fillFromEnv()

	if cfg.Host != "db.internal" {
		t.Errorf("Host = %q, want db.internal", cfg.Host)
	}
	if cfg.Port != 5432 {
		t.Errorf("Port = %d, want 5432", cfg.Port)
	}
	if cfg.User != "ewc" {
		t.Errorf("User = %q, want ewc", cfg.User)
	}
	if cfg.Password != "hunter2" {
		t.Errorf("Password = %q, want hunter2", cfg.Password)
	}
	if cfg.Database != "checkpoints" {
		t.Errorf("Database = %q, want checkpoints", cfg.Database)
	}
}

func TestPostgresFillFromEnvKeepsExplicitValues(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGUSER", "ewc")

	cfg := PostgresConfig{Host: "explicit-host", Port: 5433, User: "explicit-user"}
	cfg.fillFromEnv()

	if cfg.Host != "explicit-host" {
		t.Errorf("Host = %q, explicit value must win over env", cfg.Host)
	}
	if cfg.Port != 5433 {
		t.Errorf("Port = %d, explicit value must win over the default", cfg.Port)
	}
	if cfg.User != "explicit-user" {
		t.Errorf("User = %q, explicit value must win over env", cfg.User)
	}
}

func TestPostgresFillFromEnvDefaults(t *testing.T) {
	t.Setenv("PGHOST", "")
	t.Setenv("PGUSER", "")
	t.Setenv("PGPASSWORD", "")
	t.Setenv("PGDATABASE", "")

	var cfg PostgresConfig
	cfg.fillFromEnv()

	if cfg.Host != "localhost" {
		t.Errorf("Host = %q, want localhost", cfg.Host)
	}
	if cfg.User != "postgres" {
		t.Errorf("User = %q, want postgres", cfg.User)
	}
}

func TestPostgresConnString(t *testing.T) {
	cfg := PostgresConfig{Host: "h", Port: 5432, User: "u", Database: "d"}

	conn := cfg.connString()
	if conn != "host=h port=5432 user=u dbname=d sslmode=disable" {
		t.Errorf("unexpected connection string %q", conn)
	}
	if strings.Contains(conn, "password") {
		t.Error("empty password must be omitted")
	}

	cfg.SSL = true
	cfg.Password = "s3cret"
	conn = cfg.connString()
	if !strings.Contains(conn, "sslmode=require") {
		t.Errorf("SSL flag not honored: %q", conn)
	}
	if !strings.Contains(conn, "password=s3cret") {
		t.Errorf("password missing: %q", conn)
	}
}
