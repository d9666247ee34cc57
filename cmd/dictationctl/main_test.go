package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"medical-dictation-server/internal/models"
)

func TestCreateSuperuserIsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "admin.db")
	args := []string{"create-superuser", "--driver", "sqlite", "--dsn", dsn,
		"--email", "root@example.test", "--password", "s3cretpass", "--name", "Root"}

	var out bytes.Buffer
	if err := run(args, &out); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !strings.Contains(out.String(), "created superuser") {
		t.Fatalf("output: %q", out.String())
	}

	out.Reset()
	if err := run(args, &out); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Fatalf("output: %q", out.String())
	}

	db, err := models.Open(models.DatabaseConfig{Driver: "sqlite", DSN: dsn, LogLevel: "silent"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var user models.User
	if err := db.First(&user, "email = ?", "root@example.test").Error; err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !user.Privileged() || !user.IsActive || !user.CheckPassword("s3cretpass") {
		t.Fatalf("superuser: %+v", user)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	if err := run(nil, &out); err == nil {
		t.Fatalf("missing subcommand accepted")
	}
	if err := run([]string{"explode"}, &out); err == nil {
		t.Fatalf("unknown subcommand accepted")
	}
	if err := run([]string{"create-superuser", "--driver", "sqlite", "--dsn", ":memory:", "--email", "a@b.c", "--password", "short"}, &out); err == nil {
		t.Fatalf("short password accepted")
	}
}

func TestMigrate(t *testing.T) {
	var out bytes.Buffer
	dsn := filepath.Join(t.TempDir(), "migrate.db")
	if err := run([]string{"migrate", "--driver", "sqlite", "--dsn", dsn}, &out); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out.String(), "schema up to date") {
		t.Fatalf("output: %q", out.String())
	}
}
