package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrations(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test file %s: %v", name, err)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_core.sql":     "CREATE TABLE patients (id UUID PRIMARY KEY);",
		"002_packs.sql":    "CREATE TABLE credit_packs (id UUID PRIMARY KEY);",
		"003_settings.sql": "CREATE TABLE configuration (key TEXT PRIMARY KEY);",
	})

	migrator := NewMigrator(nil, dir)
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 {
		t.Errorf("expected version 1, got %d", migrations[0].Version)
	}
	if migrations[0].Name != "001_core.sql" {
		t.Errorf("expected name 001_core.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE patients (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"010_late.sql":   "SELECT 10;",
		"002_second.sql": "SELECT 2;",
		"001_first.sql":  "SELECT 1;",
		"005_middle.sql": "SELECT 5;",
	})

	migrator := NewMigrator(nil, dir)
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []int{1, 2, 5, 10}
	if len(migrations) != len(expected) {
		t.Fatalf("expected %d migrations, got %d", len(expected), len(migrations))
	}
	for i, version := range expected {
		if migrations[i].Version != version {
			t.Errorf("migration[%d]: expected version %d, got %d", i, version, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_SkipsInvalidFilenames(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_valid.sql":   "SELECT 1;",
		"readme.sql":      "-- no version prefix",
		"notes.txt":       "not sql",
		"abc_invalid.sql": "-- non-numeric prefix",
	})

	migrator := NewMigrator(nil, dir)
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 valid migration, got %d", len(migrations))
	}
	if migrations[0].Name != "001_valid.sql" {
		t.Errorf("unexpected migration %s", migrations[0].Name)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrator := NewMigrator(nil, t.TempDir())
	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	migrator := NewMigrator(nil, "/nonexistent/migrations")
	if _, err := migrator.LoadMigrations(); err == nil {
		t.Error("expected error for missing directory")
	}
}
