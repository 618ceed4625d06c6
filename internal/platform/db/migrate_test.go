package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations_ParsesAndSorts(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"010_chat_indexes.sql": "SELECT 10;",
		"002_availability.sql": "SELECT 2;",
		"001_users.sql":        "CREATE TABLE users (id UUID PRIMARY KEY);",
		"005_appointments.sql": "SELECT 5;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(migrations))
	}

	want := []int{1, 2, 5, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].Name != "001_users.sql" {
		t.Errorf("expected 001_users.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE users (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsUnversionedFiles(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_valid.sql":      "SELECT 1;",
		"readme.sql":         "-- no version",
		"notes.txt":          "not sql",
		"abc_invalid.sql":    "-- non-numeric",
		"002_also_valid.sql": "SELECT 2;",
	})
	if err := os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0755); err != nil {
		t.Fatal(err)
	}

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	_, err := NewMigrator(nil, filepath.Join(t.TempDir(), "nope")).LoadMigrations()
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestLoadMigrations_RepositorySchema(t *testing.T) {
	migrations, err := NewMigrator(nil, "../../../migrations").LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one migration in the repository")
	}
	if migrations[0].Version != 1 {
		t.Errorf("expected first version 1, got %d", migrations[0].Version)
	}

	all := ""
	for _, m := range migrations {
		all += m.SQL
	}
	for _, table := range []string{"users", "doctor_availability", "appointments", "chat_threads", "chat_messages"} {
		if !strings.Contains(all, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("expected schema to create table %s", table)
		}
	}
}
