package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var migrationName = regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

func TestMigrationFilesComeInUpDownPairs(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	seen := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", entry.Name())
		}
		version, direction := match[1], match[2]
		if seen[version] == nil {
			seen[version] = map[string]bool{}
		}
		if seen[version][direction] {
			t.Fatalf("duplicate %s migration for version %s", direction, version)
		}
		seen[version][direction] = true
	}

	if len(seen) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, directions := range seen {
		if !directions["up"] || !directions["down"] {
			t.Fatalf("version %s is missing its up or down file", version)
		}
	}
}

func TestInitialMigrationCreatesCoreTables(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	sql := string(raw)
	for _, table := range []string{"users", "refresh_sessions", "pages", "page_versions", "attachments"} {
		if !strings.Contains(sql, "CREATE TABLE "+table) {
			t.Errorf("initial migration does not create table %s", table)
		}
	}
}
