package database

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"
)

// validEntityKinds must match the ENUM on cm360_tags.entity_kind and the
// tracking.EntityKind constants.
var validEntityKinds = map[string]bool{
	"placement":      true,
	"creative":       true,
	"tactic_metrics": true,
}

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	dir := filepath.Join(filepath.Dir(thisFile), "..", "..", "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// TestMigrations_EntityKindEnum checks that the cm360_tags ENUM lists
// exactly the entity kinds the tracking plugin writes.
func TestMigrations_EntityKindEnum(t *testing.T) {
	dir := migrationsDir(t)
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing migration files: %v", err)
	}

	enumPattern := regexp.MustCompile(`entity_kind\s+ENUM\(([^)]*)\)`)
	valuePattern := regexp.MustCompile(`'([^']+)'`)

	found := false
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f, err)
		}
		m := enumPattern.FindStringSubmatch(string(data))
		if m == nil {
			continue
		}
		found = true
		seen := map[string]bool{}
		for _, v := range valuePattern.FindAllStringSubmatch(m[1], -1) {
			if !validEntityKinds[v[1]] {
				t.Errorf("%s: unexpected entity kind %q", filepath.Base(f), v[1])
			}
			seen[v[1]] = true
		}
		for kind := range validEntityKinds {
			if !seen[kind] {
				t.Errorf("%s: entity kind %q missing from ENUM", filepath.Base(f), kind)
			}
		}
	}
	if !found {
		t.Fatal("no migration defines cm360_tags.entity_kind")
	}
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing up files: %v", err)
	}
	if len(upFiles) == 0 {
		t.Fatal("no migration files found")
	}

	for _, up := range upFiles {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}
