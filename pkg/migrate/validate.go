package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	// Up sections may only add tables and indexes.
	destructiveRe = regexp.MustCompile(`(?i)\b(DROP\s+(TABLE|INDEX|COLUMN)|ALTER\s+TABLE\s+\w+\s+(DROP|RENAME))\b`)
)

// ValidateDir validates migration filenames + basic SQL headers on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	_, err := ValidateFS(os.DirFS(dir), ".")
	return err
}

// ValidateFS validates the migrations in dir of fsys and returns the newest
// version found.
func ValidateFS(fsys fs.FS, dir string) (int64, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename
	var newest int64

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return 0, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return 0, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name
		if v, _ := strconv.ParseInt(version, 10, 64); v > newest {
			newest = v
		}

		b, err := fs.ReadFile(fsys, joinPath(dir, name))
		if err != nil {
			return 0, fmt.Errorf("read file %q: %w", name, err)
		}

		txt := string(b)
		upIdx := strings.Index(txt, "-- +goose Up")
		if upIdx < 0 {
			return 0, fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
		}
		downIdx := strings.Index(txt, "-- +goose Down")
		if downIdx < 0 {
			return 0, fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
		}
		if downIdx > upIdx && destructiveRe.MatchString(txt[upIdx:downIdx]) {
			return 0, fmt.Errorf("migration %q is not additive", name)
		}
	}

	return newest, nil
}

func joinPath(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

// ValidateEmbedded validates the compiled-in migrations and returns the newest
// version.
func ValidateEmbedded() (int64, error) {
	return ValidateFS(embedded, embeddedDir)
}
