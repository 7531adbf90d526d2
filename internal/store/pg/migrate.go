package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

// RunMigrations ejecuta todos los *.sql del FS dado en orden lexicográfico.
// Las migraciones son idempotentes (IF NOT EXISTS), así que correrlas en cada
// arranque es seguro.
func (s *Store) RunMigrations(ctx context.Context, fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("pg: read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, dir+"/"+e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return fmt.Errorf("pg: read %s: %w", f, err)
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("pg: exec %s: %w", f, err)
		}
	}
	return nil
}
