package repositories

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations
var migrationsFS embed.FS

// migrations returns the SQL files for dialect in lexical order.
func migrations(dialect string) ([]string, error) {
	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		b, err := fs.ReadFile(migrationsFS, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", entry.Name(), err)
		}
		out = append(out, string(b))
	}
	return out, nil
}
