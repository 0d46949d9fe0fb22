package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/immdipu/follower-detector/internal/build"
	"github.com/immdipu/follower-detector/internal/ledger"
)

// resolveDBPath returns the --db flag value or the default location.
func resolveDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	return ledger.DefaultDBPath()
}

// openStore opens the ledger for read-only commands. Migration chatter is
// discarded so command output stays clean.
func openStore() (*ledger.SQLStore, error) {
	path, err := resolveDBPath()
	if err != nil {
		return nil, err
	}

	store, err := ledger.NewSQLStore(path, build.NewTestLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return store, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
