package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ImportDir validates every *.json test definition in dir and upserts it into
// store. Files are processed in name order; the first bad file aborts.
func ImportDir(ctx context.Context, store Store, dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)
	for i, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			return i, err
		}
		var t Test
		if err := json.Unmarshal(raw, &t); err != nil {
			return i, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
		if err := Validate(&t); err != nil {
			return i, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
		if err := store.PutTest(ctx, t); err != nil {
			return i, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
	}
	return len(files), nil
}
