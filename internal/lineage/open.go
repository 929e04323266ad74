package lineage

import "fmt"

// Open returns an initialized store for driver "memory" (or "") or "kuzu".
// An empty path with kuzu opens an in-memory database.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemStore(), nil
	case "kuzu":
		return openKuzuStore(path)
	}
	return nil, fmt.Errorf("lineage: unknown driver %q", driver)
}
