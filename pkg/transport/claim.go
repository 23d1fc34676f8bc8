package transport

import (
	"path/filepath"

	"github.com/gregLibert/uicc/internal/syncutil"
)

// claims tracks the devices owned by an open transport in this process.
var claims = struct {
	mu    syncutil.Mutex
	owned map[string]bool
}{owned: make(map[string]bool)}

func claimKey(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// claim marks path as owned. It fails with ErrPortInUse when another transport holds it.
func claim(path string) (release func(), err error) {
	key := claimKey(path)

	claims.mu.Lock()
	defer claims.mu.Unlock()

	if claims.owned[key] {
		return nil, NewError("claim", path, ErrPortInUse)
	}
	claims.owned[key] = true

	return func() {
		claims.mu.Lock()
		delete(claims.owned, key)
		claims.mu.Unlock()
	}, nil
}
