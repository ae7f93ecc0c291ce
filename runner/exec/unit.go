package exec

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/xid"
)

// unit is the materialized, interpreter-loadable form of one submitted code
// payload. Every run gets its own uniquely-named file so that concurrent
// connections sharing one server can never clobber each other's source.
type unit struct {
	path string
}

// writeUnit materializes code as a file under dir with the given suffix.
// The file must exist in full before the interpreter is spawned.
func writeUnit(dir, suffix, code string) (*unit, error) {
	path := filepath.Join(dir, xid.New().String()+suffix)
	err := os.WriteFile(path, []byte(code), 0644)
	if err != nil {
		return nil, fmt.Errorf("writing unit file: %w", err)
	}
	return &unit{path: path}, nil
}

// remove deletes the unit file. Best-effort: the run already happened, so a
// failure here is reported but never affects the outcome of the run.
func (u *unit) remove() error {
	return os.Remove(u.path)
}
