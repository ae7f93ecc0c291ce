package exec

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// Checker runs a static-analysis binary over a code payload and returns its
// diagnostics output. Unlike the Bridge it has no streaming or pty concerns:
// the checker runs to completion and its stdout is the whole result.
type Checker struct {
	Log *zap.SugaredLogger

	// Bin is the checker binary, invoked with Args followed by the unit
	// file path.
	Bin  string
	Args []string
	// UnitSuffix is the file suffix for materialized units, e.g. ".py".
	UnitSuffix string
	// WorkDir is where unit files are written. Must exist.
	WorkDir string
}

// Check materializes code as a unit file, runs the checker on it, and
// returns the checker's stdout. Checkers conventionally exit non-zero when
// they find problems, so a non-zero exit with output is not an error; an
// error is returned only when the checker produced nothing to report. The
// unit file is removed on every path.
func (c *Checker) Check(ctx context.Context, code string) ([]byte, error) {
	u, err := writeUnit(c.WorkDir, c.UnitSuffix, code)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := u.remove(); err != nil {
			c.Log.Debugf("error removing unit file: %s", err)
		}
	}()

	cmd := exec.CommandContext(ctx, c.Bin, append(append([]string{}, c.Args...), u.path)...)
	out, err := cmd.Output()
	c.Log.Debugf("checker %s produced %d bytes", c.Bin, len(out))
	if len(out) > 0 {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("running checker: %w", err)
	}
	return nil, nil
}
