package mirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/klauern/plugin-publish/internal/logging"
)

// Rsync mirrors with `rsync -a --delete --delete-excluded`. Protected
// patterns become rsync protect filters so they survive the deletion pass.
type Rsync struct {
	// Binary is the rsync executable. Defaults to "rsync".
	Binary string
	Filter Filter
}

// Args returns the rsync argument list for mirroring src into dst.
func (r *Rsync) Args(src, dst string) []string {
	args := []string{"-a", "--delete", "--delete-excluded"}
	for _, p := range r.Filter.Protect {
		args = append(args, "--filter=P "+p, "--exclude="+p)
	}
	for _, p := range r.Filter.Exclude {
		args = append(args, "--exclude="+p)
	}
	return append(args, withSlash(src), withSlash(dst))
}

// Preview reports the changes Sync would make. It uses the native planner,
// which applies the same filter rules.
func (r *Rsync) Preview(ctx context.Context, src, dst string) (*Stats, error) {
	return (&Native{Filter: r.Filter}).Preview(ctx, src, dst)
}

// Sync runs rsync and returns the previewed changes.
func (r *Rsync) Sync(ctx context.Context, src, dst string) (*Stats, error) {
	stats, err := r.Preview(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return nil, fmt.Errorf("create %s: %w", dst, err)
	}

	bin := r.Binary
	if bin == "" {
		bin = "rsync"
	}
	args := r.Args(src, dst)

	// #nosec G204 - arguments are built from configuration, not a shell
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logging.WithContext(ctx).Debug("running rsync", logging.Operation(strings.Join(args, " ")))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("rsync failed: %w: %s", err, strings.ReplaceAll(strings.TrimSpace(out.String()), "\n", "; "))
	}
	return stats, nil
}

func withSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}
