package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/klauern/plugin-publish/internal/cli"
	"github.com/klauern/plugin-publish/internal/clierr"
	"github.com/klauern/plugin-publish/internal/ui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := cli.RunWithWriters(ctx, args, stdout, stderr)
	if err == nil {
		return 0
	}
	if ctx.Err() != nil && clierr.KindOf(err) != clierr.Canceled {
		err = clierr.Wrap(clierr.Canceled, err, "interrupted")
	}
	fmt.Fprintln(stderr, ui.StatusError(err.Error()))
	return 1
}
