package cli

import (
	"context"
	"io"
)

// Run parses and executes args (excluding argv[0]), writing human output to
// stdout. It is the entrypoint main delegates to and the surface black-box
// tests drive.
func Run(ctx context.Context, args []string, stdout io.Writer) (Result, error) {
	inv, err := ParseInvocation(args)
	if err != nil {
		return Result{ExitCode: ExitCodeFor(err)}, err
	}
	return Execute(ctx, inv, stdout)
}
