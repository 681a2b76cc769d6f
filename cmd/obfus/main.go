// Command obfus builds a GCC optimization matrix, strips binaries in batch,
// and reports what each variant did to binary size and symbol content.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ajaymas/LLM4Obfus/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := cli.Run(ctx, os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "obfus:", err)
	}
	os.Exit(res.ExitCode)
}
