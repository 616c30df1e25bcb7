// Command lambder backs up tagged EC2 instances as images and prunes old backups.
//
// Commands: run (default), plan, schedule, history, version.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// set at build time with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(os.Stdout, os.Stderr))
	stop()
	os.Exit(code)
}
