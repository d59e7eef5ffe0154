// Package main implements the go-template-script CLI (gts).
// It renders template documents and provides debugging and analysis tools.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/l3aro/go-template-script/cmd/gts/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.SetVersionTemplate("gts version {{.Version}}\n")
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
