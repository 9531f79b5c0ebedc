package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/wisp-renderer/wisp-installer/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cmd.Command().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
