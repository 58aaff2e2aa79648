package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Flarenzy/dns-zonegen/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, os.Stdout); err != nil {
		log.Fatalf("zonegen: %v", err)
	}
}
