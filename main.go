package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"casino/cmd"
	"casino/database"

	log "github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if len(os.Args) > 1 {
		if err := handleCommand(ctx, os.Args[1], os.Args[2:]); err != nil {
			log.WithError(err).Fatal("Command failed")
		}
		return
	}

	if err := cmd.Run(ctx); err != nil {
		log.WithError(err).Fatal("Application error")
	}
}

func handleCommand(ctx context.Context, name string, args []string) error {
	switch name {
	case "migrate":
		return handleMigrationCommand(args)
	case "set-balance":
		if len(args) < 3 {
			return fmt.Errorf("usage: casino set-balance <account-id> <balance> <reason...>")
		}
		return cmd.SetBalance(ctx, os.Stdout, args[0], args[1], strings.Join(args[2:], " "))
	case "verify-round":
		if len(args) != 1 {
			return fmt.Errorf("usage: casino verify-round <round-id>")
		}
		roundID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid round id %q: %w", args[0], err)
		}
		return cmd.VerifyRound(ctx, os.Stdout, roundID)
	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}

func handleMigrationCommand(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: casino migrate [up|down|status] [args...]")
	}

	switch args[0] {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(args) > 1 {
			steps = args[1]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", args[0])
	}
}
