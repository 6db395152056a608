package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"casino/config"
	"casino/database"
	"casino/events"
	"casino/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// withServices opens the database and wires the domain services for a
// one-shot operator command. Redis, NATS and metrics stay off.
func withServices(ctx context.Context, fn func(svc *Services) error) error {
	cfg := config.Get()
	ConfigureLogging(cfg)

	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	svc, err := NewServices(cfg, repository.NewUnitOfWorkFactory(db, events.NewBus()), nil, nil)
	if err != nil {
		return err
	}
	return fn(svc)
}

// SetBalance sets an account balance to target, recording an admin entry
func SetBalance(ctx context.Context, out io.Writer, rawAccountID, rawTarget, reason string) error {
	accountID, err := uuid.Parse(rawAccountID)
	if err != nil {
		return fmt.Errorf("invalid account id %q: %w", rawAccountID, err)
	}
	target, err := decimal.NewFromString(rawTarget)
	if err != nil {
		return fmt.Errorf("invalid balance %q: %w", rawTarget, err)
	}

	return withServices(ctx, func(svc *Services) error {
		balance, err := svc.Ledger.SetBalance(ctx, accountID, target, reason)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"account_id": accountID,
			"balance":    balance,
			"reason":     reason,
		}).Info("Balance set by operator")
		_, err = fmt.Fprintf(out, "%s %s\n", accountID, balance.StringFixed(2))
		return err
	})
}

// VerifyRound recomputes a round from its revealed seed and prints the
// verification as JSON. A round that does not verify is an error.
func VerifyRound(ctx context.Context, out io.Writer, roundID int64) error {
	return withServices(ctx, func(svc *Services) error {
		v, err := svc.Engine.VerifyRound(ctx, roundID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
		if !v.Valid() {
			return fmt.Errorf("round %d failed verification", roundID)
		}
		return nil
	})
}
