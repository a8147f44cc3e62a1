// Package commands implements the forgectl subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"spritegen/internal/adapter/repo"
	"spritegen/internal/domain"
	"spritegen/internal/infra"
)

// AppContext holds the connections a command needs.
type AppContext struct {
	DatabaseURL string
	Pool        *pgxpool.Pool
	Ledger      *repo.LedgerPG
	Entities    *repo.EntityStorePG
}

// loadDatabaseURL reads DATABASE_URL after loading envFile when it exists.
func loadDatabaseURL(envFile string) (string, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return "", fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		return "", errors.New("DATABASE_URL is required")
	}
	return dsn, nil
}

// NewAppContext connects to the database named by the environment.
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	dsn, err := loadDatabaseURL(envFile)
	if err != nil {
		return nil, err
	}
	pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: dsn})
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger("cli", os.Getenv("LOG_LEVEL")).With().Str("cmd", "forgectl").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	return &AppContext{
		DatabaseURL: dsn,
		Pool:        pool,
		Ledger:      repo.NewLedger(runner, startingCredits()),
		Entities:    repo.NewEntityStore(runner),
	}, nil
}

// Close releases the pool.
func (a *AppContext) Close() {
	if a != nil && a.Pool != nil {
		a.Pool.Close()
	}
}

func startingCredits() int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv("STARTING_CREDITS"))); err == nil && n >= 0 {
		return n
	}
	return domain.DefaultStartingBalance
}
