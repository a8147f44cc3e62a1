package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"spritegen/internal/infra"
)

// MigrateUpAction applies every pending migration.
func MigrateUpAction(ctx context.Context, cmd *cli.Command) error {
	dsn, err := loadDatabaseURL(cmd.String("env"))
	if err != nil {
		return err
	}
	if err := infra.RunMigrations(dsn); err != nil {
		return err
	}
	return printVersion(cmd, dsn)
}

// MigrateDownAction rolls back --steps migrations.
func MigrateDownAction(ctx context.Context, cmd *cli.Command) error {
	dsn, err := loadDatabaseURL(cmd.String("env"))
	if err != nil {
		return err
	}
	if err := infra.RollbackMigrations(dsn, cmd.Int("steps")); err != nil {
		return err
	}
	return printVersion(cmd, dsn)
}

// MigrateVersionAction prints the schema version.
func MigrateVersionAction(ctx context.Context, cmd *cli.Command) error {
	dsn, err := loadDatabaseURL(cmd.String("env"))
	if err != nil {
		return err
	}
	return printVersion(cmd, dsn)
}

func printVersion(cmd *cli.Command, dsn string) error {
	version, dirty, err := infra.MigrationVersion(dsn)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.Root().Writer, "schema version %d (%s)\n", version, state)
	return nil
}
