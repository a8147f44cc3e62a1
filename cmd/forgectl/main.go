package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"spritegen/cmd/forgectl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "path of the env file to load",
		Value: ".env",
	}
	userFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "user",
			Usage:    "user id",
			Required: true,
		}
	}

	app := &cli.Command{
		Name:  "forgectl",
		Usage: "operate the spritegen database: migrations, credits and test entities",
		Flags: []cli.Flag{envFlag},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Commands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply every pending migration",
						Action: commands.MigrateUpAction,
					},
					{
						Name:  "down",
						Usage: "roll back migrations",
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "steps",
								Usage: "number of migrations to roll back",
								Value: 1,
							},
						},
						Action: commands.MigrateDownAction,
					},
					{
						Name:   "version",
						Usage:  "print the current schema version",
						Action: commands.MigrateVersionAction,
					},
				},
			},
			{
				Name:  "credits",
				Usage: "inspect and adjust credit balances",
				Commands: []*cli.Command{
					{
						Name:   "balance",
						Usage:  "print a user's balance",
						Flags:  []cli.Flag{userFlag()},
						Action: commands.CreditsBalanceAction,
					},
					{
						Name:  "grant",
						Usage: "fulfill a purchase for a user",
						Flags: []cli.Flag{
							userFlag(),
							&cli.StringFlag{
								Name:  "pack",
								Usage: "credit pack id (starter, standard, pro, studio)",
							},
							&cli.IntFlag{
								Name:  "amount",
								Usage: "explicit credit amount, used when --pack is empty",
							},
							&cli.StringFlag{
								Name:     "payment",
								Usage:    "payment id; granting the same id twice is a no-op",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "description",
								Usage: "ledger description",
							},
						},
						Action: commands.CreditsGrantAction,
					},
					{
						Name:  "history",
						Usage: "list a user's recent transactions",
						Flags: []cli.Flag{
							userFlag(),
							&cli.IntFlag{
								Name:  "limit",
								Usage: "maximum rows",
								Value: 20,
							},
						},
						Action: commands.CreditsHistoryAction,
					},
				},
			},
			{
				Name:  "character",
				Usage: "manage characters",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "register a character with an uploaded source image",
						Flags: []cli.Flag{
							userFlag(),
							&cli.StringFlag{Name: "name", Usage: "display name", Required: true},
							&cli.StringFlag{Name: "image", Usage: "storage key of the source image", Required: true},
							&cli.StringFlag{Name: "description", Usage: "free text description"},
							&cli.StringFlag{Name: "animal", Usage: "animal type"},
							&cli.StringFlag{Name: "view", Usage: "side-scroller or top-down", Value: "side-scroller"},
							&cli.StringFlag{Name: "style", Usage: "style pack"},
						},
						Action: commands.CharacterAddAction,
					},
				},
			},
			{
				Name:  "scene",
				Usage: "manage scenes",
				Commands: []*cli.Command{
					{
						Name:  "add",
						Usage: "register a scene",
						Flags: []cli.Flag{
							userFlag(),
							&cli.StringFlag{Name: "name", Usage: "display name", Required: true},
							&cli.StringFlag{Name: "image", Usage: "storage key of the source image, needed for depth-split"},
							&cli.StringFlag{Name: "description", Usage: "free text description"},
							&cli.StringFlag{Name: "style", Usage: "style pack"},
						},
						Action: commands.SceneAddAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
