package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"spritegen/internal/domain"
)

// CreditsBalanceAction prints the balance of --user.
func CreditsBalanceAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	balance, err := appCtx.Ledger.GetBalance(ctx, cmd.String("user"))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.Root().Writer, "%s: %d credits\n", cmd.String("user"), balance)
	return nil
}

// CreditsGrantAction fulfills a purchase. Re-running with the same
// payment id reports the existing fulfillment instead of crediting twice.
func CreditsGrantAction(ctx context.Context, cmd *cli.Command) error {
	amount, description, err := grantAmount(cmd.String("pack"), cmd.Int("amount"), cmd.String("description"))
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	res, err := appCtx.Ledger.Fulfill(ctx, cmd.String("user"), amount, cmd.String("payment"), description)
	if err != nil {
		return err
	}
	out := cmd.Root().Writer
	if res.AlreadyProcessed {
		fmt.Fprintf(out, "payment %s already fulfilled, balance %d\n", cmd.String("payment"), res.Balance)
		return nil
	}
	fmt.Fprintf(out, "granted %d credits, balance %d\n", amount, res.Balance)
	return nil
}

// CreditsHistoryAction prints recent transactions of --user.
func CreditsHistoryAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	txs, err := appCtx.Ledger.ListTransactions(ctx, cmd.String("user"), cmd.Int("limit"))
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Fprintln(cmd.Root().Writer, "no transactions")
		return nil
	}

	table := tablewriter.NewWriter(cmd.Root().Writer)
	table.Header("Created At", "Type", "Amount", "Balance", "Job", "Description")
	for _, tx := range txs {
		table.Append(
			tx.CreatedAt.Format(time.RFC3339),
			string(tx.Type),
			fmt.Sprintf("%+d", tx.Amount),
			fmt.Sprintf("%d", tx.BalanceAfter),
			tx.JobID,
			tx.Description,
		)
	}
	table.Render()
	return nil
}

// grantAmount resolves the credits to grant from a pack id or an explicit
// amount.
func grantAmount(pack string, amount int, description string) (int, string, error) {
	pack = strings.ToLower(strings.TrimSpace(pack))
	if pack != "" {
		p, ok := domain.CreditPacks[pack]
		if !ok {
			return 0, "", fmt.Errorf("unknown credit pack %q", pack)
		}
		if description == "" {
			description = "Credit pack: " + p.ID
		}
		return p.Credits, description, nil
	}
	if amount <= 0 {
		return 0, "", fmt.Errorf("either --pack or a positive --amount is required: %w", domain.ErrInvalidAmount)
	}
	if description == "" {
		description = "Manual credit grant"
	}
	return amount, description, nil
}
