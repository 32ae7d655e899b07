package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"xpromo/pkg/account"
	"xpromo/pkg/quota"
)

// accountsCmd represents the accounts command
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage the bot account pool",
	Long: `Manage the pool of credentialed bot accounts.

Accounts are imported from a CSV file produced by your billing/export
process. Importing the same account again refreshes its credentials and
role without touching its usage counters or quota locks.`,
}

// accountsImportCmd represents the accounts import command
var accountsImportCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Import or refresh accounts from a CSV file",
	Long: `Import bot accounts from a CSV file.

The file must have a header row. Recognized columns:
  bot_id (required), role, plan, api_key, api_secret, bearer_token,
  access_token, access_token_secret, monthly_reset

role defaults to "all"; monthly_reset accepts RFC3339 or YYYY-MM-DD.`,
	Example: `  xpromo accounts import bots.csv`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, db, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()

		store, err := account.NewStore(db)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		n, err := account.ImportCSV(context.Background(), store, f)
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d account(s)\n", n)
		return nil
	},
}

// accountsListCmd represents the accounts list command
var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with usage and lock state",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, db, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()

		store, err := account.NewStore(db)
		if err != nil {
			return err
		}

		accounts, err := store.FindAll(context.Background())
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts imported yet")
			return nil
		}

		now := time.Now().UTC()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BOT ID\tROLE\tPLAN\tFETCHES\tREPLIES\tFETCH LOCK\tREPLY LOCK")
		for i := range accounts {
			a := &accounts[i]
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				a.BotID, a.Role, a.Plan, a.FetchCount, a.ReplyCount,
				lockStatus(a, quota.Fetch, now), lockStatus(a, quota.Reply, now))
		}
		return w.Flush()
	},
}

func lockStatus(a *account.Account, op quota.OpClass, now time.Time) string {
	until, ok := a.LockedUntil(op)
	if !ok || !now.Before(until) {
		return "-"
	}
	return "until " + until.Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsImportCmd)
	accountsCmd.AddCommand(accountsListCmd)
}
