package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iscoin/purchase/internal/interfaces/cli/migrate"
	"github.com/iscoin/purchase/internal/interfaces/cli/rates"
	"github.com/iscoin/purchase/internal/interfaces/cli/server"
	"github.com/iscoin/purchase/internal/interfaces/cli/worker"
	"github.com/iscoin/purchase/internal/shared/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "purchase",
		Short: "Token purchase service",
		Long: `Sells the token for BTC and EOS: issues payment addresses and memos, watches
both chains for payments and transfers the purchased tokens once paid.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		worker.NewCommand(),
		migrate.NewCommand(),
		rates.NewCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.String())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
