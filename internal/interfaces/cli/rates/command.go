package rates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iscoin/purchase/internal/infrastructure/database"
	"github.com/iscoin/purchase/internal/infrastructure/exchangerate"
	"github.com/iscoin/purchase/internal/infrastructure/repository"
	"github.com/iscoin/purchase/internal/interfaces/cli/bootstrap"
	"github.com/iscoin/purchase/internal/shared/biztime"
)

var (
	env        string
	configPath string
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Manage exchange rates",
		Long: `Exchange rates price one token unit in a payment currency. A purchase in a
currency without a rate is rejected.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(
		&cobra.Command{
			Use:     "set CURRENCY RATE",
			Short:   "Create or replace the rate of a currency",
			Example: "  purchase rates set BTC 0.00000125",
			Args:    cobra.ExactArgs(2),
			RunE:    runSet,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List all exchange rates",
			Args:  cobra.NoArgs,
			RunE:  runList,
		},
	)

	return cmd
}

// rateCache is the part of the Redis rate cache the CLI needs.
type rateCache interface {
	Invalidate(ctx context.Context, currencyCode string) error
}

func runSet(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap.Init(bootstrap.ResolveEnv(env), configPath)
	if err != nil {
		return err
	}
	defer database.Close()

	repo := repository.NewExchangeRateRepository(database.Get())

	var cache rateCache
	redisClient, err := bootstrap.OpenRedis(cfg, log)
	if err != nil {
		log.Warnw("rate cache not invalidated, cached value expires on its own", "error", err, "ttl", cfg.Rates.CacheTTL)
	} else if redisClient != nil {
		defer redisClient.Close()
		cache = exchangerate.NewCachedRateSource(repo, redisClient, cfg.Rates.CacheTTL, log)
	}

	return setRate(cmd.Context(), repo, cache, args[0], args[1], cmd.OutOrStdout())
}

func setRate(ctx context.Context, repo *repository.ExchangeRateRepository, cache rateCache, code, value string, out io.Writer) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("currency code is required")
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid rate %q: %w", value, err)
	}

	if err := repo.Set(ctx, code, rate); err != nil {
		return err
	}

	if cache != nil {
		if err := cache.Invalidate(ctx, code); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "%s = %s\n", code, rate)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	if _, _, err := bootstrap.Init(bootstrap.ResolveEnv(env), configPath); err != nil {
		return err
	}
	defer database.Close()

	return listRates(cmd.Context(), repository.NewExchangeRateRepository(database.Get()), cmd.OutOrStdout())
}

func listRates(ctx context.Context, repo *repository.ExchangeRateRepository, out io.Writer) error {
	rates, err := repo.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CURRENCY\tRATE\tUPDATED")
	for _, r := range rates {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.CurrencyCode, r.Rate, r.UpdatedAt.In(biztime.Location()).Format(time.RFC3339))
	}
	return w.Flush()
}
