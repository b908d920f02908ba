package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"trendEnvelopeBot/internal/app"
	"trendEnvelopeBot/internal/domain"
	"trendEnvelopeBot/internal/ports"
	"trendEnvelopeBot/internal/risk"
	"trendEnvelopeBot/internal/strategy/analytics"
	"trendEnvelopeBot/internal/utils"
)

// store is the persisted bot state botctl inspects.
type store interface {
	ports.TradeStore
	ports.ModeStore
	ports.TradeHistoryRepository
}

// barSource serves historical klines for export.
type barSource interface {
	GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error)
}

// ctlApp holds the dependencies of the commands.
type ctlApp struct {
	store   store
	session *app.Session
	bars    barSource
	now     func() time.Time
}

const cmdTimeout = 30 * time.Second

func newRootCmd(a *ctlApp) *cobra.Command {
	root := &cobra.Command{
		Use:   "botctl",
		Short: "Operator tool for the trend envelope bot",
		Long: `botctl inspects and changes the state the trading bot persists.

The bot only opens positions in ENTRY mode and switches to MANAGE after every
exit. Use 'botctl mode set ENTRY' to allow the next entry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newModeCmd(a))
	root.AddCommand(newTradeCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newStatsCmd(a))
	root.AddCommand(newFetchBarsCmd(a))
	return root
}

func newModeCmd(a *ctlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or change the trading mode",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current trading mode",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
			defer cancel()

			mode, err := a.store.GetMode(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mode)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "set <ENTRY|MANAGE>",
		Short:     "Change the trading mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.ModeEntry), string(domain.ModeManage)},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := domain.ParseMode(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
			defer cancel()

			if err := a.session.SetMode(ctx, mode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mode set to %s\n", mode)
			return nil
		},
	})
	return cmd
}

func newTradeCmd(a *ctlApp) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Inspect the active trade record",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the active trade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
			defer cancel()

			trade, err := a.store.LoadActiveTrade(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(trade)
			}
			if trade == nil {
				fmt.Fprintln(out, "No active trade.")
				return nil
			}
			printTrade(out, trade)
			return nil
		},
	}
	show.Flags().Bool("json", false, "output in JSON format")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove a stale active trade record",
		Long: `Remove the active trade record without touching the exchange.

Only use this when the position no longer exists. The bot discards such
records itself on startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
			defer cancel()

			if err := a.session.DiscardTrade(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Active trade record cleared.")
			return nil
		},
	}

	cmd.AddCommand(show, clearCmd)
	return cmd
}

func printTrade(w io.Writer, t *domain.ActiveTrade) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Symbol:\t%s (%s)\n", t.Symbol, t.TradeSymbol)
	fmt.Fprintf(tw, "Side:\t%s\n", t.Side)
	fmt.Fprintf(tw, "Entry:\t%s\n", risk.FormatPrice(t.EntryPrice))
	fmt.Fprintf(tw, "Stop loss:\t%s\n", risk.FormatPrice(t.StopLoss))
	fmt.Fprintf(tw, "Take profit:\t%s\n", risk.FormatPrice(t.TakeProfit))
	fmt.Fprintf(tw, "Quantity:\t%v\n", t.Quantity)
	fmt.Fprintf(tw, "Opened:\t%s\n", t.OpenedAt.UTC().Format(time.RFC3339))
	tw.Flush()
}

func newHistoryCmd(a *ctlApp) *cobra.Command {
	var (
		symbol string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List closed trades, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be positive, got %d", limit)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
			defer cancel()

			trades, err := a.trades(ctx, symbol, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(trades) == 0 {
				fmt.Fprintln(out, "No trades recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "EXIT TIME\tSYMBOL\tSIDE\tENTRY\tEXIT\tPNL%\tREASON\tRE-ENTRY")
			for _, t := range trades {
				reentry := "-"
				if t.ReentryPrice > 0 {
					reentry = risk.FormatPrice(t.ReentryPrice)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%+.2f\t%s\t%s\n",
					t.ExitTime.UTC().Format("2006-01-02 15:04"), t.Symbol, t.Side,
					risk.FormatPrice(t.EntryPrice), risk.FormatPrice(t.ExitPrice),
					t.PnLPercent, t.ExitReason, reentry)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			m := analytics.AnalyzePerformance(trades)
			fmt.Fprintf(out, "\n%d trades, total PnL %+.2f%%, win rate %.0f%%\n", m.TotalTrades, m.TotalPnL, m.WinRate*100)
			return nil
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only trades of this symbol")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of trades")
	return cmd
}

func newStatsCmd(a *ctlApp) *cobra.Command {
	var (
		symbol string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the performance of closed trades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be positive, got %d", limit)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
			defer cancel()

			trades, err := a.trades(ctx, symbol, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(trades) == 0 {
				fmt.Fprintln(out, "No trades recorded.")
				return nil
			}

			m := analytics.AnalyzePerformance(trades)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Trades:\t%d (%d won, %d lost)\n", m.TotalTrades, m.WinningTrades, m.LosingTrades)
			fmt.Fprintf(tw, "Win rate:\t%.1f%%\n", m.WinRate*100)
			fmt.Fprintf(tw, "Total PnL:\t%+.2f%%\n", m.TotalPnL)
			fmt.Fprintf(tw, "Average win / loss:\t%+.2f%% / %+.2f%%\n", m.AverageWin, m.AverageLoss)
			fmt.Fprintf(tw, "Profit factor:\t%.2f\n", m.ProfitFactor)
			fmt.Fprintf(tw, "Max drawdown:\t%.2f points\n", m.MaxDrawdown)
			fmt.Fprintf(tw, "Streaks:\t%d wins / %d losses\n", m.MaxConsecutiveWins, m.MaxConsecutiveLosses)
			fmt.Fprintf(tw, "Average duration:\t%s\n", m.AverageTradeDuration.Round(time.Minute))
			for _, r := range m.GetMonthlyReturns() {
				fmt.Fprintf(tw, "%s:\t%+.2f%%\n", r.Month.Format("2006-01"), r.Return)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "only trades of this symbol")
	cmd.Flags().IntVarP(&limit, "limit", "n", 500, "maximum number of trades")
	return cmd
}

// trades reads the newest closed trades, optionally of one symbol.
func (a *ctlApp) trades(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	if symbol != "" {
		return a.store.FindBySymbol(ctx, strings.ToUpper(symbol), limit)
	}
	return a.store.FindRecent(ctx, limit)
}

func newFetchBarsCmd(a *ctlApp) *cobra.Command {
	var (
		symbol   string
		interval string
		days     int
		output   string
	)
	cmd := &cobra.Command{
		Use:   "fetch-bars",
		Short: "Export historical klines to CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.bars == nil {
				return fmt.Errorf("%w: no market data client", ports.ErrConfigurationError)
			}
			if days <= 0 {
				return fmt.Errorf("days must be positive, got %d", days)
			}
			symbol = strings.ToUpper(symbol)
			end := a.now().UTC()
			start := end.AddDate(0, 0, -days)

			klines, err := a.bars.GetKlinesRange(cmd.Context(), symbol, interval, start, end)
			if err != nil {
				return err
			}

			filename := output
			if filename == "" {
				filename = fmt.Sprintf("data/%s_%s_%s_to_%s.csv", symbol, interval, start.Format("20060102"), end.Format("20060102"))
			}
			if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d klines to %s\n", len(klines), filename)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSDT", "market data symbol")
	cmd.Flags().StringVar(&interval, "interval", "15m", "kline interval")
	cmd.Flags().IntVar(&days, "days", 30, "number of days back from now")
	cmd.Flags().StringVarP(&output, "output", "o", "", "CSV file (default data/<symbol>_<interval>_<from>_to_<to>.csv)")
	return cmd
}
