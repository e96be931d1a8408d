package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/pseudocodes/lite-vanilla/entity"
)

var (
	strategy string
	length   int
	timestep string
)

func init() {
	barsCmd.Flags().IntVarP(&length, "length", "n", 20, "number of daily bars")
	barsCmd.Flags().StringVar(&timestep, "timestep", "day", "bar timestep, only day is served")
	for _, c := range []*cobra.Command{positionsCmd, ordersCmd, orderCmd, submitCmd, cancelCmd} {
		c.Flags().StringVarP(&strategy, "strategy", "s", "cli", "owning strategy name")
	}
}

var priceCmd = &cobra.Command{
	Use:   "price <symbol>",
	Short: "Latest price of a contract",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, a *app, out io.Writer, args []string) error {
		price, err := a.source.FetchLastPrice(ctx, entity.NewAsset(args[0]))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, price.String())
		return err
	}),
}

var barsCmd = &cobra.Command{
	Use:   "bars <symbol>",
	Short: "Most recent daily bars, newest last",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, a *app, out io.Writer, args []string) error {
		bars, err := a.source.FetchHistoricalPrices(ctx, entity.NewAsset(args[0]), length, timestep)
		if err != nil {
			return err
		}
		for _, b := range bars.Rows {
			if _, err := fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", b.Date.Format("2006-01-02"),
				b.Open, b.High, b.Low, b.Close, b.Volume, b.OpenInterest); err != nil {
				return err
			}
		}
		return nil
	}),
}

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Market session state",
	Args:  cobra.NoArgs,
	RunE: run(func(_ context.Context, a *app, out io.Writer, _ []string) error {
		toOpen, okOpen := a.broker.TimeToOpen()
		toClose, okClose := a.broker.TimeToClose()
		state := map[string]any{
			"timestamp": a.broker.Timestamp(),
			"open":      a.broker.IsMarketOpen(),
			"margin":    a.broker.IsMarginEnabled(),
		}
		if okOpen {
			state["time_to_open"] = toOpen.String()
		}
		if okClose {
			state["time_to_close"] = toClose.String()
		}
		return printJSON(out, state)
	}),
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Cash, positions value and total equity",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		bal, err := a.broker.Balances(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, bal)
	}),
}

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Positions across all accounts",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		positions, err := a.broker.FetchPositions(ctx, strategy)
		if err != nil {
			return err
		}
		rows := make([]map[string]any, 0, len(positions))
		for _, p := range positions {
			rows = append(rows, map[string]any{"symbol": p.Asset.Symbol, "quantity": p.Quantity})
		}
		return printJSON(out, rows)
	}),
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Open and closed orders of the trade list",
	Args:  cobra.NoArgs,
	RunE: run(func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		orders, err := a.broker.Orders(ctx, strategy)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if _, err := fmt.Fprintf(out, "%s\t%s\n", o.Identifier, o); err != nil {
				return err
			}
		}
		return nil
	}),
}

var orderCmd = &cobra.Command{
	Use:   "order <id>",
	Short: "Look an order up by broker identifier",
	Args:  cobra.ExactArgs(1),
	RunE: run(func(ctx context.Context, a *app, out io.Writer, args []string) error {
		o, ok, err := a.broker.Order(ctx, strategy, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s not found", args[0])
		}
		_, err = fmt.Fprintln(out, o)
		return err
	}),
}

var submitCmd = &cobra.Command{
	Use:   "submit <venue,symbol> <buy|sell> <quantity> <limit>",
	Short: "Submit a limit order",
	Args:  cobra.ExactArgs(4),
	RunE: run(func(ctx context.Context, a *app, out io.Writer, args []string) error {
		ins, err := entity.ParseInstrument(args[0])
		if err != nil {
			return err
		}
		qty, err := cast.ToFloat64E(args[2])
		if err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		limit, err := cast.ToFloat64E(args[3])
		if err != nil {
			return fmt.Errorf("limit: %w", err)
		}
		side := entity.Side(strings.ToLower(args[1]))
		if side != entity.SideBuy && side != entity.SideSell {
			return fmt.Errorf("side must be buy or sell, got %q", args[1])
		}

		o := a.broker.SubmitOrder(ctx, entity.NewLimitOrder(strategy, entity.NewAsset(ins.Symbol), qty, side, limit, ins.Venue))
		if o.Err != nil {
			return o.Err
		}
		_, err = fmt.Fprintln(out, o.Identifier)
		return err
	}),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <venue,symbol> <id>",
	Short: "Cancel an order",
	Args:  cobra.ExactArgs(2),
	RunE: run(func(ctx context.Context, a *app, out io.Writer, args []string) error {
		ins, err := entity.ParseInstrument(args[0])
		if err != nil {
			return err
		}
		o := &entity.Order{
			Strategy:   strategy,
			Asset:      entity.NewAsset(ins.Symbol),
			Exchange:   ins.Venue,
			Type:       entity.OrderLimit,
			Identifier: args[1],
			Status:     entity.StatusOpen,
		}
		outcome := a.broker.CancelOrder(ctx, o)
		_, err = fmt.Fprintln(out, outcome)
		return err
	}),
}
