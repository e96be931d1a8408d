// Package cli is the vanilla command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pseudocodes/lite-vanilla/config"
	"github.com/pseudocodes/lite-vanilla/lite"
	"github.com/pseudocodes/lite-vanilla/logging"
	"github.com/pseudocodes/lite-vanilla/quote"
	"github.com/pseudocodes/lite-vanilla/session"
	"github.com/pseudocodes/lite-vanilla/vanilla"
)

var (
	cfgFile string
	v       = config.New()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./vanilla.yaml or $HOME/.vanilla.yaml)")
	rootCmd.PersistentFlags().String("url", "", "trade gateway url")
	rootCmd.PersistentFlags().StringArray("trade-list", nil, "venue,symbol pair to poll, repeat the flag per pair")
	rootCmd.PersistentFlags().String("client", config.ClientGateway, "trade client: gateway or ctp")
	rootCmd.PersistentFlags().String("session", config.SessionContinuous, "market session: continuous or ctp")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")

	_ = v.BindPFlag("trader_client_url", rootCmd.PersistentFlags().Lookup("url"))
	_ = v.BindPFlag("client", rootCmd.PersistentFlags().Lookup("client"))
	_ = v.BindPFlag("session", rootCmd.PersistentFlags().Lookup("session"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(priceCmd, barsCmd, clockCmd, balanceCmd, positionsCmd, ordersCmd, orderCmd, submitCmd, cancelCmd)
}

var rootCmd = &cobra.Command{
	Use:           "vanilla",
	Short:         "Futures broker and quote adapter for domestic markets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds what a command needs, built from the merged configuration.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	broker *vanilla.Broker
	source *quote.Source
	trader *lite.Trader
}

func newApp(cmd *cobra.Command) (*app, error) {
	if err := config.ReadFile(v, cfgFile); err != nil {
		return nil, err
	}
	// a repeated --trade-list replaces the file value
	if f := cmd.Flags().Lookup("trade-list"); f != nil && f.Changed {
		list, _ := cmd.Flags().GetStringArray("trade-list")
		v.Set("trade_list", list)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	quoteOpts := []quote.Option{quote.WithLogger(logger.Named("quote"))}
	brokerOpts := []vanilla.Option{vanilla.WithLogger(logger.Named("broker"))}

	if cfg.Client == config.ClientCTP {
		a.trader = lite.NewTrader(&cfg.CTP, lite.WithLogger(logger.Named("ctp")), lite.WithLiteSpi(lite.NewLogSpi(logger.Named("ctp"))))
		if err := a.trader.Start(cmd.Context()); err != nil {
			a.trader.Stop()
			return nil, err
		}
		brokerOpts = append(brokerOpts, vanilla.WithTradeClient(a.trader))
		if len(cfg.CTP.MdFronts) > 0 {
			quoteOpts = append(quoteOpts, quote.WithSpotProvider(a.trader))
		}
	}
	if cfg.Session == config.SessionCTP {
		brokerOpts = append(brokerOpts, vanilla.WithSession(session.CTP()))
	}

	a.source = quote.New(quote.NewSina(cfg.SinaConf(), logger.Named("sina")), quoteOpts...)
	brokerOpts = append(brokerOpts, vanilla.WithDataSource(a.source))
	a.broker, err = vanilla.New(cfg.Broker(), brokerOpts...)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.trader != nil {
		a.trader.Stop()
	}
	_ = a.logger.Sync()
}

// run builds the app, hands it to fn and releases it afterwards.
func run(fn func(ctx context.Context, a *app, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, cmd.OutOrStdout(), args)
	}
}

func printJSON(out io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
