// Package config loads the adapter configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/pseudocodes/lite-vanilla/entity"
	"github.com/pseudocodes/lite-vanilla/lite"
	"github.com/pseudocodes/lite-vanilla/quote"
	"github.com/pseudocodes/lite-vanilla/vanilla"
)

const (
	EnvPrefix = "VANILLA"

	ClientGateway = "gateway"
	ClientCTP     = "ctp"

	SessionContinuous = "continuous"
	SessionCTP        = "ctp"
)

var ErrNoTdFront = errors.New("config: ctp client needs at least one ctp.td_fronts entry")

type Config struct {
	TraderClientURL string        `mapstructure:"trader_client_url" validate:"required_if=Client gateway"`
	TradeList       []string      `mapstructure:"-" validate:"required,min=1,dive,instrument"`
	Margin          bool          `mapstructure:"margin"`
	DataSource      string        `mapstructure:"data_source" validate:"eq=Vanilla"`
	Client          string        `mapstructure:"client" validate:"oneof=gateway ctp"`
	Session         string        `mapstructure:"session" validate:"oneof=continuous ctp"`
	LogLevel        string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Gateway         GatewayConfig `mapstructure:"gateway"`
	Quote           QuoteConfig   `mapstructure:"quote"`
	CTP             lite.Config   `mapstructure:"ctp"`
}

type GatewayConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type QuoteConfig struct {
	SpotURL  string        `mapstructure:"spot_url" validate:"omitempty,url"`
	DailyURL string        `mapstructure:"daily_url" validate:"omitempty,url"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// New returns a viper instance with defaults and VANILLA_* env binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("trader_client_url", "")
	v.SetDefault("trade_list", []string{})
	v.SetDefault("margin", false)
	v.SetDefault("data_source", quote.SourceName)
	v.SetDefault("client", ClientGateway)
	v.SetDefault("session", SessionContinuous)
	v.SetDefault("log_level", "info")
	v.SetDefault("gateway.timeout", time.Duration(0))
	v.SetDefault("quote.spot_url", quote.DefaultSinaSpotURL)
	v.SetDefault("quote.daily_url", quote.DefaultSinaDailyURL)
	v.SetDefault("quote.timeout", 10*time.Second)
	for _, key := range []string{"user_id", "broker_id", "password", "app_id", "auth_code"} {
		v.SetDefault("ctp."+key, "")
	}
	v.SetDefault("ctp.md_fronts", []string{})
	v.SetDefault("ctp.td_fronts", []string{})
	v.SetDefault("ctp.instruments", []string{})
	v.SetDefault("ctp.flow_path", ".")
	v.SetDefault("ctp.timeout", time.Minute)
	return v
}

// Load reads path, or ./vanilla.yaml and $HOME/.vanilla.yaml when path is
// empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := New()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("vanilla")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.TradeList = tradeList(v.Get("trade_list"))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// tradeList reads a yaml list or a ";" / whitespace separated env string.
// A plain comma split would cut "DCE,i2405" in half.
func tradeList(raw any) []string {
	if s, ok := raw.(string); ok {
		return strings.FieldsFunc(s, func(r rune) bool {
			return r == ';' || r == ' ' || r == '\n' || r == '\t'
		})
	}
	var out []string
	for _, item := range cast.ToStringSlice(raw) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("instrument", func(fl validator.FieldLevel) bool {
		_, err := entity.ParseInstrument(fl.Field().String())
		return err == nil
	})
	return validate
}

func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Client == ClientCTP && len(c.CTP.TdFronts) == 0 {
		return ErrNoTdFront
	}
	return nil
}

func (c *Config) Broker() vanilla.Config {
	return vanilla.Config{
		ClientURL:  c.TraderClientURL,
		TradeList:  c.TradeList,
		Margin:     c.Margin,
		DataSource: c.DataSource,
		Timeout:    c.Gateway.Timeout,
	}
}

func (c *Config) SinaConf() quote.SinaConf {
	return quote.SinaConf{
		SpotURL:  c.Quote.SpotURL,
		DailyURL: c.Quote.DailyURL,
		Timeout:  c.Quote.Timeout,
	}
}
