package cmd

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/powersync/powersync/internal/cmd/eval"
	"github.com/powersync/powersync/internal/cmd/run"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "powersync",
		Short: "Home energy automation engine",
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&run.Cmd, &eval.Cmd)
}

var args = charmer.Arguments{
	"debug":           charmer.Argument{Default: false, Help: "Log debug messages"},
	"log.json":        charmer.Argument{Default: false, Help: "Log in JSON format"},
	"database.path":   charmer.Argument{Default: "powersync.db", Help: "Path of the sqlite database"},
	"engine.interval": charmer.Argument{Default: 5 * time.Minute, Help: "Automation cycle interval"},
	"engine.timeout":  charmer.Argument{Default: 30 * time.Second, Help: "Timeout for a single automation cycle"},
	"exporter.addr":   charmer.Argument{Default: ":9090", Help: "Address of Prometheus exporter"},
	"health.addr":     charmer.Argument{Default: ":8080", Help: "Address of /health endpoint"},
	"ocpp.addr":       charmer.Argument{Default: "", Help: "Listen address of the OCPP server (empty: disabled)"},
	"slack.token":     charmer.Argument{Default: "", Help: "Slack token"},
	"slack.channel":   charmer.Argument{Default: "", Help: "Slack channel for notifications"},
	"weather.ttl":     charmer.Argument{Default: 15 * time.Minute, Help: "How long to cache weather conditions"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/powersync/")
		viper.AddConfigPath("$HOME/.powersync")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("POWERSYNC")
	viper.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}
