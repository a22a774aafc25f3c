package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-i2p/go-circuit/lib/config"
	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var log = logger.GetGoI2PLogger()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:          "go-circuit",
		Short:        "Circuit data plane tools",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "YAML configuration file overlaid on the defaults")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(newDefaultsCommand(v), newSimCommand(v))
	return root
}

func newDefaultsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the effective configuration as YAML",
		Long: `Print the circuit configuration as YAML. Without --config this is the
built-in defaults; with it, the file and GOCIRCUIT_* variables applied on top.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v.GetString("config"))
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
