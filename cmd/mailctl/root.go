package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailarchive/backend/internal/app"
	"mailarchive/backend/internal/config"
)

// cli 命令共享状态，在 PersistentPreRunE 中初始化
type cli struct {
	configFile string
	cfg        *config.Config
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "mailctl",
		Short:         "Operate the mail archive: import, send, query and migrate",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithFile(c.configFile)
			if err != nil {
				return err
			}
			log, err := app.NewLogger(cfg.Log, true)
			if err != nil {
				return err
			}
			c.cfg, c.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "Path to a config file (overrides MAILARCHIVE_CONFIG)")

	root.AddCommand(
		newImportCmd(c),
		newSendCmd(c),
		newListCmd(c),
		newSearchCmd(c),
		newShowCmd(c),
		newMigrateCmd(c),
		newUserCmd(c),
	)
	return root
}

// components 打开存储并组装服务；调用方负责 Close
func (c *cli) components(ctx context.Context) (*app.Components, error) {
	return app.Build(ctx, c.cfg, nil, c.log)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
