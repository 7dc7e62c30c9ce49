package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"gallery-viewer/internal/app"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/memory"
	"gallery-viewer/internal/startup"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "gallery-viewer",
		Short:         "Index and browse a library of image galleries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $"+startup.ConfigPathEnvVar+")")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newReloadCommand(ctx))
	rootCmd.AddCommand(newDedupeCommand(ctx))
	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newThumbnailsCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newMirrorCommand(ctx))
	return rootCmd
}

// commandContext loads the configuration once per invocation.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *startup.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*startup.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := startup.LoadConfig(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := logging.Configure(logging.Options{
			Level:      cfg.Log.Level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}); err != nil {
			c.configErr = err
			return
		}
		memory.ConfigureLimit(cfg.Memory.Limit, cfg.Memory.Ratio)
		if err := startup.PrepareDataDir(cfg); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withApp opens the library for a one-shot command. Stored galleries are
// reloaded first when reload is set.
func (c *commandContext) withApp(ctx context.Context, reload bool, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	defer logging.Sync()

	if reload {
		if _, err := a.Reload(ctx); err != nil {
			return err
		}
	}
	return fn(a)
}
