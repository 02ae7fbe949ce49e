package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reelforge/internal/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string

	root := &cobra.Command{
		Use:           "reelforge",
		Short:         "Automated idea-to-video pipeline",
		Long:          "reelforge turns text ideas into narrated talking-head videos through script generation, speech synthesis, video synthesis, and archival to object storage.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file")

	ctx := newCommandContext(&configFlag)

	root.AddCommand(
		newRunCommand(ctx),
		newAdvanceCommand(ctx),
		newReconcileCommand(ctx),
		newArchiveCommand(ctx),
		newIngestCommand(ctx),
		newQueueCommand(ctx),
		newChannelCommand(ctx),
		newCreditsCommand(ctx),
		newConfigCommand(ctx),
		newStatusCommand(ctx),
		newTestNotifyCommand(ctx),
	)
	return root
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
