package main

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/config"
	"github.com/petasbytes/buildfile-agent/internal/logging"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/provider"
	"github.com/petasbytes/buildfile-agent/tools"
)

// app holds what every subcommand needs, built once the flags are parsed.
type app struct {
	cfgFile string
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "Build-file agent orchestrator",
		Long: `Routes the steps of a conversation in which a model inspects a GitHub
repository through a file-fetch tool and writes a Dockerfile for it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = logging.Sync(a.log)
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file (AGT_* environment variables override it)")

	root.AddCommand(newServeCmd(a), newStepCmd(a), newRunCmd(a))
	return root
}

func (a *app) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(a.cfg.OrchestratorOptions(a.log.Named("orchestrator")))
}

func (a *app) fetcher() (*tools.GitHubFetcher, error) {
	return tools.NewGitHubFetcher(a.cfg.FetcherConfig(a.log.Named("github")))
}

func (a *app) modelClient() *anthropic.Client {
	var opts []option.RequestOption
	if a.cfg.Model.APIKey.IsSet() {
		opts = append(opts, option.WithAPIKey(a.cfg.Model.APIKey.Value()))
	}
	if a.cfg.Model.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.cfg.Model.BaseURL))
	}
	return provider.NewAnthropicClient(opts...)
}
