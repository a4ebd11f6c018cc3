package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petasbytes/buildfile-agent/internal/host"
	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
	"github.com/petasbytes/buildfile-agent/internal/provider"
	"github.com/petasbytes/buildfile-agent/internal/session"
	"github.com/petasbytes/buildfile-agent/internal/store"
	"github.com/petasbytes/buildfile-agent/memory"
	"github.com/petasbytes/buildfile-agent/tools"
)

type runFlags struct {
	owner, repo, branch string
	conversation        string
	out, transcript     string
	appendTranscript    bool
}

func newRunCmd(a *app) *cobra.Command {
	var fl runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a Dockerfile for a GitHub repository",
		Long: `Lists the repository tree, then drives the conversation until the model
returns its Dockerfile. The result is printed, or written to --out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, fl)
		},
	}
	cmd.Flags().StringVar(&fl.owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&fl.repo, "repo", "", "repository name")
	cmd.Flags().StringVar(&fl.branch, "branch", tools.DefaultRef, "branch or ref")
	cmd.Flags().StringVar(&fl.conversation, "conversation", "", "conversation id (default: random)")
	cmd.Flags().StringVar(&fl.out, "out", "", "write the Dockerfile here instead of stdout")
	cmd.Flags().StringVar(&fl.transcript, "transcript", "", "save the conversation transcript as JSON")
	cmd.Flags().BoolVar(&fl.appendTranscript, "append-transcript", false, "append to an existing --transcript file instead of replacing it")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("repo")
	return cmd
}

func (a *app) run(cmd *cobra.Command, fl runFlags) error {
	if os.Getenv("ANTHROPIC_API_KEY") == "" && !a.cfg.Model.APIKey.IsSet() {
		return errors.New("missing ANTHROPIC_API_KEY; export it before running")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := a.fetcher()
	if err != nil {
		return err
	}
	tree, err := f.ListTree(ctx, fl.owner, fl.repo, fl.branch, "")
	if err != nil {
		return err
	}
	a.log.Info("repository listed",
		zap.String("owner", tree.Owner),
		zap.String("repo", tree.Repo),
		zap.String("ref", tree.Ref),
		zap.Int("files", len(tree.Files)),
		zap.Bool("truncated", tree.Truncated),
	)

	st, closeStore, err := store.Open(a.cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	defs := tools.Registry(f)
	runner := host.New(
		a.orchestrator(),
		provider.NewInvoker(a.modelClient(), defs, a.log.Named("model")),
		defs,
		st,
		a.cfg.Host,
		a.log.Named("host"),
	)

	convID := fl.conversation
	if convID == "" {
		convID = uuid.NewString()
	}
	seed := session.State{
		session.KeyRepoOwner: tree.Owner,
		session.KeyRepoName:  tree.Repo,
		session.KeyBranch:    tree.Ref,
	}
	out, runErr := runner.Run(ctx, convID, tree.StartPayload(), seed)

	if fl.transcript != "" && len(out.Transcript) > 0 {
		if err := saveTranscript(fl.transcript, out.Transcript, fl.appendTranscript); err != nil {
			a.log.Warn("failed to save transcript", zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}
	if out.Reason != orchestrator.ReasonCompleted {
		a.log.Warn("conversation ended early", zap.String("reason", string(out.Reason)))
	}

	if fl.out == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), out.FinalText)
		return err
	}
	if err := os.WriteFile(fl.out, []byte(out.FinalText+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fl.out, err)
	}
	a.log.Info("dockerfile written", zap.String("path", fl.out), zap.Int("steps", out.Steps))
	return nil
}

// saveTranscript writes msgs to path. With appendTo set, msgs follow the
// messages already saved there; a missing file starts empty.
func saveTranscript(path string, msgs []memory.Message, appendTo bool) error {
	if appendTo {
		prev, err := memory.LoadConversation(path)
		if err != nil {
			return fmt.Errorf("load transcript %s: %w", path, err)
		}
		msgs = append(prev, msgs...)
	}
	return memory.SaveConversation(path, msgs)
}
