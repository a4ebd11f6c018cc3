package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/petasbytes/buildfile-agent/internal/orchestrator"
)

func newStepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "step",
		Short: "Route one step: invocation JSON on stdin, envelope JSON on stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var inv orchestrator.Invocation
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&inv); err != nil {
				return fmt.Errorf("decode invocation: %w", err)
			}
			step, err := inv.StepContext()
			if err != nil {
				return err
			}
			res, err := a.orchestrator().Route(step)
			if err != nil {
				return err
			}
			env, err := res.Envelope()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(env)
		},
	}
}
