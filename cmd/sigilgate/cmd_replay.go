package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sigilgate/internal/simulation"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <scenario.yaml>...",
		Short: "Replay scripted gestures against the verifier",
		Long: `Replay one or more scenario files against a fresh verifier on a virtual
clock and print the hooks it delivered and the final outcome.

A scenario may carry its own anchors and config overrides; otherwise the
configured sigil (or --sigil) and verifier settings are used. The command
fails when any scenario's expect block does not hold.

Examples:
  sigilgate replay testdata/swipe.yaml
  sigilgate replay --json scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")
			name, _ := cmd.Flags().GetString("sigil")
			auto, _ := cmd.Flags().GetBool("auto-materialize")
			quiet, _ := cmd.Flags().GetBool("quiet")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			graph, err := resolveGraph(cmd.Context(), root, cfg, name)
			if err != nil {
				return err
			}

			runner, err := simulation.NewRunner(cfg.VerifierConfig(), graph,
				simulation.WithLogger(newLogger(cmd, cfg)),
				simulation.WithAutoMaterialize(auto))
			if err != nil {
				return err
			}

			var (
				results []*simulation.Result
				failed  int
			)
			for _, path := range args {
				sc, err := simulation.LoadScenario(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if sc.Name == "" {
					sc.Name = path
				}
				res, err := runner.Run(sc)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if !res.Passed() {
					failed++
				}
				results = append(results, res)
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				for _, res := range results {
					fmt.Fprintf(out, "== %s\n", res.Name)
					if !quiet {
						for _, e := range res.Events {
							fmt.Fprintf(out, "  %s\n", e)
						}
					}
					line := fmt.Sprintf("outcome: %s", res.Outcome)
					if res.Reason != "" {
						line += fmt.Sprintf(" (%s)", res.Reason)
					}
					fmt.Fprintf(out, "  %s, retries: %d\n", line, res.Retries)
					for _, f := range res.Failures {
						fmt.Fprintf(out, "  FAIL: %s\n", f)
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios did not meet their expectations", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().String("sigil", "", "Catalog sigil for scenarios without anchors")
	cmd.Flags().Bool("auto-materialize", true, "Complete materialization immediately unless the scenario scripts it")
	cmd.Flags().BoolP("quiet", "q", false, "Only print outcomes")
	return cmd
}
