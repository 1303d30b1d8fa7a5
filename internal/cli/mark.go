package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/partnerwatch/ppscan/api"
	"github.com/partnerwatch/ppscan/pkg/marks"
)

const markExamples = `  # Preview the policy with reviewer marks folded in:
  ppscan mark --marks false_positive_marks.csv --print

  # Append the marks to the policy file in place:
  ppscan mark --marks false_positive_marks.csv --append-policy`

type MarkArgs struct {
	*RootArgs

	MarksPath    string
	PolicyPath   string
	AppendPolicy bool
	Print        bool
}

func NewMarkArgs(rootArgs *RootArgs) *MarkArgs {
	return &MarkArgs{
		RootArgs: rootArgs,
	}
}

func (ma *MarkArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ma.MarksPath, "marks", "false_positive_marks.csv", "Path to the reviewer marks CSV")
	cmd.Flags().StringVar(&ma.PolicyPath, "policy", "policy.yaml", "Path to the policy file")
	cmd.Flags().BoolVar(&ma.AppendPolicy, "append-policy", false, "Rewrite the policy file with the marks appended")
	cmd.Flags().BoolVar(&ma.Print, "print", false, "Print the updated policy instead of writing it")

	err := cmd.MarkFlagFilename("marks", "csv")
	if err != nil {
		panic(fmt.Errorf("mark marks flag: %w", err))
	}

	err = cmd.MarkFlagFilename("policy", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark policy flag: %w", err))
	}
}

func NewMarkCmd(ma *MarkArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mark",
		Short:   "Fold reviewer false-positive marks into the policy as suppressions",
		Example: markExamples,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMark(cmd, ma)
		},
	}
	ma.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func runMark(cmd *cobra.Command, ma *MarkArgs) error {
	if !ma.AppendPolicy && !ma.Print {
		return fmt.Errorf("one of --append-policy or --print is required")
	}

	marksFile, err := os.Open(ma.MarksPath) //nolint:gosec // G304: Potential file inclusion via variable.
	if err != nil {
		return fmt.Errorf("open marks file: %w", err)
	}

	defer func() {
		_ = marksFile.Close()
	}()

	incoming, err := marks.ReadCSV(marksFile)
	if err != nil {
		return err
	}

	policyData, err := api.ReadFile(ma.PolicyPath)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}

	merged, added, err := marks.AppendToPolicy(policyData, incoming)
	if err != nil {
		return err
	}

	slog.InfoContext(cmd.Context(), "marks processed",
		slog.Int("marks", len(incoming)),
		slog.Int("added", added),
		slog.Int("duplicates", len(incoming)-added),
	)

	if ma.Print {
		mustN(fmt.Fprint(cmd.OutOrStdout(), string(merged)))

		return nil
	}

	if added == 0 {
		mustN(fmt.Fprintln(cmd.OutOrStdout(), "no new suppressions, policy unchanged"))

		return nil
	}

	err = os.WriteFile(ma.PolicyPath, merged, 0o600)
	if err != nil {
		return fmt.Errorf("write policy file: %w", err)
	}

	mustN(fmt.Fprintf(cmd.OutOrStdout(), "%s appended to %s\n",
		english.Plural(added, "suppression", ""),
		ma.PolicyPath,
	))

	return nil
}
