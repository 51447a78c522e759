package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/vtask/internal/audit"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [trail.ndjson]",
		Short: "Summarize the supervisor audit trail",
		Long: `Audit reads the NDJSON audit trail (default: the configured audit.path) and
prints the stage transitions of each call, followed by the calls that ended
while a confirmation was still pending.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAudit,
	}
	cmd.Flags().String("call", "", "Only show this call id")
	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Audit.Path
	}
	if path == "" {
		return fmt.Errorf("no audit trail configured\n\nHint: Set audit.path in vtask.yaml or pass the trail file as an argument")
	}

	ledger, err := audit.ReadTrail(path)
	if err != nil {
		return err
	}

	only, _ := cmd.Flags().GetString("call")
	out := cmd.OutOrStdout()

	for _, callID := range ledger.Calls() {
		if only != "" && callID != only {
			continue
		}
		fmt.Fprintf(out, "call %s\n", callID)
		for _, e := range ledger.ForCall(callID) {
			line := fmt.Sprintf("  %s turn %d %s -> %s", e.Timestamp.Format("15:04:05"), e.Turn, e.StageBefore, e.StageAfter)
			if e.Action != "" {
				line += " [" + string(e.Action) + "]"
			}
			if len(e.Deltas) > 0 {
				line += " (" + strings.Join(e.Deltas, "; ") + ")"
			}
			fmt.Fprintln(out, line)
		}
	}

	fmt.Fprintf(out, "%d pass(es), %d commit(s)\n", len(ledger.Entries), len(ledger.Commits()))

	pending := ledger.PendingConfirmations()
	if len(pending) > 0 {
		ids := make([]string, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		fmt.Fprintln(out, "Calls left waiting for confirmation:")
		for _, id := range ids {
			fmt.Fprintf(out, "  %s (%s)\n", id, pending[id].IntentAfter)
		}
	}
	return nil
}
