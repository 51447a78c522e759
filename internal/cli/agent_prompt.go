package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/vtask/internal/executor"
	"github.com/iambrandonn/vtask/internal/prompt"
)

func newAgentPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent-prompt",
		Short: "Print the reminders section for the voice agent's system prompt",
		Args:  cobra.NoArgs,
		RunE:  runAgentPrompt,
	}
	callerFlags(cmd)
	return cmd
}

func runAgentPrompt(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	params := callerParams(cmd, a.cfg)
	active, err := a.exec.ActiveSummary(cmd.Context(), executor.Caller{
		TenantID: params.TenantID,
		Phone:    params.Phone,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), prompt.AgentSection(time.Now(), a.exec.Location(), active))
	return nil
}
