package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/vtask/internal/executor"
	"github.com/iambrandonn/vtask/internal/task"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List upcoming active reminders",
		Long: `List the active reminders from now on, earliest first. Without --phone
every reminder of the tenant is listed.`,
		Args: cobra.NoArgs,
		RunE: runTasks,
	}
	callerFlags(cmd)
	cmd.Flags().String("date", "", "Only reminders on this date (YYYY-MM-DD)")
	cmd.Flags().String("from", "", "Only reminders on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Only reminders on or before this date (YYYY-MM-DD)")
	return cmd
}

func runTasks(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	params := callerParams(cmd, a.cfg)
	date, _ := cmd.Flags().GetString("date")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	var filter *task.ListFilter
	if date != "" || from != "" || to != "" {
		filter = &task.ListFilter{Date: date, RangeStart: from, RangeEnd: to}
	}

	res, err := a.exec.List(cmd.Context(), executor.Caller{
		TenantID:    params.TenantID,
		Phone:       params.Phone,
		ContactName: params.ContactName,
	}, filter)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	return nil
}
