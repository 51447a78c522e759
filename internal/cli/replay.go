package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iambrandonn/vtask/internal/supervisor"
	"github.com/iambrandonn/vtask/internal/task"
	"github.com/iambrandonn/vtask/internal/transcript"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <transcript.ndjson>",
		Short: "Run a recorded call transcript through the supervisor",
		Long: `Replay feeds a recorded NDJSON transcript to a fresh supervisor one turn at
a time, as if the call were live, and prints the instruction each pass would
send to the voice agent. Tasks are written to the configured store.

Every turn except the platform's own tagged instructions triggers one pass.
With --replies the model is replaced by a file of canned replies, one JSON
object per line, consumed one per pass in order.`,
		Args: cobra.ExactArgs(1),
		RunE: runReplay,
	}
	callerFlags(cmd)
	cmd.Flags().String("call-id", "", "Call id (default: generated)")
	cmd.Flags().String("replies", "", "File of canned model replies, one per line")
	cmd.Flags().Bool("all", false, "Also print passes that did nothing")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.openTrail(); err != nil {
		return err
	}

	turns, err := transcript.Load(args[0], a.logger)
	if err != nil {
		return err
	}

	repliesPath, _ := cmd.Flags().GetString("replies")
	client, err := a.modelClient(cmd.Context(), repliesPath)
	if err != nil {
		return err
	}

	params := callerParams(cmd, a.cfg)
	params.CallID, _ = cmd.Flags().GetString("call-id")
	if params.CallID == "" {
		params.CallID = uuid.NewString()
	}
	all, _ := cmd.Flags().GetBool("all")

	sup := supervisor.New(params, a.deps(client))
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Replaying %d turns as call %s\n", len(turns), params.CallID)

	var committed int
	for i := range turns {
		// the platform's own instructions never trigger a pass
		if transcript.IsSystemTagged(turns[i].Text) {
			continue
		}
		res := sup.Analyze(cmd.Context(), turns[:i+1])
		switch res.Action {
		case task.ActionTasksCreated, task.ActionTaskModified, task.ActionTaskCancelled:
			committed++
		case task.ActionNone:
			if !all {
				continue
			}
		}
		printResult(out, fmt.Sprintf("turn %d", i), res)
	}

	final := sup.Snapshot()
	fmt.Fprintf(out, "Done: %d committed operation(s), final stage %s\n", committed, final.Stage)
	if final.Stage == task.StageConfirmationRequested {
		fmt.Fprintf(out, "Warning: the call ended while waiting for the caller to confirm (%s)\n", final.Intent)
	}
	return nil
}
