package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iambrandonn/vtask/internal/calls"
	"github.com/iambrandonn/vtask/internal/supervisor"
	"github.com/iambrandonn/vtask/internal/transcript"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <transcript.ndjson>",
		Short: "Supervise a live call by following its transcript file",
		Long: `Watch follows an NDJSON transcript file while a call is in progress. Every
time the file grows the supervisor runs a pass over it; instructions for the
voice agent are printed to stdout. Stop with Ctrl-C to end the call.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}
	callerFlags(cmd)
	cmd.Flags().String("call-id", "", "Call id (default: generated)")
	return cmd
}

// printNotifier writes each instruction to the terminal
type printNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printNotifier) Notify(_ context.Context, callID string, res supervisor.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	printResult(p.out, "call "+callID, res)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.openTrail(); err != nil {
		return err
	}

	client, err := a.modelClient(ctx, "")
	if err != nil {
		return err
	}

	m := calls.NewManager(calls.Options{
		Deps:      a.deps(client),
		Notifier:  &printNotifier{out: cmd.OutOrStdout()},
		RecordDir: a.cfg.Calls.RecordDir,
		Logger:    a.logger,
	})

	params := callerParams(cmd, a.cfg)
	params.CallID, _ = cmd.Flags().GetString("call-id")
	// passes outlive the signal so a confirmed write in flight can finish
	callID, err := m.Start(context.WithoutCancel(ctx), params)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s as call %s\n", args[0], callID)

	watchErr := transcript.Watch(ctx, args[0], a.logger, func(turns []transcript.Turn) {
		if err := m.Trigger(callID, turns); err != nil {
			a.logger.Warn("failed to trigger analysis", "error", err)
		}
	})

	rec, err := m.End(callID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Call %s ended: %s\n", callID, rec.Outcome)
	return watchErr
}
