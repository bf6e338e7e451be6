package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/jobs"
)

// Enqueuer schedules sync batches on the worker queue.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, kind ledger.Kind) (string, error)
	EnqueueAll(ctx context.Context) (string, error)
}

// EventReader lists recent event-log rows.
type EventReader interface {
	Recent(ctx context.Context, filter ledger.RecentFilter) ([]ledger.Event, error)
}

// Backend opens the collaborators a command needs. Each accessor is called at
// most once per invocation so implementations may connect lazily.
type Backend interface {
	Runner(ctx context.Context) (jobs.Runner, error)
	Queue(ctx context.Context) (Enqueuer, error)
	Inspector(ctx context.Context) (jobs.QueueInspector, error)
	Events(ctx context.Context) (EventReader, error)
	Close() error
}

// NewRootCommand builds the synctl command tree.
func NewRootCommand(backend Backend) *cobra.Command {
	var jsonOutput bool
	root := &cobra.Command{
		Use:           "synctl",
		Short:         "Operate the shop sync engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine readable JSON")

	out := func(cmd *cobra.Command) printer {
		return printer{w: cmd.OutOrStdout(), json: jsonOutput}
	}
	root.AddCommand(
		newRunCommand(backend, out),
		newEnqueueCommand(backend, out),
		newQueueCommand(backend, out),
		newLogCommand(backend, out),
	)
	return root
}

// parseTarget accepts an entity name or "all".
func parseTarget(arg string) (ledger.Kind, bool, error) {
	if strings.EqualFold(arg, "all") {
		return 0, true, nil
	}
	kind, err := ledger.ParseKind(arg)
	if err != nil {
		return 0, false, err
	}
	return kind, false, nil
}

func entityNames() string {
	names := make([]string, 0, len(ledger.Kinds))
	for _, k := range ledger.Kinds {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

type printer struct {
	w    io.Writer
	json bool
}

func (p printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes aligned rows; the first row is the header.
func (p printer) table(rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
