package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/shopsync/internal/engine"
	"github.com/odyssey-erp/shopsync/internal/ledger"
	"github.com/odyssey-erp/shopsync/jobs"
)

func newRunCommand(backend Backend, out func(*cobra.Command) printer) *cobra.Command {
	return &cobra.Command{
		Use:   "run <entity|all>",
		Short: "Run a sync batch in this process and wait for it",
		Long:  "Run a sync batch in this process. Entities: " + entityNames() + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, all, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			runner, err := backend.Runner(cmd.Context())
			if err != nil {
				return err
			}
			p := out(cmd)

			var results []engine.Result
			var batchErr error
			if all {
				res, err := runner.SyncAll(cmd.Context())
				if err != nil {
					return err
				}
				results, batchErr = res.Results, res.Err()
			} else {
				res, err := runner.Sync(cmd.Context(), kind)
				if err != nil {
					return err
				}
				results, batchErr = []engine.Result{res}, res.Err()
			}

			if p.json {
				if err := p.encode(results); err != nil {
					return err
				}
			} else {
				rows := [][]string{{"ENTITY", "RUN", "CREATED", "UPDATED", "FAILED", "TOTAL", "ERROR"}}
				for _, r := range results {
					rows = append(rows, []string{
						r.Entity, r.RunID, strconv.Itoa(r.Created), strconv.Itoa(r.Updated),
						strconv.Itoa(r.Failed), strconv.Itoa(r.Total), r.Error,
					})
				}
				if err := p.table(rows); err != nil {
					return err
				}
			}
			return batchErr
		},
	}
}

func newEnqueueCommand(backend Backend, out func(*cobra.Command) printer) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <entity|all>",
		Short: "Schedule a sync batch on the worker queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, all, err := parseTarget(args[0])
			if err != nil {
				return err
			}
			queue, err := backend.Queue(cmd.Context())
			if err != nil {
				return err
			}
			var id string
			target := "all"
			if all {
				id, err = queue.EnqueueAll(cmd.Context())
			} else {
				target = kind.String()
				id, err = queue.EnqueueSync(cmd.Context(), kind)
			}
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", target, err)
			}
			p := out(cmd)
			if p.json {
				return p.encode(map[string]string{"task_id": id, "entity": target})
			}
			_, err = fmt.Fprintf(p.w, "enqueued %s as %s\n", target, id)
			return err
		},
	}
}

func newQueueCommand(backend Backend, out func(*cobra.Command) printer) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show worker queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inspector, err := backend.Inspector(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := jobs.InspectQueue(inspector)
			if err != nil {
				return err
			}
			p := out(cmd)
			if p.json {
				return p.encode(stats)
			}
			return p.table([][]string{
				{"QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED"},
				{
					stats.Queue, strconv.Itoa(stats.Pending), strconv.Itoa(stats.Active),
					strconv.Itoa(stats.Scheduled), strconv.Itoa(stats.Retry), strconv.Itoa(stats.Archived),
				},
			})
		},
	}
}

func newLogCommand(backend Backend, out func(*cobra.Command) printer) *cobra.Command {
	var (
		entity  string
		outcome string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "List recent sync events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter ledger.RecentFilter
			if entity != "" {
				kind, err := ledger.ParseKind(entity)
				if err != nil {
					return err
				}
				filter.Kind = kind
			}
			if outcome != "" {
				o := ledger.Outcome(strings.ToUpper(outcome))
				switch o {
				case ledger.OutcomeSuccess, ledger.OutcomeError, ledger.OutcomeStarted:
					filter.Outcome = o
				default:
					return fmt.Errorf("unknown outcome %q", outcome)
				}
			}
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			filter.Limit = limit

			events, err := backend.Events(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := events.Recent(cmd.Context(), filter)
			if err != nil {
				return err
			}
			p := out(cmd)
			if p.json {
				views := make([]eventView, 0, len(rows))
				for _, evt := range rows {
					views = append(views, eventView{
						ID: evt.ID, Entity: evt.Kind.String(), EntityID: evt.EntityID, Action: evt.Action,
						Outcome: string(evt.Outcome), Message: evt.Message, Detail: evt.Detail, At: evt.At,
					})
				}
				return p.encode(views)
			}
			table := [][]string{{"AT", "ENTITY", "ID", "ACTION", "OUTCOME", "MESSAGE"}}
			for _, evt := range rows {
				id := "-"
				if evt.EntityID != nil {
					id = strconv.FormatInt(*evt.EntityID, 10)
				}
				table = append(table, []string{
					evt.At.UTC().Format(time.RFC3339), evt.Kind.String(), id,
					evt.Action, string(evt.Outcome), evt.Message,
				})
			}
			return p.table(table)
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "only events for this entity kind")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only events with this outcome (success, error, started)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	return cmd
}

type eventView struct {
	ID       int64          `json:"id"`
	Entity   string         `json:"entity"`
	EntityID *int64         `json:"entity_id,omitempty"`
	Action   string         `json:"action"`
	Outcome  string         `json:"outcome"`
	Message  string         `json:"message,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
	At       time.Time      `json:"at"`
}
