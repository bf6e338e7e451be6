package remote

import (
	"context"
	"fmt"
)

// Paginate walks the connection named field, requesting pageSize nodes per
// page and handing each page to visit. The query must declare $first and
// $after variables. A request or visit error stops the walk.
func Paginate[T any](ctx context.Context, r Requester, query, field string, vars map[string]any, pageSize int, visit func(context.Context, []T) error) error {
	if pageSize <= 0 {
		pageSize = 100
	}
	var cursor *string
	for page := 1; ; page++ {
		args := make(map[string]any, len(vars)+2)
		for k, v := range vars {
			args[k] = v
		}
		args["first"] = pageSize
		args["after"] = cursor

		var data map[string]Connection[T]
		if err := r.Request(ctx, query, args, &data); err != nil {
			return fmt.Errorf("fetch %s page %d: %w", field, page, err)
		}
		conn, ok := data[field]
		if !ok {
			return &TransportError{Op: "decode", Err: fmt.Errorf("response has no %q connection", field)}
		}
		if len(conn.Nodes) > 0 {
			if err := visit(ctx, conn.Nodes); err != nil {
				return err
			}
		}
		if !conn.PageInfo.HasNextPage || conn.PageInfo.EndCursor == "" {
			return nil
		}
		next := conn.PageInfo.EndCursor
		cursor = &next
	}
}
