package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/odyssey-erp/shopsync/internal/gid"
	"github.com/odyssey-erp/shopsync/internal/ledger"
)

var validate = validator.New()

// check validates a mapped local record.
func check(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidRecord, err)
	}
	return nil
}

// childID validates the remote id of an owned child and returns it as the
// child key. Some child ids carry a query suffix (MailingAddress ids append
// ?model_name=...); the suffix is kept in the key but not parsed.
func childID(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	base, _, _ := strings.Cut(raw, "?")
	if _, err := gid.Parse(base); err != nil {
		return "", err
	}
	return raw, nil
}

// claim links an unlinked row found by natural key to remoteID. A row already
// linked elsewhere is never reassigned.
func claim(ctx context.Context, kind ledger.Kind, id int64, current *string, remoteID string, link func(context.Context, int64, string) error) error {
	if current != nil && *current != "" {
		if *current == remoteID {
			return nil
		}
		return fmt.Errorf("%w: %s %d already linked to %s", ledger.ErrRemoteIDConflict, kind, id, *current)
	}
	return link(ctx, id, remoteID)
}

// notFound treats ErrNotFound as a miss rather than a failure.
func notFound(err error) bool {
	return errors.Is(err, ledger.ErrNotFound)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// plainText returns the visible text of descriptionHtml with entities
// decoded. Block-level tags separate words; inline tags do not.
func plainText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			}
			if !inlineTags[a] {
				b.WriteByte(' ')
			}
		}
	}
}

var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Code: true, atom.Em: true,
	atom.I: true, atom.Mark: true, atom.S: true, atom.Small: true, atom.Span: true,
	atom.Strong: true, atom.Sub: true, atom.Sup: true, atom.U: true,
}

type runIDKey struct{}

// WithRunID tags ctx with the batch run id attached to every event.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the batch run id carried by ctx.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
