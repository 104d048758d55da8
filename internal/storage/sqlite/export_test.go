package sqlite

import (
	"context"

	"github.com/ashita-ai/automata/internal/storage"
)

// ExecForTest runs a raw statement on the transaction behind t.
func ExecForTest(ctx context.Context, t storage.Tx, query string, args ...any) error {
	_, err := t.(*tx).q.ExecContext(ctx, query, args...)
	return classify("exec", err)
}
