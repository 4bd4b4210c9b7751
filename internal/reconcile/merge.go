// Package reconcile merges the server's view of the session's short links
// into the local history.
package reconcile

import (
	"context"

	"github.com/serroba/shortify/internal/client"
	"github.com/serroba/shortify/internal/history"
)

// History is the part of history.Store the merge needs.
type History interface {
	AddIfAbsent(ctx context.Context, originalURL, shortURL string) (history.Entry, bool)
	Capacity() int
}

// Merge adds every server record whose short URL is not already in h and
// returns the entries it added, in the order they were added.
//
// Local entries the server does not report are left alone, so a merge never
// shrinks the history. Only the first Capacity() records are considered.
func Merge(ctx context.Context, h History, records []client.URLRecord) []history.Entry {
	if len(records) == 0 {
		return nil
	}

	if limit := h.Capacity(); limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	var added []history.Entry

	for _, record := range records {
		if record.ShortURL == "" {
			continue
		}

		if entry, ok := h.AddIfAbsent(ctx, record.OriginalURL, record.ShortURL); ok {
			added = append(added, entry)
		}
	}

	return added
}
