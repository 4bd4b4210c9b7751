package history

import "time"

// Entry is one row of the recent-links history.
type Entry struct {
	ID          string `json:"id"`
	OriginalURL string `json:"originalUrl"`
	ShortURL    string `json:"shortUrl"`
	CreatedAt   int64  `json:"createdAt"` // milliseconds since epoch
}

// Created returns CreatedAt as a time.Time.
func (e Entry) Created() time.Time {
	return time.UnixMilli(e.CreatedAt)
}
