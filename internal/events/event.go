// Package events defines the events exchanged over the message bus.
package events

import "time"

// TopicURLShortened carries URLShortenedEvent.
const TopicURLShortened = "url.shortened"

// URLShortenedEvent is published after the service accepted a new short link.
// Consumers use it to schedule a refetch of the session's links.
type URLShortenedEvent struct {
	ID          string    `json:"id"`
	ShortURL    string    `json:"shortUrl"`
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}
