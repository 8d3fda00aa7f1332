package models

import "fmt"

// Redis layout shared by the processor (writer) and the gateway (reader).

// QuotesKey is the list holding one ticker's quotes, oldest first.
func QuotesKey(feed string, ticker int) string {
	return fmt.Sprintf("quotes:%s:%d", feed, ticker)
}

// MetaKey holds the feed's FeedMeta as JSON.
func MetaKey(feed string) string {
	return fmt.Sprintf("quotes:%s:meta", feed)
}

// FeedChannel is the pub/sub channel notified after every applied tick.
func FeedChannel(feed string) string {
	return fmt.Sprintf("quotes.%s", feed)
}
