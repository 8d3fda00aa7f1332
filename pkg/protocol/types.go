package protocol

import (
	"github.com/shubham-shewale/quote-chart/pkg/models"
)

const (
	ActionQuotesRequested = "quotes_requested"
	ActionSubscribe       = "subscribe"
	ActionUnsubscribe     = "unsubscribe"
)

const (
	TypeQuotesSent = "quotes_sent"
	TypeAck        = "ack"
	TypeError      = "error"
)

type WSRequest struct {
	Action  string               `json:"action"`
	Payload models.QuotesRequest `json:"payload"`
	ID      string               `json:"id,omitempty"`
}

type WSResponse struct {
	Type    string      `json:"type"`             // "ack", "error", "quotes_sent"
	ID      string      `json:"id,omitempty"`     // Matches request ID
	Status  string      `json:"status,omitempty"` // "success", "error"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// QuotesSent is the client side view of a "quotes_sent" response.
type QuotesSent struct {
	Type    string             `json:"type"`
	ID      string             `json:"id,omitempty"`
	Message string             `json:"message,omitempty"`
	Data    *models.QuoteBatch `json:"data,omitempty"`
}
