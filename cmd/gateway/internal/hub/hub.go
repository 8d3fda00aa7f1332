package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/quote-chart/pkg/models"
	"github.com/shubham-shewale/quote-chart/pkg/protocol"
)

const storeTimeout = 5 * time.Second

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// subscription tracks where a subscribed client's series ends, so pushes
// carry exactly the ticks it has not seen. The token is unknown until the
// client's first quotes_requested.
type subscription struct {
	token    models.QuotesRequest
	hasToken bool
}

type Hub struct {
	feed     string
	clients  map[ClientInterface]*subscription
	store    repository.QuoteStore
	logger   *zap.Logger
	mu       sync.Mutex
	refCount int
}

func NewHub(feed string, store repository.QuoteStore, logger *zap.Logger) *Hub {
	h := &Hub{
		feed:    feed,
		clients: make(map[ClientInterface]*subscription),
		store:   store,
		logger:  logger,
	}

	go h.store.RunPubSub(context.Background(), h.Broadcast)

	return h
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionQuotesRequested:
		h.handleQuotesRequested(client, req)
	case protocol.ActionSubscribe:
		h.handleSubscribe(client, req)
	case protocol.ActionUnsubscribe:
		h.handleUnsubscribe(client, req)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

func (h *Hub) handleQuotesRequested(client ClientInterface, req protocol.WSRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	batch, err := h.store.Quotes(ctx, req.Payload)
	if err != nil {
		if errors.Is(err, repository.ErrCursorAhead) || errors.Is(err, repository.ErrInvalidRequest) {
			h.sendError(client, req.ID, err.Error())
			return
		}
		h.logger.Error("Failed to read quotes", zap.String("client", client.ID()), zap.Error(err))
		h.sendError(client, req.ID, "quotes unavailable")
		return
	}

	client.SendJSON(protocol.WSResponse{Type: protocol.TypeQuotesSent, ID: req.ID, Data: batch})

	h.mu.Lock()
	// a push may already have moved the client past req; it rejects this reply then
	if sub, ok := h.clients[client]; ok && (!sub.hasToken || tokenKey(sub.token) == tokenKey(req.Payload)) {
		sub.token = NextToken(req.Payload, batch)
		sub.hasToken = true
	}
	h.mu.Unlock()
}

func (h *Hub) handleSubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Idempotency: Ignore if already subscribed
	if _, ok := h.clients[client]; ok {
		h.sendAck(client, req.ID, "success", "Already subscribed to "+h.feed)
		return
	}
	h.clients[client] = &subscription{}

	// Manage upstream subscription (Ref counting)
	h.refCount++
	if h.refCount == 1 {
		if err := h.store.SubscribeToFeed(context.Background(), h.feed); err != nil {
			h.logger.Error("Failed to subscribe upstream", zap.String("feed", h.feed), zap.Error(err))
		}
	}
	h.sendAck(client, req.ID, "success", "Subscribed to "+h.feed)
}

func (h *Hub) handleUnsubscribe(client ClientInterface, req protocol.WSRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		h.sendError(client, req.ID, "Not subscribed to "+h.feed)
		return
	}
	delete(h.clients, client)
	h.decreaseRefCount()
	h.sendAck(client, req.ID, "success", "Unsubscribed from "+h.feed)
}

func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.decreaseRefCount()
	}
	client.Close()
}

// Broadcast pushes every subscriber the ticks after its token. Clients that
// share a token share one store read and one encoded message.
func (h *Hub) Broadcast(feed string, meta models.FeedMeta) {
	if feed != h.feed {
		return
	}

	h.mu.Lock()
	groups := make(map[string][]ClientInterface)
	tokens := make(map[string]models.QuotesRequest)
	for c, sub := range h.clients {
		if !sub.hasToken {
			continue
		}
		k := tokenKey(sub.token)
		groups[k] = append(groups[k], c)
		tokens[k] = sub.token
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	for k, clients := range groups {
		token := tokens[k]
		batch, err := h.store.Quotes(ctx, token)
		if err != nil {
			h.logger.Warn("Skipping push", zap.String("token", k), zap.Error(err))
			continue
		}
		if batch.Points() == 0 {
			continue
		}
		msg, err := json.Marshal(protocol.WSResponse{Type: protocol.TypeQuotesSent, Data: batch})
		if err != nil {
			h.logger.Error("Failed to encode push", zap.Error(err))
			continue
		}
		next := NextToken(token, batch)

		h.mu.Lock()
		for _, c := range clients {
			sub, ok := h.clients[c]
			// a reply to the client's own request may have moved it meanwhile
			if !ok || !sub.hasToken || tokenKey(sub.token) != k {
				continue
			}
			sub.token = next
			c.SendBytes(msg)
		}
		h.mu.Unlock()
	}
	h.logger.Debug("Pushed feed update", zap.Int64("next_index", meta.NextIndex), zap.Int("groups", len(groups)))
}

// Subscribers returns how many clients receive pushes.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// NextToken is the token a client holds after merging batch, in the scheme of req.
func NextToken(req models.QuotesRequest, batch models.QuoteBatch) models.QuotesRequest {
	if req.FromIndex != nil {
		return models.SinceIndex(batch.NextIndex)
	}
	if batch.EndTimestampSec > *req.FromTimestampSec {
		return models.SinceTimestamp(batch.EndTimestampSec)
	}
	return req
}

func tokenKey(t models.QuotesRequest) string {
	if t.FromIndex != nil {
		return fmt.Sprintf("i:%d", *t.FromIndex)
	}
	if t.FromTimestampSec != nil {
		return fmt.Sprintf("t:%d", *t.FromTimestampSec)
	}
	return ""
}

func (h *Hub) decreaseRefCount() {
	h.refCount--
	if h.refCount <= 0 {
		if err := h.store.UnsubscribeFromFeed(context.Background(), h.feed); err != nil {
			h.logger.Error("Failed to unsubscribe upstream", zap.String("feed", h.feed), zap.Error(err))
		}
		h.refCount = 0
	}
}

func (h *Hub) sendAck(c ClientInterface, id, status, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeAck, ID: id, Status: status, Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: protocol.TypeError, ID: id, Status: "error", Message: msg})
}
