package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-chart/pkg/models"
	"github.com/shubham-shewale/quote-chart/pkg/protocol"
)

const (
	DefaultReconnectWait = 2 * time.Second
	dialTimeout          = 5 * time.Second
	writeWait            = 5 * time.Second
	sendBuffer           = 16
	batchBuffer          = 16
)

// WSFeed keeps a WebSocket session to the gateway open, carrying quote
// requests out and quote batches back in.
type WSFeed struct {
	url           string
	dialer        ws.Dialer
	logger        *zap.Logger
	reconnectWait time.Duration

	connected chan struct{}
	batches   chan models.QuoteBatch
	send      chan []byte
}

func NewWSFeed(url string, reconnectWait time.Duration, logger *zap.Logger) *WSFeed {
	if reconnectWait <= 0 {
		reconnectWait = DefaultReconnectWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSFeed{
		url:           url,
		dialer:        ws.Dialer{Timeout: dialTimeout},
		logger:        logger,
		reconnectWait: reconnectWait,
		connected:     make(chan struct{}, 1),
		batches:       make(chan models.QuoteBatch, batchBuffer),
		send:          make(chan []byte, sendBuffer),
	}
}

// Connected fires once per successful handshake.
func (f *WSFeed) Connected() <-chan struct{} { return f.connected }

func (f *WSFeed) Batches() <-chan models.QuoteBatch { return f.batches }

// Request queues a quotes_requested message. It never blocks: while the
// session is down or backed up the request is dropped and the next poll retries.
func (f *WSFeed) Request(req models.QuotesRequest) {
	msg, err := json.Marshal(protocol.WSRequest{Action: protocol.ActionQuotesRequested, Payload: req})
	if err != nil {
		f.logger.Error("Failed to encode request", zap.Error(err))
		return
	}
	select {
	case f.send <- msg:
	default:
		f.logger.Debug("Send buffer full, dropping request")
	}
}

// Run dials the gateway and redials after every failure until ctx is done.
// Failures are logged; the chart keeps polling through reconnects.
func (f *WSFeed) Run(ctx context.Context) {
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("Gateway session ended, reconnecting",
			zap.Error(err), zap.Duration("wait", f.reconnectWait))

		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnectWait):
		}
	}
}

// lockedWriter serializes frames from the writer goroutine with the pongs
// written by the read loop.
type lockedWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.Write(p)
}

func (w *lockedWriter) writeText(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsutil.WriteClientText(w.conn, p)
}

func (f *WSFeed) session(ctx context.Context) error {
	conn, br, _, err := f.dialer.Dial(ctx, f.url)
	if err != nil {
		return err
	}
	f.logger.Info("Connected to gateway", zap.String("url", f.url))

	sessCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		conn.Close()
		wg.Wait()
	}()

	w := &lockedWriter{conn: conn}
	subscribe, _ := json.Marshal(protocol.WSRequest{Action: protocol.ActionSubscribe})
	if err := w.writeText(subscribe); err != nil {
		return err
	}

	select {
	case f.connected <- struct{}{}:
	default:
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-sessCtx.Done()
		conn.Close() // unblocks the read loop
	}()
	go func() {
		defer wg.Done()
		f.writeLoop(sessCtx, w, cancel)
	}()

	var r io.Reader = conn
	if br != nil {
		r = br
	}
	rw := struct {
		io.Reader
		io.Writer
	}{r, w}

	for {
		data, op, err := wsutil.ReadServerData(rw)
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return nil
			}
			return err
		}
		if op != ws.OpText {
			continue
		}
		if !f.dispatch(sessCtx, data) {
			return nil
		}
	}
}

func (f *WSFeed) writeLoop(ctx context.Context, w *lockedWriter, cancel context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.send:
			if err := w.writeText(msg); err != nil {
				f.logger.Warn("Write to gateway failed", zap.Error(err))
				cancel()
				return
			}
		}
	}
}

// dispatch decodes one server message. It reports false once ctx is done.
func (f *WSFeed) dispatch(ctx context.Context, data []byte) bool {
	var msg protocol.QuotesSent
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Warn("Invalid message from gateway", zap.Error(err))
		return true
	}

	switch msg.Type {
	case protocol.TypeQuotesSent:
		if msg.Data == nil {
			f.logger.Warn("quotes_sent without data")
			return true
		}
		select {
		case f.batches <- *msg.Data:
		case <-ctx.Done():
			return false
		}
	case protocol.TypeError:
		f.logger.Warn("Gateway error", zap.String("message", msg.Message))
	case protocol.TypeAck:
		f.logger.Debug("Gateway ack", zap.String("message", msg.Message))
	default:
		f.logger.Debug("Ignoring message", zap.String("type", msg.Type))
	}
	return true
}
