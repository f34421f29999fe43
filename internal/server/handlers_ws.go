package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/objex-dev/objex/internal/exchange"
)

// handleStream runs back-to-back long-poll rounds over one WebSocket.
// Browsers cannot set custom headers on WebSocket requests, so the
// subscriber token may also come from ?subscriberId=.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.Header.Get(HeaderSubscriberID)
	if subscriberID == "" {
		subscriberID = r.URL.Query().Get("subscriberId")
	}
	ch, err := s.pollTarget(r, subscriberID)
	if err != nil {
		writeExchangeError(w, err)
		return
	}

	// The stream outlives the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Printf("ws: %s: clear write deadline: %v", ch.ID(), err)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin (subscriber token is the credential)
	})
	if err != nil {
		log.Printf("ws: accept failed for %s: %v", ch.ID(), err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())

	if err := s.streamDeliveries(ctx, conn, ch, subscriberID); err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

func (s *Server) streamDeliveries(ctx context.Context, conn *websocket.Conn, ch *exchange.Channel, subscriberID string) error {
	for {
		responder := newPollResponder(ctx)
		sub := exchange.NewSubscription(subscriberID, responder, s.cfg.Exchange.PollTimeout)
		if !ch.Subscribe(sub) {
			sub.Cancel()
			return fmt.Errorf("unknown subscriber")
		}

		select {
		case <-ctx.Done():
			return nil
		case res := <-responder.result:
			if res.status != http.StatusOK {
				// Round timed out with nothing to deliver.
				continue
			}
			if err := conn.Write(ctx, websocket.MessageBinary, res.body); err != nil {
				return nil
			}
		}
	}
}
