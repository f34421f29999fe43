package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/objex-dev/objex/internal/exchange"
	"github.com/objex-dev/objex/internal/version"
)

var errMissingSubscriberID = errors.New("missing " + HeaderSubscriberID + " header")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    version.Version,
		"commit":     version.Commit,
		"go_version": version.GoVersion(),
		"uptime":     time.Since(s.startTime).Seconds(),
		"channels":   s.registry.Count(),
	})
}

func (s *Server) lookupChannel(r *http.Request) (*exchange.Channel, error) {
	channelID := r.PathValue("channel_id")
	ch, ok := s.registry.Get(channelID)
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", channelID, exchange.ErrChannelNotFound)
	}
	return ch, nil
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, statusFor(err), "invalid body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeExchangeError(w, err)
		return
	}

	_, sub, err := s.registry.Create(exchange.ChannelConfig{
		ChannelID: req.ChannelID,
		Question:  req.Question,
		Answer:    req.Answer,
	})
	if err != nil {
		writeExchangeError(w, err)
		return
	}

	log.Printf("channel: created %s", req.ChannelID)
	writeJSON(w, http.StatusOK, SubscriberResponse{
		Status:       http.StatusOK,
		SubscriberID: sub.ID(),
	})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	ch, err := s.lookupChannel(r)
	if err != nil {
		writeExchangeError(w, err)
		return
	}

	var req JoinRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, statusFor(err), "invalid body: "+err.Error())
		return
	}

	if req.Answer == "" {
		writeJSON(w, http.StatusOK, QuestionResponse{
			Status:   http.StatusOK,
			Question: ch.Question(),
		})
		return
	}

	if !ch.IsAnswer(req.Answer) {
		writeExchangeError(w, fmt.Errorf("channel %q: %w", ch.ID(), exchange.ErrWrongAnswer))
		return
	}

	sub := ch.CreateSubscriber()
	log.Printf("channel: %s joined by new subscriber", ch.ID())
	writeJSON(w, http.StatusOK, SubscriberResponse{
		Status:       http.StatusOK,
		SubscriberID: sub.ID(),
	})
}

// handlePublish answers 200 once the channel exists, even when the caller
// is not one of its subscribers; in that case nothing is broadcast.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	ch, err := s.lookupChannel(r)
	if err != nil {
		writeExchangeError(w, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxPayloadBytes))
	if err != nil {
		writeError(w, statusFor(err), "read body: "+err.Error())
		return
	}

	subscriberID := r.Header.Get(HeaderSubscriberID)
	if !ch.HasSubscriber(subscriberID) {
		log.Printf("publish: %s: ignoring publish from unknown subscriber", ch.ID())
	}

	delivered := ch.Publish(subscriberID, data)
	writeJSON(w, http.StatusOK, PublishResponse{
		Status:    http.StatusOK,
		Delivered: delivered,
	})
}

// pollTarget resolves the channel and subscriber a poll or stream is for.
func (s *Server) pollTarget(r *http.Request, subscriberID string) (*exchange.Channel, error) {
	ch, err := s.lookupChannel(r)
	if err != nil {
		return nil, err
	}
	if subscriberID == "" {
		return nil, errMissingSubscriberID
	}
	if !ch.HasSubscriber(subscriberID) {
		return nil, fmt.Errorf("channel %q: %w", ch.ID(), exchange.ErrUnknownSubscriber)
	}
	return ch, nil
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.Header.Get(HeaderSubscriberID)
	ch, err := s.pollTarget(r, subscriberID)
	if err != nil {
		writeExchangeError(w, err)
		return
	}

	responder := newPollResponder(r.Context())
	sub := exchange.NewSubscription(subscriberID, responder, s.cfg.Exchange.PollTimeout)
	if !ch.Subscribe(sub) {
		// Reclaimed by the sweep since the membership check.
		sub.Cancel()
		writeExchangeError(w, fmt.Errorf("channel %q: %w", ch.ID(), exchange.ErrUnknownSubscriber))
		return
	}

	select {
	case res := <-responder.result:
		if res.status != http.StatusOK {
			w.WriteHeader(res.status)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(res.body); err != nil {
			log.Printf("poll: %s: write payload: %v", ch.ID(), err)
		}
	case <-r.Context().Done():
		// The subscription saw the same cancellation and is already dead.
	}
}
