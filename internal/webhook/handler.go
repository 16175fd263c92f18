// Package webhook receives GitHub deliveries over HTTP and hands them to
// the processor one at a time.
package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/ealebed/gh-backport-command/internal/queue"
)

// maxPayloadBytes is GitHub's upper bound for a webhook payload.
const maxPayloadBytes = 25 << 20

// Handler is implemented by the processor layer.
type Handler interface {
	HandleEvent(ctx context.Context, msg queue.Message) (int, error)
}

// Server answers GitHub quickly and processes accepted deliveries in the
// background, strictly in arrival order.
type Server struct {
	Secret  []byte
	Handler Handler

	jobs chan queue.Message
}

// NewServer returns a server that holds up to backlog accepted deliveries
// while one is being processed.
func NewServer(secret []byte, h Handler, backlog int) *Server {
	if backlog < 1 {
		backlog = 1
	}
	return &Server{Secret: secret, Handler: h, jobs: make(chan queue.Message, backlog)}
}

// Run processes accepted deliveries until ctx is canceled. A delivery that
// has started runs to completion; queued ones are dropped.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-s.jobs:
			if ctx.Err() != nil {
				slog.Warn("webhook.dropped_on_shutdown", "delivery", msg.Delivery)
				return ctx.Err()
			}
			s.process(context.WithoutCancel(ctx), msg)
		}
	}
}

func (s *Server) process(ctx context.Context, msg queue.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("webhook.panic", "delivery", msg.Delivery, "panic", r)
		}
	}()
	code, err := s.Handler.HandleEvent(ctx, msg)
	if err != nil {
		slog.Warn("webhook.process_error", "delivery", msg.Delivery, "status", code, "err", err)
		return
	}
	slog.Info("webhook.processed", "delivery", msg.Delivery, "status", code)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if cerr := r.Body.Close(); cerr != nil {
			slog.Warn("http.body_close_error", "err", cerr)
		}
	}()

	msg := queue.Message{
		Event:     r.Header.Get("X-GitHub-Event"),
		Delivery:  r.Header.Get("X-GitHub-Delivery"),
		Signature: r.Header.Get("X-Hub-Signature-256"),
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		slog.Error("webhook.read_error", "delivery", msg.Delivery, "err", err)
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	msg.Payload = body

	if !queue.VerifySignature(s.Secret, msg.Signature, body) {
		slog.Error("webhook.sig_mismatch", "delivery", msg.Delivery, "event", msg.Event)
		http.Error(w, "signature mismatch", http.StatusUnauthorized)
		return
	}

	switch msg.Event {
	case "ping":
		w.WriteHeader(http.StatusOK)
		return
	case "issue_comment":
	default:
		slog.Debug("webhook.ignore_event", "delivery", msg.Delivery, "event", msg.Event)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	select {
	case s.jobs <- msg:
		slog.Debug("webhook.accepted", "delivery", msg.Delivery)
		w.WriteHeader(http.StatusAccepted)
	default:
		slog.Warn("webhook.backlog_full", "delivery", msg.Delivery)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}
}
