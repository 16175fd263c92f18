// Package queue decodes GitHub deliveries as they arrive on the work queue.
package queue

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnknownEvent is returned when the GitHub event type can be read from
// neither the envelope headers nor the payload.
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is the API-Gateway-like shape deliveries are forwarded in:
//
//	{
//	  "headers": {"X-GitHub-Event":"issue_comment", ...},
//	  "body": "<raw GH JSON as string>"  OR  { ... GH JSON object ... }
//	}
type Envelope struct {
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// Message is one decoded delivery.
type Message struct {
	Event     string // X-GitHub-Event, or inferred from the payload
	Delivery  string // X-GitHub-Delivery, "" when unknown
	Signature string // X-Hub-Signature-256, "" when absent
	Payload   []byte // raw GitHub JSON, never an envelope
}

// ParseSQSBody accepts either an Envelope or a bare GitHub payload. Header
// values win over inference; a bare payload never carries a signature.
func ParseSQSBody(body []byte) (Message, error) {
	b := bytes.TrimSpace(body)
	if len(b) == 0 {
		return Message{}, errors.New("empty message body")
	}

	var env Envelope
	if json.Unmarshal(b, &env) == nil && (env.Headers != nil || len(env.Body) > 0) {
		var m Message
		var s string
		if len(env.Body) > 0 && json.Unmarshal(env.Body, &s) == nil {
			m.Payload = []byte(s)
		} else {
			m.Payload = env.Body
		}

		m.Event = header(env.Headers, "X-GitHub-Event")
		m.Delivery = header(env.Headers, "X-GitHub-Delivery")
		m.Signature = header(env.Headers, "X-Hub-Signature-256")

		if m.Event == "" {
			ev, err := detectEventFromPayload(m.Payload)
			if err != nil {
				return Message{}, err
			}
			m.Event = ev
		}
		return m, nil
	}

	ev, err := detectEventFromPayload(b)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: ev, Payload: b}, nil
}

// header looks key up case-insensitively; API gateways lower-case header
// names.
func header(h map[string]string, key string) string {
	if v, ok := h[key]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// detectEventFromPayload infers the event type from top-level fields.
func detectEventFromPayload(p []byte) (string, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(p, &m); err != nil {
		return "", err
	}

	// issue_comment carries both the comment and the issue (or PR) it is on.
	_, hasComment := m["comment"]
	_, hasIssue := m["issue"]
	if hasComment && hasIssue {
		return "issue_comment", nil
	}

	if _, ok := m["pull_request"]; ok {
		if hasComment {
			return "pull_request_review_comment", nil
		}
		return "pull_request", nil
	}

	if _, ok := m["zen"]; ok {
		return "ping", nil
	}

	return "", ErrUnknownEvent
}

// VerifySignature checks an X-Hub-Signature-256 value against body. An
// empty secret accepts every delivery.
func VerifySignature(secret []byte, sig string, body []byte) bool {
	if len(secret) == 0 {
		return true
	}
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(sig)), []byte(want))
}
