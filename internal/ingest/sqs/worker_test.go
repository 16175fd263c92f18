package sqs

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	awstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ealebed/gh-backport-command/internal/queue"
)

const commentPayload = `{"action":"created","issue":{"number":7},"comment":{"body":"/backport v1"}}`

// helper to build an SQS message with string attributes
func mkMessage(id, body string, attrs map[string]string) awstypes.Message {
	m := awstypes.Message{
		Body:          aws.String(body),
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("r-" + id),
	}
	if len(attrs) > 0 {
		m.MessageAttributes = make(map[string]awstypes.MessageAttributeValue, len(attrs))
		for k, v := range attrs {
			m.MessageAttributes[k] = awstypes.MessageAttributeValue{StringValue: aws.String(v)}
		}
	}
	return m
}

type fakeHandler struct {
	code int
	err  error
	got  []queue.Message
}

func (f *fakeHandler) HandleEvent(ctx context.Context, msg queue.Message) (int, error) {
	f.got = append(f.got, msg)
	return f.code, f.err
}

// fakeSQS serves batches in order, then cancels the worker's context.
type fakeSQS struct {
	batches  [][]awstypes.Message
	recvErr  error
	cancel   context.CancelFunc
	calls    int
	deleted  []string
	lastRecv *awssqs.ReceiveMessageInput
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *awssqs.ReceiveMessageInput, _ ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error) {
	f.calls++
	f.lastRecv = in
	if f.recvErr != nil && f.calls == 1 {
		return nil, f.recvErr
	}
	if len(f.batches) == 0 {
		f.cancel()
		return nil, ctx.Err()
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return &awssqs.ReceiveMessageOutput{Messages: b}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *awssqs.DeleteMessageInput, _ ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &awssqs.DeleteMessageOutput{}, nil
}

func Test_handleSQSMessage(t *testing.T) {
	tests := []struct {
		name      string
		msg       awstypes.Message
		handler   *fakeHandler
		wantCode  int
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "raw payload dispatched",
			msg:       mkMessage("m-1", commentPayload, nil),
			handler:   &fakeHandler{code: 200},
			wantCode:  200,
			wantCalls: 1,
		},
		{
			name:     "unknown event is a no-op",
			msg:      mkMessage("m-2", `{"hello":"world"}`, nil),
			handler:  &fakeHandler{},
			wantCode: 204,
		},
		{
			name:     "bad envelope",
			msg:      mkMessage("m-3", `not json`, nil),
			handler:  &fakeHandler{},
			wantCode: 400,
			wantErr:  true,
		},
		{
			name:     "empty body",
			msg:      awstypes.Message{MessageId: aws.String("m-4"), ReceiptHandle: aws.String("r")},
			handler:  &fakeHandler{},
			wantCode: 400,
			wantErr:  true,
		},
		{
			name:      "handler forgot the code on success",
			msg:       mkMessage("m-5", commentPayload, nil),
			handler:   &fakeHandler{},
			wantCode:  200,
			wantCalls: 1,
		},
		{
			name:      "handler forgot the code on failure",
			msg:       mkMessage("m-6", commentPayload, nil),
			handler:   &fakeHandler{err: errors.New("boom")},
			wantCode:  500,
			wantErr:   true,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Worker{Processor: tt.handler}
			code, err := w.handleSQSMessage(context.Background(), tt.msg)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(tt.handler.got) != tt.wantCalls {
				t.Errorf("handler calls = %d, want %d", len(tt.handler.got), tt.wantCalls)
			}
		})
	}
}

func Test_handleSQSMessage_AttributesFillHeaders(t *testing.T) {
	h := &fakeHandler{code: 200}
	w := &Worker{Processor: h}
	msg := mkMessage("m-1", commentPayload, map[string]string{
		"X-GitHub-Delivery":   "delivery-123",
		"X-Hub-Signature-256": "sha256=deadbeef",
	})
	if _, err := w.handleSQSMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	got := h.got[0]
	if got.Event != "issue_comment" || got.Delivery != "delivery-123" || got.Signature != "sha256=deadbeef" {
		t.Fatalf("unexpected message: %+v", got)
	}

	// without attributes the SQS message id stands in for the delivery id
	h.got = nil
	if _, err := w.handleSQSMessage(context.Background(), mkMessage("m-9", commentPayload, nil)); err != nil {
		t.Fatal(err)
	}
	if h.got[0].Delivery != "m-9" {
		t.Fatalf("delivery = %q, want m-9", h.got[0].Delivery)
	}
}

func Test_deletable(t *testing.T) {
	tests := []struct {
		code        int
		deleteOn4xx bool
		want        bool
	}{
		{200, false, true},
		{204, false, true},
		{400, true, true},
		{401, false, false},
		{500, true, false},
		{0, true, false},
	}
	for _, tt := range tests {
		if got := deletable(tt.code, tt.deleteOn4xx); got != tt.want {
			t.Errorf("deletable(%d, %v) = %v, want %v", tt.code, tt.deleteOn4xx, got, tt.want)
		}
	}
}

func TestWorker_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeSQS{
		cancel:  cancel,
		recvErr: errors.New("throttled"),
		batches: [][]awstypes.Message{{
			mkMessage("ok", commentPayload, nil),
			mkMessage("bad", `not json`, nil),
			{MessageId: aws.String("no-receipt"), Body: aws.String(commentPayload)},
		}},
	}
	h := &fakeHandler{code: 200}
	w := &Worker{
		Client:      client,
		QueueURL:    "https://sqs.eu-north-1.amazonaws.com/123/backport",
		DeleteOn4xx: false,
		Processor:   h,
		retryDelay:  1,
	}

	err := w.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if len(h.got) != 1 {
		t.Fatalf("handler calls = %d, want 1", len(h.got))
	}
	if len(client.deleted) != 1 || client.deleted[0] != "r-ok" {
		t.Fatalf("deleted = %v, want [r-ok]", client.deleted)
	}
	in := client.lastRecv
	if aws.ToString(in.QueueUrl) != w.QueueURL || in.MaxNumberOfMessages != 10 || in.WaitTimeSeconds != 10 || in.VisibilityTimeout != 120 {
		t.Fatalf("unexpected receive input: %+v", in)
	}
}

// cancelingHandler cancels the worker's context while handling a delivery.
type cancelingHandler struct {
	cancel context.CancelFunc
	seen   []error
}

func (h *cancelingHandler) HandleEvent(ctx context.Context, msg queue.Message) (int, error) {
	h.cancel()
	h.seen = append(h.seen, ctx.Err())
	return 200, nil
}

func TestWorker_RunFinishesInFlightMessageOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeSQS{
		cancel: cancel,
		batches: [][]awstypes.Message{{
			mkMessage("first", commentPayload, nil),
			mkMessage("second", commentPayload, nil),
		}},
	}
	h := &cancelingHandler{cancel: cancel}
	w := &Worker{Client: client, QueueURL: "https://sqs.eu-north-1.amazonaws.com/123/backport", Processor: h}

	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if len(h.seen) != 1 || h.seen[0] != nil {
		t.Fatalf("handler saw %v, want one uncanceled call", h.seen)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "r-first" {
		t.Fatalf("deleted = %v, want [r-first]", client.deleted)
	}
}

func TestWorker_RunRequiresDependencies(t *testing.T) {
	if err := (&Worker{}).Run(context.Background()); err == nil {
		t.Fatal("expected error for an unconfigured worker")
	}
}

func Test_vOrDefault(t *testing.T) {
	w := &Worker{}
	tests := []struct {
		v, def, want int32
	}{
		{0, 10, 10},
		{-1, 10, 10},
		{5, 10, 5},
	}
	for _, tt := range tests {
		if got := w.vOrDefault(tt.v, tt.def); got != tt.want {
			t.Errorf("vOrDefault(%d, %d) = %d, want %d", tt.v, tt.def, got, tt.want)
		}
	}
}
