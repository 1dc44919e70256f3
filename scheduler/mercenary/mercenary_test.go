package mercenary

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
)

func TestResourcesSatisfies(t *testing.T) {
	tests := []struct {
		name string
		have Resources
		want Resources
		ok   bool
	}{
		{"exact match", Resources{"gpu": 1}, Resources{"gpu": 1}, true},
		{"surplus", Resources{"gpu": 2}, Resources{"gpu": 1}, true},
		{"insufficient", Resources{"gpu": 0}, Resources{"gpu": 1}, false},
		{"unknown key defaults zero", Resources{}, Resources{"gpu": 1}, false},
		{"empty requirements always satisfied", Resources{}, Resources{}, true},
		{"multiple keys all satisfied", Resources{"gpu": 2, "mem": 8}, Resources{"gpu": 1, "mem": 4}, true},
		{"multiple keys one missing", Resources{"gpu": 2, "mem": 2}, Resources{"gpu": 1, "mem": 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.have.Satisfies(tt.want); got != tt.ok {
				t.Errorf("Satisfies() = %v, want %v", got, tt.ok)
			}
		})
	}
}

// fakeSubscription is a no-op Subscription used by fakeConn.
type fakeSubscription struct{}

func (fakeSubscription) Unsubscribe() error { return nil }

// fakeConn is a hand-written stand-in for a live NATS connection. It
// records every published message and lets the test feed messages into the
// channel each ChanQueueSubscribe call was given.
type fakeConn struct {
	subscribed []string
	published  []*nats.Msg
	channels   map[string]chan *nats.Msg
}

func newFakeConn() *fakeConn {
	return &fakeConn{channels: make(map[string]chan *nats.Msg)}
}

func (f *fakeConn) ChanQueueSubscribe(subject, queue string, ch chan *nats.Msg) (Subscription, error) {
	f.subscribed = append(f.subscribed, subject+"/"+queue)
	f.channels[subject] = ch
	return fakeSubscription{}, nil
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.published = append(f.published, &nats.Msg{Subject: subject, Data: data})
	return nil
}

func TestWorkerHandleQuestAccept(t *testing.T) {
	conn := newFakeConn()
	w := New(conn, Resources{"gpu": 1})

	err := w.handleQuest(&nats.Msg{
		Reply: "reply.subject",
		Data:  []byte(`{"identifier":"q1","requirements":{"gpu":1}}`),
	})
	if err != nil {
		t.Fatalf("handleQuest: %v", err)
	}
	if len(conn.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(conn.published))
	}

	var ack Acknowledgement
	if err := sonic.Unmarshal(conn.published[0].Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != StatusAccept || ack.QuestID != "q1" || ack.WorkerID != w.ID() {
		t.Fatalf("ack = %+v, want Accept for q1 from %s", ack, w.ID())
	}
}

func TestWorkerHandleQuestDeny(t *testing.T) {
	conn := newFakeConn()
	w := New(conn, Resources{})

	err := w.handleQuest(&nats.Msg{
		Reply: "reply.subject",
		Data:  []byte(`{"identifier":"q2","requirements":{"gpu":1}}`),
	})
	if err != nil {
		t.Fatalf("handleQuest: %v", err)
	}

	var ack Acknowledgement
	if err := sonic.Unmarshal(conn.published[0].Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != StatusDeny || ack.WorkerID != "" {
		t.Fatalf("ack = %+v, want Deny with no worker id", ack)
	}
}

func TestWorkerHandleQuestNoReplySubjectSkipsPublish(t *testing.T) {
	conn := newFakeConn()
	w := New(conn, Resources{"gpu": 1})

	if err := w.handleQuest(&nats.Msg{Data: []byte(`{"identifier":"q3"}`)}); err != nil {
		t.Fatalf("handleQuest: %v", err)
	}
	if len(conn.published) != 0 {
		t.Fatalf("published %d messages, want 0 (no reply subject)", len(conn.published))
	}
}

func TestWorkerHandleQuestNoRequirementsIsTriviallySatisfied(t *testing.T) {
	conn := newFakeConn()
	w := New(conn, Resources{})

	if err := w.handleQuest(&nats.Msg{Reply: "r", Data: []byte(`{"identifier":"q4"}`)}); err != nil {
		t.Fatalf("handleQuest: %v", err)
	}

	var ack Acknowledgement
	if err := sonic.Unmarshal(conn.published[0].Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Status != StatusAccept {
		t.Fatalf("ack.Status = %v, want Accept", ack.Status)
	}
}

func TestWorkerHandleQuestDecodeError(t *testing.T) {
	conn := newFakeConn()
	w := New(conn, Resources{})

	err := w.handleQuest(&nats.Msg{Reply: "r", Data: []byte("not json")})
	if err == nil {
		t.Fatal("handleQuest: want decode error, got nil")
	}
}

func TestWorkerIDsAreUnique(t *testing.T) {
	conn := newFakeConn()
	a := New(conn, nil)
	b := New(conn, nil)
	if a.ID() == b.ID() {
		t.Fatalf("two workers share id %q", a.ID())
	}
}

func TestWorkerTopic(t *testing.T) {
	conn := newFakeConn()
	w := New(conn, nil)
	want := "guild.mercenary." + w.ID()
	if got := w.Topic(); got != want {
		t.Fatalf("Topic() = %q, want %q", got, want)
	}
}
