// Package mercenary implements the work-dispatch scheduler: a worker agent
// that subscribes to a broadcast quest-board topic and its own per-worker
// unicast topic on a NATS pub-sub bus, decodes quest requests, checks
// whether its advertised capabilities satisfy the quest's resource
// requirements, and publishes an accept/deny acknowledgement on the
// quest's reply subject when one is present.
package mercenary

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/gogpu/tensor"
	"github.com/gogpu/tensor/internal/obs"
)

// Topic and queue-group constants for the guild pub-sub namespace.
const (
	// QuestBoardTopic is the broadcast topic every mercenary subscribes to.
	QuestBoardTopic = "guild.quest.board"
	// DefaultParty is the queue group used for the quest-board subscription,
	// so exactly one subscriber per party receives a given broadcast quest.
	DefaultParty = "guild.default.party"
	// mercenaryTopicPrefix namespaces a worker's unicast topic.
	mercenaryTopicPrefix = "guild.mercenary"
)

// WorkerTopic returns the unicast topic for the mercenary identified by id.
func WorkerTopic(id string) string {
	return fmt.Sprintf("%s.%s", mercenaryTopicPrefix, id)
}

// Resources is a set of named resource amounts, used both to advertise a
// worker's capabilities and to express a quest's requirements.
type Resources map[string]uint64

// Satisfies reports whether r provides at least the amount requested for
// every resource key named in req. A key absent from r defaults to zero
// supply and therefore fails any non-zero requirement.
func (r Resources) Satisfies(req Resources) bool {
	for key, amount := range req {
		if r[key] < amount {
			return false
		}
	}
	return true
}

// Quest is a unit of work broadcast on the quest board or addressed to a
// specific mercenary. Requirements is optional: its absence means the
// quest is trivially satisfied by any worker.
type Quest struct {
	Identifier   string    `json:"identifier"`
	Requirements Resources `json:"requirements,omitempty"`
}

// AckStatus is the outcome a mercenary reports for a quest.
type AckStatus string

const (
	// StatusAccept means the worker's capabilities satisfy the quest.
	StatusAccept AckStatus = "ACCEPT"
	// StatusDeny means they do not.
	StatusDeny AckStatus = "DENY"
)

// Acknowledgement is published on a quest's reply subject, when present.
// WorkerID is populated only on acceptance.
type Acknowledgement struct {
	QuestID  string    `json:"quest_id"`
	Status   AckStatus `json:"status"`
	WorkerID string    `json:"worker_id,omitempty"`
}

// Subscription is the handle returned by a queue subscription, narrowed to
// the single method a handler loop needs.
type Subscription interface {
	Unsubscribe() error
}

// Conn abstracts over the pub-sub bus client a Worker talks to, so tests
// can supply a fake in place of a live NATS connection.
type Conn interface {
	// ChanQueueSubscribe delivers messages on ch for subject, load-balanced
	// across every subscriber sharing queue.
	ChanQueueSubscribe(subject, queue string, ch chan *nats.Msg) (Subscription, error)
	// Publish sends data to subject.
	Publish(subject string, data []byte) error
}

// NatsConn adapts a *nats.Conn to the Conn interface used by Worker.
type NatsConn struct {
	*nats.Conn
}

// ChanQueueSubscribe implements Conn.
func (c NatsConn) ChanQueueSubscribe(subject, queue string, ch chan *nats.Msg) (Subscription, error) {
	return c.Conn.ChanQueueSubscribe(subject, queue, ch)
}

var _ Conn = NatsConn{}

// Worker subscribes to the quest board and its own unicast topic, matching
// quest requirements against its advertised capabilities.
type Worker struct {
	id           uuid.UUID
	conn         Conn
	capabilities Resources
}

// New assigns a fresh worker identity (a UUID) and returns a Worker bound
// to conn, advertising capabilities.
func New(conn Conn, capabilities Resources) *Worker {
	return &Worker{id: uuid.New(), conn: conn, capabilities: capabilities}
}

// ID returns the worker's UUID-shaped identity as a string.
func (w *Worker) ID() string { return w.id.String() }

// Topic returns the worker's unicast topic.
func (w *Worker) Topic() string { return WorkerTopic(w.ID()) }

// Routine joins the quest board (broadcast, queue group DefaultParty) and
// the worker's own unicast topic (queue group = worker id) and runs until
// both handlers return. Per-handler errors are joined in the returned
// error; the routine itself does not restart a failed handler.
func (w *Worker) Routine() error {
	obs.Logger().Info("mercenary has been recruited for operations", "worker_id", w.ID())

	channels := [2]struct{ topic, group string }{
		{QuestBoardTopic, DefaultParty},
		{w.Topic(), w.ID()},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(channels))
	wg.Add(len(channels))
	for i, ch := range channels {
		i, ch := i, ch
		go func() {
			defer wg.Done()
			errs[i] = w.handler(ch.topic, ch.group)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// handler subscribes to topic as part of queueGroup and processes every
// inbound quest until the subscription's channel closes. A transport
// failure ends the handler with that error; a malformed quest is logged and
// skipped.
func (w *Worker) handler(topic, queueGroup string) error {
	log := obs.Logger()
	log.Debug("mercenary is listening on board", "worker_id", w.ID(), "topic", topic, "queue_group", queueGroup)

	msgs := make(chan *nats.Msg, 64)
	sub, err := w.conn.ChanQueueSubscribe(topic, queueGroup, msgs)
	if err != nil {
		return newTransportError("queue_subscribe", "", err)
	}
	defer sub.Unsubscribe()

	for msg := range msgs {
		if err := w.handleQuest(msg); err != nil {
			var merr *Error
			if errors.As(err, &merr) && merr.Kind == tensor.TransportError {
				return err
			}
			log.Warn("mercenary quest handling failed", "worker_id", w.ID(), "error", err)
		}
	}

	log.Debug("mercenary is no longer looking at quest board", "worker_id", w.ID(), "topic", topic, "queue_group", queueGroup)
	return nil
}

// handleQuest decodes one inbound quest, checks it against w's
// capabilities, and — if the message carries a reply subject — publishes
// an Accept or Deny acknowledgement there.
func (w *Worker) handleQuest(msg *nats.Msg) error {
	var quest Quest
	if err := sonic.Unmarshal(msg.Data, &quest); err != nil {
		return newDecodeError("decode_quest", "", err)
	}

	log := obs.Logger()
	satisfied := quest.Requirements == nil || w.capabilities.Satisfies(quest.Requirements)
	if satisfied {
		log.Info("mercenary accepted quest", "worker_id", w.ID(), "quest_id", quest.Identifier)
	} else {
		log.Info("mercenary does not satisfy quest requirements", "worker_id", w.ID(), "quest_id", quest.Identifier)
	}

	if msg.Reply == "" {
		return nil
	}

	ack := Acknowledgement{QuestID: quest.Identifier, Status: StatusDeny}
	if satisfied {
		ack.Status = StatusAccept
		ack.WorkerID = w.ID()
	}

	payload, err := sonic.Marshal(ack)
	if err != nil {
		return newDecodeError("encode_ack", quest.Identifier, err)
	}

	log.Debug("relaying quest status", "worker_id", w.ID(), "quest_id", quest.Identifier, "reply", msg.Reply)
	if err := w.conn.Publish(msg.Reply, payload); err != nil {
		return newTransportError("publish_ack", quest.Identifier, err)
	}
	return nil
}

// Error is the scheduler's user-visible error type. It mirrors
// tensor.Error's shape but keys on a quest id (a string) rather than a
// numeric tensor node id, per §7's "offending node id or quest id".
type Error struct {
	Kind    tensor.Kind
	QuestID string
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mercenary: %s op=%s quest=%q: %s: %v", e.Kind, e.Op, e.QuestID, e.Message, e.Cause)
	}
	return fmt.Sprintf("mercenary: %s op=%s quest=%q: %s", e.Kind, e.Op, e.QuestID, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newTransportError(op, questID string, cause error) *Error {
	return &Error{Kind: tensor.TransportError, Op: op, QuestID: questID, Message: "transport failure", Cause: cause}
}

func newDecodeError(op, questID string, cause error) *Error {
	return &Error{Kind: tensor.DecodeError, Op: op, QuestID: questID, Message: "malformed payload", Cause: cause}
}
