// Package notify publishes workflow events to NATS JetStream so the
// surrounding application can tell reviewers a submission awaits them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/anggasct/inspectflow"
)

// DefaultSubjectPrefix is the subject root for every published event
const DefaultSubjectPrefix = "inspectflow"

// Event types
const (
	EventTransition = "transition"
	EventPending    = "pending"
	EventCreated    = "created"
)

// Publisher is the part of jetstream.JetStream the notifier needs
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Event is the JSON payload of a published message
type Event struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	SubmissionID string             `json:"submission_id"`
	Action       inspectflow.Action `json:"action,omitempty"`
	From         inspectflow.Status `json:"from,omitempty"`
	To           inspectflow.Status `json:"to"`
	Actor        string             `json:"actor,omitempty"`
	ActorRole    inspectflow.Role   `json:"actor_role,omitempty"`
	Recipient    inspectflow.Role   `json:"recipient,omitempty"`
	Message      string             `json:"message,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	Version      int64              `json:"version"`
	At           time.Time          `json:"at"`
}

// Notifier is an inspectflow observer that publishes one transition event
// per committed change and one pending event per role the change notifies.
type Notifier struct {
	inspectflow.BaseObserver
	publisher Publisher
	prefix    string
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Notifier
type Option func(*Notifier)

// WithSubjectPrefix overrides DefaultSubjectPrefix
func WithSubjectPrefix(prefix string) Option {
	return func(n *Notifier) {
		n.prefix = prefix
	}
}

// WithTimeout bounds each publish call
func WithTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		n.timeout = timeout
	}
}

// WithLogger sets the logger for publish failures
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = logger
	}
}

// New creates a notifier on a JetStream publisher
func New(publisher Publisher, opts ...Option) *Notifier {
	n := &Notifier{
		publisher: publisher,
		prefix:    DefaultSubjectPrefix,
		timeout:   5 * time.Second,
		logger:    slog.Default().With("component", "notify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Connect dials NATS, opens JetStream and makes sure a stream captures the
// notifier's subjects. The returned close function drains the connection.
func Connect(ctx context.Context, url, stream string, opts ...Option) (*Notifier, func(), error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("get jetstream: %w", err)
	}

	n := New(js, opts...)
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{n.prefix + ".>"},
	})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}
	return n, func() { _ = conn.Drain() }, nil
}

// TransitionSubject returns the subject for a committed action
func (n *Notifier) TransitionSubject(action inspectflow.Action) string {
	return fmt.Sprintf("%s.%s.%s", n.prefix, EventTransition, action)
}

// PendingSubject returns the subject a role's inbox listens on
func (n *Notifier) PendingSubject(role inspectflow.Role) string {
	return fmt.Sprintf("%s.%s.%s", n.prefix, EventPending, role)
}

// OnCreated implements inspectflow.ExtendedObserver
func (n *Notifier) OnCreated(ctx context.Context, sub *inspectflow.Submission) {
	n.publish(ctx, n.prefix+"."+EventCreated, Event{
		Type:         EventCreated,
		SubmissionID: sub.ID,
		To:           sub.Status,
		Actor:        sub.CreatorID,
		ActorRole:    inspectflow.RoleSupervisor,
		Version:      sub.Version,
		At:           sub.CreatedAt,
	})
}

// OnTransition implements inspectflow.Observer
func (n *Notifier) OnTransition(ctx context.Context, change inspectflow.Change) {
	base := Event{
		SubmissionID: change.Submission.ID,
		Action:       change.Outcome.Action,
		From:         change.Outcome.From,
		To:           change.Outcome.To,
		Actor:        change.Command.Actor.ID,
		ActorRole:    change.Command.Actor.Role,
		Message:      change.Outcome.Message,
		Version:      change.Submission.Version,
		At:           change.Submission.UpdatedAt,
	}
	if change.Outcome.Action == inspectflow.ActionReject && change.Submission.Rejection != nil {
		base.Reason = change.Submission.Rejection.Reason
	}

	ev := base
	ev.Type = EventTransition
	n.publish(ctx, n.TransitionSubject(change.Outcome.Action), ev)

	for _, role := range change.Outcome.Notify {
		ev := base
		ev.Type = EventPending
		ev.Recipient = role
		n.publish(ctx, n.PendingSubject(role), ev)
	}
}

// publish sends one event. Failures are logged; the change is already
// committed and is not rolled back.
func (n *Notifier) publish(ctx context.Context, subject string, ev Event) {
	ev.ID = uuid.NewString()
	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("marshal workflow event", slog.String("subject", subject), slog.Any("error", err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if _, err := n.publisher.Publish(pubCtx, subject, data, jetstream.WithMsgID(ev.ID)); err != nil {
		n.logger.Warn("publish workflow event failed",
			slog.String("subject", subject),
			slog.String("submission_id", ev.SubmissionID),
			slog.Any("error", err))
		return
	}
	n.logger.Debug("published workflow event",
		slog.String("subject", subject),
		slog.String("submission_id", ev.SubmissionID))
}

var _ inspectflow.ExtendedObserver = (*Notifier)(nil)
