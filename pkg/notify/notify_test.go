package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/inspectflow"
	"github.com/anggasct/inspectflow/pkg/notify"
	"github.com/anggasct/inspectflow/pkg/store/memory"
)

type published struct {
	subject string
	event   notify.Event
}

type fakePublisher struct {
	mutex sync.Mutex
	msgs  []published
	fail  bool
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.fail {
		return nil, errors.New("nats: no responders available for request")
	}
	var ev notify.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	p.msgs = append(p.msgs, published{subject: subject, event: ev})
	return &jetstream.PubAck{Stream: "INSPECTFLOW", Sequence: uint64(len(p.msgs))}, nil
}

func (p *fakePublisher) subjects() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.subject
	}
	return out
}

func newEngine(t *testing.T, pub notify.Publisher) *inspectflow.Engine {
	t.Helper()
	engine, err := inspectflow.NewBuilder().
		Store(memory.New()).
		Observer(notify.New(pub)).
		Build()
	require.NoError(t, err)
	return engine
}

func TestNotifier_PublishesTransitionsAndPending(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	engine := newEngine(t, pub)

	sub, err := engine.Create(ctx, inspectflow.TestSupervisor, inspectflow.CreateInput{})
	require.NoError(t, err)
	require.NoError(t, inspectflow.DriveTo(ctx, engine, sub.ID, inspectflow.StatusBDProcurementReview))

	assert.Equal(t, []string{
		"inspectflow.created",
		"inspectflow.transition.approve",
		"inspectflow.pending.operations_manager",
		"inspectflow.transition.approve",
		"inspectflow.pending.business_development",
		"inspectflow.pending.procurement",
	}, pub.subjects())

	last := pub.msgs[len(pub.msgs)-1].event
	assert.Equal(t, notify.EventPending, last.Type)
	assert.Equal(t, inspectflow.RoleProcurement, last.Recipient)
	assert.Equal(t, sub.ID, last.SubmissionID)
	assert.Equal(t, "Forwarded to Business Development and Procurement", last.Message)
	assert.NotEmpty(t, last.ID)
}

func TestNotifier_RejectCarriesReason(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	engine := newEngine(t, pub)

	sub, err := engine.Create(ctx, inspectflow.TestSupervisor, inspectflow.CreateInput{Signature: "sig"})
	require.NoError(t, err)
	_, err = engine.Reject(ctx, sub.ID, inspectflow.TestOperationsManager, "incomplete photos")
	require.NoError(t, err)

	var reject, pending *notify.Event
	for i := range pub.msgs {
		switch pub.msgs[i].subject {
		case "inspectflow.transition.reject":
			reject = &pub.msgs[i].event
		case "inspectflow.pending.supervisor":
			pending = &pub.msgs[i].event
		}
	}
	require.NotNil(t, reject)
	require.NotNil(t, pending)
	assert.Equal(t, "incomplete photos", reject.Reason)
	assert.Equal(t, inspectflow.StatusRejected, reject.To)
}

func TestNotifier_PublishFailureDoesNotFailCommand(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{fail: true}
	engine := newEngine(t, pub)

	sub, err := engine.Create(ctx, inspectflow.TestSupervisor, inspectflow.CreateInput{})
	require.NoError(t, err)

	res, err := engine.Approve(ctx, sub.ID, inspectflow.TestSupervisor, inspectflow.TestSignature(inspectflow.TestSupervisor))
	require.NoError(t, err)
	assert.Equal(t, inspectflow.StatusOperationsManagerReview, res.NewStatus)
}

func TestNotifier_SubjectPrefix(t *testing.T) {
	n := notify.New(&fakePublisher{}, notify.WithSubjectPrefix("plant7.inspections"))
	assert.Equal(t, "plant7.inspections.pending.general_manager", n.PendingSubject(inspectflow.RoleGeneralManager))
	assert.Equal(t, "plant7.inspections.transition.resubmit", n.TransitionSubject(inspectflow.ActionResubmit))
}
