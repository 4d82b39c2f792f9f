package nats

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/nats-io/nats.go"

	"github.com/fluxcd/provisioner/pkg/bus"
	proverr "github.com/fluxcd/provisioner/pkg/errors"
	provmetrics "github.com/fluxcd/provisioner/pkg/metrics"
	"github.com/fluxcd/provisioner/pkg/release"
)

const (
	DefaultIntentSubject     = "core-subscription"
	DefaultProjectionSubject = "provisioning-release"
	DefaultQueueGroup        = "provisioning"

	encoderType = nats.JSON_ENCODER
)

var encoder = nats.EncoderForType(encoderType)

// Subjects names where intents are read from and projections go to.
type Subjects struct {
	Intents     string
	Projections string
	// QueueGroup shares the intents between the provisioners
	// subscribed, so each is handled once.
	QueueGroup string
}

var DefaultSubjects = Subjects{
	Intents:     DefaultIntentSubject,
	Projections: DefaultProjectionSubject,
	QueueGroup:  DefaultQueueGroup,
}

type NATS struct {
	url      string
	subjects Subjects
	// Publishing goes through the encoding connection. Intents are
	// received on the raw connection and decoded here, so a message
	// that does not decode can be logged and dropped.
	enc    *nats.EncodedConn
	raw    *nats.Conn
	logger log.Logger
}

var _ bus.Publisher = &NATS{}

func NewMessageBus(url string, subjects Subjects, logger log.Logger) (*NATS, error) {
	conn, err := nats.Connect(url, nats.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	encConn, err := nats.NewEncodedConn(conn, encoderType)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &NATS{
		url:      url,
		subjects: subjects,
		raw:      conn,
		enc:      encConn,
		logger:   logger,
	}, nil
}

// Publish sends the projection of a release.
func (n *NATS) Publish(ctx context.Context, p release.Projection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := n.enc.Publish(n.subjects.Projections, p)
	publishedCount.With(provmetrics.LabelSuccess, fmt.Sprint(err == nil)).Add(1)
	return err
}

// Subscribe dispatches each intent received to its release, until the
// context is cancelled or the subscription fails; either way the
// reason is put on done.
func (n *NATS) Subscribe(ctx context.Context, entities release.Entities, done chan<- error) {
	intents := make(chan *nats.Msg, 64)
	sub, err := n.raw.ChanQueueSubscribe(n.subjects.Intents, n.subjects.QueueGroup, intents)
	if err != nil {
		done <- err
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				done <- ctx.Err()
				return
			case msg := <-intents:
				// Handled in order, so intents for the same release
				// reach it in the order they were published.
				n.processIntent(ctx, entities, msg)
			}
		}
	}()
}

func (n *NATS) processIntent(ctx context.Context, entities release.Entities, msg *nats.Msg) {
	var in bus.Intent
	if err := encoder.Decode(msg.Subject, msg.Data, &in); err != nil {
		receivedCount.With(provmetrics.LabelOutcome, outcomeUndecodable).Add(1)
		n.logger.Log("subject", msg.Subject, "err", err, "dropped", "true")
		return
	}

	logger := log.With(n.logger, "release", in.ID, "operation", in.Operation)
	state, err := bus.Dispatch(ctx, entities, in)
	switch {
	case proverr.IsUser(err):
		receivedCount.With(provmetrics.LabelOutcome, outcomeInvalid).Add(1)
		logger.Log("err", err, "dropped", "true")
	case err != nil:
		// there is no redelivery; the intent is lost
		receivedCount.With(provmetrics.LabelOutcome, outcomeError).Add(1)
		logger.Log("err", err, "dropped", "true")
	default:
		receivedCount.With(provmetrics.LabelOutcome, outcomeDispatched).Add(1)
		logger.Log("status", state.Status)
	}
}

func (n *NATS) Close() {
	n.enc.Close()
}
