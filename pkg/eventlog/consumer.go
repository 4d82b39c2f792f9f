package eventlog

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// DefaultBatchSize is how many records a consumer reads per tag and
// poll.
const DefaultBatchSize = 100

// Handler processes one record. A record is handled at least once:
// after a failure, the consumer offers it again on the next poll.
type Handler func(ctx context.Context, rec Record) error

// Consumer follows the log for a set of tags, handing each new record
// to its handler and remembering how far it got under its name.
type Consumer struct {
	Name      string
	Tags      []string
	Log       Store
	Offsets   OffsetStore
	Handle    Handler
	BatchSize int
	Logger    log.Logger
}

// Consume polls on every tick, until the context is done.
func (c *Consumer) Consume(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if err := c.Poll(ctx); err != nil && ctx.Err() == nil {
				c.Logger.Log("consumer", c.Name, "err", err)
			}
		}
	}
}

// Poll handles what has been appended to each tag since the last
// poll. Tags are independent: a failure in one does not hold up the
// others. The first error encountered is returned.
func (c *Consumer) Poll(ctx context.Context) error {
	var first error
	for _, tag := range c.Tags {
		n, err := c.pollTag(ctx, tag)
		if n > 0 {
			consumedRecords.With(consumerLabel, c.Name).Add(float64(n))
		}
		if err != nil && first == nil {
			first = errors.Wrapf(err, "tag %s", tag)
		}
	}
	return first
}

func (c *Consumer) pollTag(ctx context.Context, tag string) (int, error) {
	offset, err := c.Offsets.Offset(ctx, c.Name, tag)
	if err != nil {
		return 0, err
	}
	batch := c.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	records, err := c.Log.ReadTag(ctx, tag, offset, batch)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, rec := range records {
		if err := c.Handle(ctx, rec); err != nil {
			c.Logger.Log("consumer", c.Name, "release", rec.ReleaseID, "seq", rec.Seq, "err", err)
			return handled, err
		}
		if err := c.Offsets.SetOffset(ctx, c.Name, tag, rec.Position); err != nil {
			return handled, err
		}
		handled++
	}
	return handled, nil
}
