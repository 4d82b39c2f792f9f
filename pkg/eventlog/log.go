// Package eventlog is the durable, append-only log of release events,
// and the machinery for consuming it by tag from a stored offset.
package eventlog

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"

	"github.com/fluxcd/provisioner/pkg/release"
)

// ErrConflict is returned by Append when the expected sequence number
// is out of date, i.e., another writer appended to the same release.
var ErrConflict = errors.New("concurrent append to release event log")

// Record is an event as stored in the log.
type Record struct {
	// Position orders all records in the log; it only ever grows.
	Position  int64
	ReleaseID string
	// Seq is the 1-based position of the event within its release.
	Seq   int64
	Tag   string
	Event release.Event
}

// Store is the event log.
type Store interface {
	// Append adds events for a release, provided the release has
	// exactly expectedSeq events so far; otherwise it returns
	// ErrConflict and appends nothing.
	Append(ctx context.Context, id string, expectedSeq int64, events ...release.Event) error
	// Load returns all events for a release, in order.
	Load(ctx context.Context, id string) ([]Record, error)
	// ReadTag returns up to limit records with the tag, in position
	// order, starting after the given position.
	ReadTag(ctx context.Context, tag string, after int64, limit int) ([]Record, error)
}

// OffsetStore keeps the position each named consumer has reached,
// per tag.
type OffsetStore interface {
	Offset(ctx context.Context, consumer, tag string) (int64, error)
	SetOffset(ctx context.Context, consumer, tag string, position int64) error
}

const (
	DefaultTagName = "provisioning"
	DefaultShards  = 4
)

// Tags shards releases over a fixed number of tags, so that
// consumers and schedulers can split the work between processes.
type Tags struct {
	Name   string
	Shards int
}

// DefaultTags are the tags releases are sharded over.
var DefaultTags = Tags{Name: DefaultTagName, Shards: DefaultShards}

// For returns the tag of a release.
func (t Tags) For(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return t.tag(int(h.Sum32() % uint32(t.Shards)))
}

// All returns every tag, in shard order.
func (t Tags) All() []string {
	tags := make([]string, t.Shards)
	for i := range tags {
		tags[i] = t.tag(i)
	}
	return tags
}

// Select returns the tags of the given shards; no shards means all
// of them. Shards out of range are ignored.
func (t Tags) Select(shards []int) []string {
	if len(shards) == 0 {
		return t.All()
	}
	var tags []string
	seen := map[int]bool{}
	for _, s := range shards {
		if s < 0 || s >= t.Shards || seen[s] {
			continue
		}
		seen[s] = true
		tags = append(tags, t.tag(s))
	}
	return tags
}

func (t Tags) tag(shard int) string {
	return t.Name + strconv.Itoa(shard)
}

// Events returns the events of the records.
func Events(records []Record) []release.Event {
	events := make([]release.Event, len(records))
	for i := range records {
		events[i] = records[i].Event
	}
	return events
}
