package store

import (
	"context"
	"time"

	"github.com/jacob-meacham/rotary-voip/callmanager"
	"github.com/jacob-meacham/rotary-voip/eventbus"
	"github.com/rs/zerolog"
)

// Sink persists the events a Bus publishes. Besides the database, its only
// state is the map from the manager's RecordID to the database row id:
// CallStartedEvent/CallEndedEvent both carry that RecordID, so concurrent
// calls would still serialize correctly even though only one is ever in
// flight at a time.
type Sink struct {
	db  *DB
	log zerolog.Logger

	ids map[int64]int64 // manager RecordID -> database row id
}

func NewSink(db *DB, log zerolog.Logger) *Sink {
	return &Sink{
		db:  db,
		log: log.With().Str("component", "store.sink").Logger(),
		ids: make(map[int64]int64),
	}
}

// Run drains ch, translating each event into a database write, until ch
// is closed or ctx is cancelled.
func (s *Sink) Run(ctx context.Context, ch <-chan callmanager.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Sink) handle(ctx context.Context, ev callmanager.Event) {
	switch e := ev.(type) {
	case callmanager.CallStartedEvent:
		s.onCallStarted(ctx, e)
	case callmanager.CallEndedEvent:
		s.onCallEnded(ctx, e)
	}
}

func (s *Sink) onCallStarted(ctx context.Context, e callmanager.CallStartedEvent) {
	callerID := nilIfEmpty(e.CallerID)
	dialedNumber := nilIfEmpty(e.DialedNumber)
	destination := nilIfEmpty(e.Destination)
	speedDialCode := nilIfEmpty(e.SpeedDialCode)

	id, err := s.db.Insert(ctx, time.Now().UTC().Format(time.RFC3339), e.Direction, callerID, dialedNumber, destination, speedDialCode)
	if err != nil {
		s.log.Error().Err(err).Int64("record_id", e.RecordID).Msg("failed to insert call log record")
		return
	}
	s.ids[e.RecordID] = id
}

func (s *Sink) onCallEnded(ctx context.Context, e callmanager.CallEndedEvent) {
	id, ok := s.ids[e.RecordID]
	if !ok {
		s.log.Warn().Int64("record_id", e.RecordID).Msg("call ended event for unknown record")
		return
	}
	delete(s.ids, e.RecordID)

	errMsg := nilIfEmpty(e.ErrorMessage)
	if err := s.db.CloseRecord(ctx, id, e.Status, e.DurationSeconds, errMsg); err != nil {
		s.log.Error().Err(err).Int64("record_id", e.RecordID).Msg("failed to close call log record")
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Subscribe is a convenience that subscribes to bus and runs the sink in
// its own goroutine until ctx is cancelled.
func Subscribe(ctx context.Context, bus *eventbus.Bus, db *DB, log zerolog.Logger) *Sink {
	sink := NewSink(db, log)
	ch, _ := bus.Subscribe("store")
	go sink.Run(ctx, ch)
	return sink
}
