package engine

import "github.com/celerix-dev/celerix-activity/pkg/schema"

// EventLog is one actor's ordered event sequence. Insertion order is kept;
// ids are unique; the oldest entries are evicted first once the limit is exceeded.
type EventLog struct {
	records []schema.EventRecord
}

func newEventLog(records []schema.EventRecord) *EventLog {
	return &EventLog{records: records}
}

// Len returns the number of records.
func (l *EventLog) Len() int { return len(l.records) }

// Records returns the records oldest-first. The slice must not be modified.
func (l *EventLog) Records() []schema.EventRecord { return l.records }

// Append adds rec to the end of the log and trims the front down to limit.
// It returns ErrEventExists if the id is already present, and otherwise the
// records that were evicted.
func (l *EventLog) Append(rec schema.EventRecord, limit int) ([]schema.EventRecord, error) {
	if l.index(rec.ID) >= 0 {
		return nil, ErrEventExists
	}
	l.records = append(l.records, rec)
	return l.trim(limit), nil
}

func (l *EventLog) trim(limit int) []schema.EventRecord {
	if limit < 1 {
		limit = 1
	}
	overflow := len(l.records) - limit
	if overflow <= 0 {
		return nil
	}
	evicted := make([]schema.EventRecord, overflow)
	copy(evicted, l.records[:overflow])
	l.records = append(l.records[:0], l.records[overflow:]...)
	return evicted
}

// Find returns a mutable pointer to the record with id, or nil.
func (l *EventLog) Find(id string) *schema.EventRecord {
	if i := l.index(id); i >= 0 {
		return &l.records[i]
	}
	return nil
}

func (l *EventLog) index(id string) int {
	for i := range l.records {
		if l.records[i].ID == id {
			return i
		}
	}
	return -1
}
