// Package changefeed fans row-level change notifications from the backing
// store out to any number of in-process subscribers. One backend channel is
// opened per table and shared by every subscriber of that table.
package changefeed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table names a logical table that carries a change feed.
type Table string

const (
	Appointments   Table = "appointments"
	Patients       Table = "patients"
	Doctors        Table = "doctors"
	MedicalRecords Table = "medical_records"
	Notifications  Table = "notifications"
	CenterSettings Table = "center_settings"
)

// AllTables lists every table with a change feed.
var AllTables = []Table{Appointments, Patients, Doctors, MedicalRecords, Notifications, CenterSettings}

// Valid reports whether t is one of the known tables.
func (t Table) Valid() bool {
	for _, known := range AllTables {
		if t == known {
			return true
		}
	}
	return false
}

// Channel is the LISTEN/NOTIFY channel the database triggers publish on.
func (t Table) Channel() string {
	return "clinic_feed_" + string(t)
}

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one row change. Row holds the full row as JSON for inserts and
// updates; it may be empty when the row was too large for the notification,
// in which case subscribers re-read by ID.
type Event struct {
	Table      Table           `json:"table"`
	Op         Op              `json:"op"`
	ID         string          `json:"id"`
	Row        json.RawMessage `json:"row,omitempty"`
	ReceivedAt time.Time       `json:"-"`
}

// Decode unmarshals the row into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Row) == 0 {
		return fmt.Errorf("changefeed: %s event %s carries no row", e.Table, e.ID)
	}
	return json.Unmarshal(e.Row, v)
}

// payload is the JSON document built by the clinic_feed_notify trigger.
type payload struct {
	Schema string          `json:"schema,omitempty"`
	Table  Table           `json:"table"`
	Op     Op              `json:"op"`
	ID     string          `json:"id"`
	Row    json.RawMessage `json:"row,omitempty"`
}

// ParsePayload decodes a notification payload and returns the event and the
// schema it originated from.
func ParsePayload(data []byte) (Event, string, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, "", fmt.Errorf("decode feed payload: %w", err)
	}
	if !p.Table.Valid() {
		return Event{}, "", fmt.Errorf("unknown feed table %q", p.Table)
	}
	switch p.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Event{}, "", fmt.Errorf("unknown feed op %q", p.Op)
	}
	if p.ID == "" {
		return Event{}, "", fmt.Errorf("feed payload for %s has no id", p.Table)
	}
	return Event{Table: p.Table, Op: p.Op, ID: p.ID, Row: p.Row}, p.Schema, nil
}

// MarshalPayload encodes e in the trigger's payload format.
func MarshalPayload(e Event, schema string) ([]byte, error) {
	return json.Marshal(payload{Schema: schema, Table: e.Table, Op: e.Op, ID: e.ID, Row: e.Row})
}

// Filter selects which events reach a subscriber. A delete is judged on the
// old row it carries.
type Filter func(Event) bool

// FieldEquals matches events whose row has a string field equal to value.
// Events without a row pass so the subscriber can re-read them.
func FieldEquals(field, value string) Filter {
	return func(e Event) bool {
		if len(e.Row) == 0 {
			return true
		}
		var row map[string]json.RawMessage
		if err := json.Unmarshal(e.Row, &row); err != nil {
			return true
		}
		raw, ok := row[field]
		if !ok {
			return false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		return s == value
	}
}

// StaleReason tells a subscriber why its view may have missed events.
type StaleReason int

const (
	// ConnectionLost: the backend channel dropped; events may be missing
	// until it is re-established.
	ConnectionLost StaleReason = iota + 1
	// Reconnected: the channel is back. Nothing is replayed, so the
	// subscriber must re-pull everything it shows.
	Reconnected
)

func (r StaleReason) String() string {
	switch r {
	case ConnectionLost:
		return "connection_lost"
	case Reconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// Callbacks receive a subscription's events. Nil callbacks are skipped.
// They run on the table's delivery goroutine and should return quickly.
type Callbacks struct {
	OnInsert func(Event)
	OnUpdate func(Event)
	OnDelete func(id string)
	OnStale  func(StaleReason)
}

// Any returns Callbacks that call fn for every change and stale signal.
// Most views re-pull on any change, so this is the common case.
func Any(fn func()) Callbacks {
	return Callbacks{
		OnInsert: func(Event) { fn() },
		OnUpdate: func(Event) { fn() },
		OnDelete: func(string) { fn() },
		OnStale:  func(StaleReason) { fn() },
	}
}
