// Package records defines the uniform envelope every syncable row travels in.
//
// On the wire a record is a flat JSON object: the envelope keys (id,
// createdAt, updatedAt, syncStatus, lastSyncedAt, deleted) sit next to the
// business fields of the entity. Record keeps the envelope typed and the
// business fields in Fields.
package records

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
)

// Status is the local sync state of a record.
type Status string

const (
	StatusSynced   Status = "synced"
	StatusPending  Status = "pending"
	StatusConflict Status = "conflict"
)

// Envelope keys. They are never stored in Fields.
const (
	KeyID           = "id"
	KeyCreatedAt    = "createdAt"
	KeyUpdatedAt    = "updatedAt"
	KeySyncStatus   = "syncStatus"
	KeyLastSyncedAt = "lastSyncedAt"
	KeyDeleted      = "deleted"
)

var envelopeKeys = map[string]struct{}{
	KeyID: {}, KeyCreatedAt: {}, KeyUpdatedAt: {}, KeySyncStatus: {}, KeyLastSyncedAt: {}, KeyDeleted: {},
}

// Record is one row of a syncable table.
type Record struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SyncStatus   Status
	LastSyncedAt *time.Time
	Deleted      bool
	Fields       map[string]any
}

// Field returns the business field name as a string, or "" when it is
// absent or not a string.
func (r *Record) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[name].(string)
	return s
}

// Set assigns a business field. Envelope keys are ignored.
func (r *Record) Set(name string, v any) {
	if _, reserved := envelopeKeys[name]; reserved {
		return
	}
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	r.Fields[name] = v
}

// StripBookkeeping clears the fields that only have meaning on a client
// replica. The deleted flag is cleared too: deletions travel separately.
func (r *Record) StripBookkeeping() {
	r.SyncStatus = ""
	r.LastSyncedAt = nil
	r.Deleted = false
}

// Clone returns a deep enough copy for independent mutation of the
// envelope and the top level of Fields.
func (r *Record) Clone() *Record {
	c := *r
	if r.LastSyncedAt != nil {
		t := *r.LastSyncedAt
		c.LastSyncedAt = &t
	}
	if r.Fields != nil {
		c.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// Data encodes only the business fields.
func (r *Record) Data() ([]byte, error) {
	if r.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Fields)
}

// SetData replaces the business fields from a JSON object.
func (r *Record) SetData(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	for k := range envelopeKeys {
		delete(fields, k)
	}
	r.Fields = fields
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+6)
	for k, v := range r.Fields {
		if _, reserved := envelopeKeys[k]; !reserved {
			out[k] = v
		}
	}
	out[KeyID] = r.ID
	if !r.CreatedAt.IsZero() {
		out[KeyCreatedAt] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !r.UpdatedAt.IsZero() {
		out[KeyUpdatedAt] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.SyncStatus != "" {
		out[KeySyncStatus] = r.SyncStatus
	}
	if r.LastSyncedAt != nil {
		out[KeyLastSyncedAt] = r.LastSyncedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.Deleted {
		out[KeyDeleted] = true
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(b []byte) error {
	obj, err := decodeObject(b)
	if err != nil {
		return err
	}

	id, ok := obj[KeyID].(string)
	if !ok || id == "" {
		return fmt.Errorf("%w: missing id", common.ErrMalformedRecord)
	}

	var rec Record
	rec.ID = id

	if rec.CreatedAt, err = timeField(obj, KeyCreatedAt); err != nil {
		return err
	}
	if rec.UpdatedAt, err = timeField(obj, KeyUpdatedAt); err != nil {
		return err
	}
	if v, present := obj[KeyLastSyncedAt]; present && v != nil {
		ts, err := timeField(obj, KeyLastSyncedAt)
		if err != nil {
			return err
		}
		rec.LastSyncedAt = &ts
	}
	if v, present := obj[KeySyncStatus]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: syncStatus is not a string", common.ErrMalformedRecord)
		}
		rec.SyncStatus = Status(s)
	}
	if v, present := obj[KeyDeleted]; present && v != nil {
		d, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: deleted is not a boolean", common.ErrMalformedRecord)
		}
		rec.Deleted = d
	}

	for k := range envelopeKeys {
		delete(obj, k)
	}
	rec.Fields = obj

	*r = rec
	return nil
}

// PeekID extracts the id of a raw record without validating the rest, so a
// malformed record can still be reported by id. It returns "" when no
// string id can be found.
func PeekID(raw json.RawMessage) string {
	var probe struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	s, _ := probe.ID.(string)
	return s
}

// Parse decodes one raw wire record.
func Parse(raw json.RawMessage) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedRecord, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", common.ErrMalformedRecord)
	}
	return obj, nil
}

func timeField(obj map[string]any, key string) (time.Time, error) {
	v, present := obj[key]
	if !present || v == nil {
		return time.Time{}, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s is not a timestamp", common.ErrMalformedRecord, key)
	}
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", common.ErrMalformedRecord, key, err)
	}
	return ts.UTC(), nil
}

// Stamp normalizes a timestamp to the precision both replicas can store.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// TimeLayout is the fixed-width text form timestamps take in the local
// replica. Equal widths keep lexical and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return Stamp(t).Format(TimeLayout)
}

// ParseTime reads a TimeLayout timestamp. RFC 3339 input is accepted too.
func ParseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(TimeLayout, s); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
