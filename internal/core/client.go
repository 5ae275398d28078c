package core

import (
	"fmt"
	"reflect"
	"time"
)

// ClientRecord is one provisioned or connected identity as seen by the
// registry. ID is immutable once assigned; SessionID may change across
// reconnects. Unknown attributes supplied at creation or via UpdateClient
// land in Attrs.
type ClientRecord struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"sid,omitempty"`
	Admin        bool           `json:"admin"`
	Connected    bool           `json:"connected"`
	Disconnected bool           `json:"disconnected"`
	Valid        bool           `json:"valid"`
	CheckedOut   bool           `json:"checkedOut"`
	Pwd          string         `json:"-"`
	Tag          string         `json:"tag,omitempty"`
	TagDate      time.Time      `json:"tagDate,omitzero"`
	Attrs        map[string]any `json:"attrs,omitempty"`
}

// NewClientRecord materializes defaults over attrs and returns the record.
// Function-valued attributes are rejected. The admin flag is only honored
// here; later patches cannot change a record's role.
func NewClientRecord(id string, attrs map[string]any) (*ClientRecord, error) {
	rec := &ClientRecord{
		ID:    id,
		Valid: true,
	}
	if v, present := attrs["admin"]; present {
		admin, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("attribute %q: wrong type: %w", "admin", ErrInvalidArgument)
		}
		rec.Admin = admin
	}
	if err := rec.apply(attrs); err != nil {
		return nil, err
	}
	return rec, nil
}

// apply merges a patch onto the record. Known keys update the corresponding
// field; everything else goes into Attrs. Identity keys (id, admin) are fixed
// at creation and silently skipped.
func (c *ClientRecord) apply(patch map[string]any) error {
	for k, v := range patch {
		if v != nil && reflect.ValueOf(v).Kind() == reflect.Func {
			return fmt.Errorf("attribute %q: %w", k, ErrInvalidArgument)
		}
	}
	for k, v := range patch {
		var ok bool
		switch k {
		case "sid":
			c.SessionID, ok = v.(string)
		case "connected":
			c.Connected, ok = v.(bool)
		case "disconnected":
			c.Disconnected, ok = v.(bool)
		case "valid":
			c.Valid, ok = v.(bool)
		case "checkedOut":
			c.CheckedOut, ok = v.(bool)
		case "pwd":
			c.Pwd, ok = v.(string)
		case "tag":
			c.Tag, ok = v.(string)
		case "tagDate":
			c.TagDate, ok = v.(time.Time)
		case "id", "admin":
			// identity and role are immutable once assigned
			ok = true
		default:
			if c.Attrs == nil {
				c.Attrs = make(map[string]any)
			}
			c.Attrs[k] = v
			ok = true
		}
		if !ok {
			return fmt.Errorf("attribute %q: wrong type: %w", k, ErrInvalidArgument)
		}
	}
	return nil
}

// Clone returns a copy safe to hand out across the registry boundary.
func (c *ClientRecord) Clone() *ClientRecord {
	out := *c
	if c.Attrs != nil {
		out.Attrs = make(map[string]any, len(c.Attrs))
		for k, v := range c.Attrs {
			out.Attrs[k] = v
		}
	}
	return &out
}
