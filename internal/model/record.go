// Package model defines the shared observation record and identity types
// used by every ingestion source and by the history store.
package model

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Identity is the ordered tuple of strings that uniquely determines one
// observation's slot in a history log. By convention the leading elements
// name the observed entity (series id, market, index) and the final element
// is the observation date or timestamp.
type Identity []string

// Equal reports whether two identities match element for element.
func (id Identity) Equal(other Identity) bool {
	if len(id) != len(other) {
		return false
	}
	for i := range id {
		if id[i] != other[i] {
			return false
		}
	}
	return true
}

// String returns the tuple joined with "|", e.g. "TWSE|2024-01-02".
func (id Identity) String() string {
	return strings.Join(id, "|")
}

// Entity returns the entity portion of the identity: every element except
// the trailing date/timestamp. A single-element identity is its own entity.
func (id Identity) Entity() string {
	if len(id) <= 1 {
		return id.String()
	}
	return Identity(id[:len(id)-1]).String()
}

// Record is one data point for one tracked entity at one point in time.
// Payload values are either a finite number or nil, meaning "not observed".
type Record struct {
	Identity Identity            `json:"identity"`
	DataDate string              `json:"data_date,omitempty"`
	RunTS    string              `json:"run_ts_utc,omitempty"`
	Payload  map[string]*float64 `json:"payload"`
}

// Validate checks a record for structural well-formedness. It does not
// validate source-specific semantics, only the shape the history store
// depends on: a non-empty identity with non-blank elements, a payload map,
// and finite payload values. A non-nil error means "drop this record".
func Validate(r Record) error {
	if len(r.Identity) == 0 {
		return eris.New("record: empty identity")
	}
	for i, part := range r.Identity {
		if strings.TrimSpace(part) == "" {
			return eris.Errorf("record: blank identity element at %d", i)
		}
	}
	if r.Payload == nil {
		return eris.Errorf("record: %s: missing payload", r.Identity)
	}
	for field, v := range r.Payload {
		if v == nil {
			continue
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return eris.Errorf("record: %s: non-finite value for %s", r.Identity, field)
		}
	}
	return nil
}

// Float returns a pointer to v, for building payloads inline.
func Float(v float64) *float64 {
	return &v
}
