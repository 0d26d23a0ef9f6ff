package core

import (
	"fmt"
	"strings"
	"sync"
)

// IssueType is the classification assigned to a turn by triage. The set is
// closed; use ParseIssueType to convert untrusted input.
type IssueType string

const (
	// IssueTypeBilling covers invoices, refunds and payments.
	IssueTypeBilling IssueType = "billing"
	// IssueTypeTechnical covers restarts, outages and service health.
	IssueTypeTechnical IssueType = "technical"
	// IssueTypeGeneral covers everything else (FAQ, policies).
	IssueTypeGeneral IssueType = "general"
)

// IssueTypes returns every valid IssueType in routing order.
func IssueTypes() []IssueType {
	return []IssueType{IssueTypeBilling, IssueTypeTechnical, IssueTypeGeneral}
}

// Valid reports whether t is a member of the closed set.
func (t IssueType) Valid() bool {
	switch t {
	case IssueTypeBilling, IssueTypeTechnical, IssueTypeGeneral:
		return true
	default:
		return false
	}
}

// Ptr returns a pointer to a copy of t.
func (t IssueType) Ptr() *IssueType { return &t }

// ParseIssueType converts a case-insensitive string into an IssueType.
func ParseIssueType(s string) (IssueType, error) {
	t := IssueType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("invalid issue type %q", s)
	}
	return t, nil
}

// SupportFields is the value form of the session record. Optional fields are
// pointers so "unknown" stays distinct from the empty string.
type SupportFields struct {
	Name          *string    `json:"name"`
	IsPremiumUser bool       `json:"is_premium_user"`
	IssueType     *IssueType `json:"issue_type"`
	AccountID     *string    `json:"account_id"`
}

// HasIssueType reports whether the committed classification equals t.
// An unset classification never matches.
func (f SupportFields) HasIssueType(t IssueType) bool {
	return f.IssueType != nil && *f.IssueType == t
}

// Map renders the fields as a plain map (nil for unknown values), used for
// instruction templates and snapshot display.
func (f SupportFields) Map() map[string]any {
	m := map[string]any{
		"name":            nil,
		"is_premium_user": f.IsPremiumUser,
		"issue_type":      nil,
		"account_id":      nil,
	}
	if f.Name != nil {
		m["name"] = *f.Name
	}
	if f.IssueType != nil {
		m["issue_type"] = string(*f.IssueType)
	}
	if f.AccountID != nil {
		m["account_id"] = *f.AccountID
	}
	return m
}

// String renders the fields in a compact, stable form.
func (f SupportFields) String() string {
	return fmt.Sprintf("{name: %s, is_premium_user: %t, issue_type: %s, account_id: %s}",
		optString(f.Name), f.IsPremiumUser, optIssueType(f.IssueType), optString(f.AccountID))
}

func (f SupportFields) clone() SupportFields {
	c := SupportFields{IsPremiumUser: f.IsPremiumUser}
	if f.Name != nil {
		c.Name = StringPtr(*f.Name)
	}
	if f.IssueType != nil {
		c.IssueType = f.IssueType.Ptr()
	}
	if f.AccountID != nil {
		c.AccountID = StringPtr(*f.AccountID)
	}
	return c
}

// SupportContext is the single mutable record shared by reference across a
// conversation. It is never replaced; every mutation is an in-place update
// serialized by an internal lock so at most one writer commits at a time.
type SupportContext struct {
	mu       sync.RWMutex
	fields   SupportFields
	revision uint64
}

// NewSupportContext creates the session record from the initialization fields.
func NewSupportContext(init SupportFields) *SupportContext {
	return &SupportContext{fields: init.clone()}
}

// Snapshot returns a copy of the latest committed state.
func (c *SupportContext) Snapshot() SupportFields {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fields.clone()
}

// Revision returns a counter incremented by every committed Update.
func (c *SupportContext) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// Update applies fn to the record while holding the write lock and returns the
// new revision. fn must not retain the pointer.
func (c *SupportContext) Update(fn func(f *SupportFields)) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.fields)
	c.revision++
	return c.revision
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

func optString(s *string) string {
	if s == nil {
		return "<unset>"
	}
	return fmt.Sprintf("%q", *s)
}

func optIssueType(t *IssueType) string {
	if t == nil {
		return "<unset>"
	}
	return string(*t)
}
