package lifecycle

import (
	"time"
)

// Tag keys stamped on every resource this tool creates. created-by
// carries the owner identity, created-on the RFC3339 creation time,
// created-from the creating instance id.
const (
	TagCreatedBy   = "created-by"
	TagCreatedOn   = "created-on"
	TagCreatedFrom = "created-from"
)

// DefaultGraceWindow is how long a freshly created interface is
// protected from cleanup.
const DefaultGraceWindow = 60 * time.Second

// Policy decides which resources cleanup may touch.
type Policy struct {
	// Owner is the identity expected in the created-by tag.
	Owner string
	// GraceWindow protects resources younger than this.
	GraceWindow time.Duration
}

// OwnedByUs reports whether the tag set carries our exact owner
// identity.
func (p Policy) OwnedByUs(tags map[string]string) bool {
	return tags[TagCreatedBy] == p.Owner
}

// WithinGrace reports whether the tag set's created-on timestamp is
// younger than the grace window. An absent or unparsable timestamp is
// not within grace, so such resources stay delete-eligible.
func (p Policy) WithinGrace(tags map[string]string, now time.Time) bool {
	createdOn, ok := tags[TagCreatedOn]
	if !ok {
		return false
	}
	created, err := time.Parse(time.RFC3339, createdOn)
	if err != nil {
		return false
	}
	return now.Sub(created) < p.GraceWindow
}

func (m *Manager) policy() Policy {
	return Policy{Owner: m.cfg.OwnerTag, GraceWindow: DefaultGraceWindow}
}

// ownershipTags builds the tag set stamped on created interfaces.
func (m *Manager) ownershipTags(instanceID string, now time.Time) map[string]string {
	return map[string]string{
		TagCreatedBy:   m.cfg.OwnerTag,
		TagCreatedOn:   now.UTC().Format(time.RFC3339),
		TagCreatedFrom: instanceID,
	}
}

// allocationTags builds the tag set stamped on allocated elastic
// addresses. Allocations are account-scoped, so there is no
// created-from.
func (m *Manager) allocationTags(now time.Time) map[string]string {
	return map[string]string{
		TagCreatedBy: m.cfg.OwnerTag,
		TagCreatedOn: now.UTC().Format(time.RFC3339),
	}
}
