package model

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// normalizeKey trims and case-folds an identity component. A Caser keeps
// state between calls, so each call builds its own.
func normalizeKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// IdentityKey derives the deduplication key for r: the normalized email,
// else the normalized LinkedIn handle, else the opaque lead id. It returns
// "" when the record carries none of them.
func IdentityKey(r Record) string {
	if k := normalizeKey(r.String(FieldEmail)); k != "" {
		return k
	}
	if k := normalizeKey(r.String(FieldLinkedIn)); k != "" {
		return k
	}
	return strings.TrimSpace(r.String(FieldLeadID))
}

// EnsureIdentity returns the identity key of r, assigning a generated
// lead_id first when r has no identity fields at all.
func EnsureIdentity(r Record) string {
	if k := IdentityKey(r); k != "" {
		return k
	}
	id := uuid.NewString()
	r[FieldLeadID] = id
	return id
}
