package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead is the subset of a Salesforce Lead the sync reads back.
type Lead struct {
	ID      string `json:"Id" salesforce:"Id"`
	Email   string `json:"Email" salesforce:"Email"`
	Company string `json:"Company" salesforce:"Company"`
	Status  string `json:"Status" salesforce:"Status"`
}

// FindLeadByEmail returns the Lead with email, or nil when none exists.
func FindLeadByEmail(ctx context.Context, c Client, email string) (*Lead, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Email, Company, Status FROM Lead WHERE Email = '%s' LIMIT 1",
		escapeSoql(email),
	)
	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("salesforce: find lead %s", email))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// UpsertLead updates the Lead matching fields["Email"] or inserts a new one.
// LastName and Company are required by Salesforce on insert. It returns the
// Lead id and whether it was created.
func UpsertLead(ctx context.Context, c Client, fields map[string]any) (string, bool, error) {
	email, _ := fields["Email"].(string)
	if email != "" {
		existing, err := FindLeadByEmail(ctx, c, email)
		if err != nil {
			return "", false, err
		}
		if existing != nil {
			if err := c.UpdateOne(ctx, "Lead", existing.ID, fields); err != nil {
				return "", false, eris.Wrap(err, "salesforce: update lead")
			}
			return existing.ID, false, nil
		}
	}

	for _, req := range []string{"LastName", "Company"} {
		if v, _ := fields[req].(string); strings.TrimSpace(v) == "" {
			return "", false, eris.Errorf("salesforce: lead %s is required", req)
		}
	}
	id, err := c.InsertOne(ctx, "Lead", fields)
	if err != nil {
		return "", false, eris.Wrap(err, "salesforce: create lead")
	}
	return id, true, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
