package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Lead property names in the tracking database.
const (
	PropName     = "Name"
	PropKey      = "Lead Key"
	PropEmail    = "Email"
	PropCompany  = "Company"
	PropTitle    = "Title"
	PropChannel  = "Segment"
	PropTier     = "Tier"
	PropScore    = "Score"
	PropLinkedIn = "LinkedIn"
	PropStatus   = "Status"
)

// Lead is the subset of a lead record mirrored into Notion.
type Lead struct {
	Key      string
	Name     string
	Email    string
	Company  string
	Title    string
	Channel  string
	Tier     string
	Score    float64
	LinkedIn string
	Status   string
}

func richText(v string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}}}
}

// Properties builds the page properties for l. Empty optional values are
// omitted so an update never blanks a column.
func (l Lead) Properties() notionapi.Properties {
	name := strings.TrimSpace(l.Name)
	if name == "" {
		name = l.Email
	}
	props := notionapi.Properties{
		PropName:  notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: richText(name)},
		PropKey:   notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(l.Key)},
		PropScore: notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: l.Score},
	}
	if l.Email != "" {
		props[PropEmail] = notionapi.EmailProperty{Type: notionapi.PropertyTypeEmail, Email: l.Email}
	}
	if l.LinkedIn != "" {
		props[PropLinkedIn] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: l.LinkedIn}
	}
	for prop, v := range map[string]string{PropCompany: l.Company, PropTitle: l.Title} {
		if v != "" {
			props[prop] = notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(v)}
		}
	}
	for prop, v := range map[string]string{PropChannel: l.Channel, PropTier: l.Tier} {
		if v != "" {
			props[prop] = notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: v}}
		}
	}
	if l.Status != "" {
		props[PropStatus] = notionapi.StatusProperty{Status: notionapi.Status{Name: l.Status}}
	}
	return props
}

// FindLead returns the id of the page whose Lead Key equals key, or "" when
// there is none.
func FindLead(ctx context.Context, c Client, dbID, key string) (string, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropKey,
			RichText: &notionapi.TextFilterCondition{Equals: key},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: find lead")
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// UpsertLead updates the lead's page when one exists for its key and
// creates it otherwise. It returns the page id and whether it was created.
func UpsertLead(ctx context.Context, c Client, dbID string, l Lead) (string, bool, error) {
	if l.Key == "" {
		return "", false, eris.New("notion: lead key is required")
	}
	pageID, err := FindLead(ctx, c, dbID, l.Key)
	if err != nil {
		return "", false, err
	}
	if pageID != "" {
		if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: l.Properties()}); err != nil {
			return "", false, eris.Wrap(err, "notion: update lead")
		}
		return pageID, false, nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: l.Properties(),
	})
	if err != nil {
		return "", false, eris.Wrap(err, "notion: create lead")
	}
	return string(page.ID), true, nil
}
