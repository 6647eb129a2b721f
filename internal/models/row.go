package models

// RecipientRow is one recipient's substitution data. Rows derived from a
// bulk follow-up query additionally carry the original record's identifiers
// so the new message can be threaded onto it.
type RecipientRow struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Link    string `json:"link,omitempty"`

	OriginalRecordID  string `json:"-"`
	OriginalMessageID string `json:"-"`
	ThreadID          string `json:"-"`
}

// MissingRequired reports whether the row lacks any of the fields that must
// be present before a send is attempted. Link is optional.
func (r RecipientRow) MissingRequired() bool {
	return r.Name == "" || r.Company == "" || r.Email == "" || r.Role == ""
}

// NormalizeRows converts loosely-typed input rows into canonical recipient
// rows, accepting capitalized or lowercase field-name variants.
func NormalizeRows(raw []map[string]string) []RecipientRow {
	rows := make([]RecipientRow, 0, len(raw))
	for _, m := range raw {
		rows = append(rows, RecipientRow{
			Name:    pick(m, "name", "Name"),
			Company: pick(m, "company", "Company"),
			Email:   pick(m, "email", "Email"),
			Role:    pick(m, "role", "Role"),
			Link:    pick(m, "link", "Link"),
		})
	}
	return rows
}

func pick(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
