// Package jobs turns page text into structured job records and matches each
// record's skills against the skill index.
package jobs

import (
	"encoding/json"
)

// Record is one job posting extracted from a page. All fields are always
// present when serialized.
type Record struct {
	Role        string   `json:"role"`
	Experience  string   `json:"experience"`
	Skills      []string `json:"skills"`
	Description string   `json:"description"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	if r.Skills == nil {
		r.Skills = []string{}
	}
	return json.Marshal(plain(r))
}
