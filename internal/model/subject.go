package model

import "strings"

// SubjectKey normalizes a subject identifier for file names and storage
// keys. All-digit identifiers shorter than two characters are left-padded
// with zeros ("7" -> "07", "007" unchanged); anything else is returned
// trimmed.
func SubjectKey(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.Trim(id, "0123456789") != "" {
		return id
	}
	if len(id) < 2 {
		return "0" + id
	}
	return id
}
