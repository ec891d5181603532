package formfill

import "strings"

// FieldType is the inferred input kind of a form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldRadio    FieldType = "radio"
	FieldCheckbox FieldType = "checkbox"
	FieldFile     FieldType = "file"
)

// FormField is one introspected input of an application form.
type FormField struct {
	Name     string    `json:"name"`     // stable name/selector reported by the executor
	Label    string    `json:"label"`    // human-readable label, may be empty
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"` // choice fields only
}

// FormSchema is the transient description of a posting's application form,
// produced fresh by introspection per submission attempt.
type FormSchema struct {
	Fields []FormField `json:"fields"`
}

// key returns the normalized lookup text for pattern rules: name and label
// lowercased with separators removed, so "First_Name", "first-name" and
// "firstName" all reduce to "firstname".
func (f FormField) key() string {
	return normalizeKey(f.Name + " " + f.Label)
}

func normalizeKey(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// isChoice reports whether the field carries an option list to pick from.
func (f FormField) isChoice() bool {
	switch f.Type {
	case FieldSelect, FieldRadio, FieldCheckbox:
		return true
	}
	return false
}

// matchesAny reports whether any pattern occurs in the field's normalized key.
func (f FormField) matchesAny(patterns ...string) bool {
	key := f.key()
	for _, p := range patterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}
