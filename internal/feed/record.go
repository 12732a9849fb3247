package feed

// Record is a decoded transaction payload: a field/value mapping.
type Record map[string]any

// String returns the field value when it is a non-empty string.
func (r Record) String(field string) (string, bool) {
	v, ok := r[field].(string)
	return v, ok && v != ""
}

// Object returns the nested mapping stored at field.
func (r Record) Object(field string) (Record, bool) {
	switch v := r[field].(type) {
	case map[string]any:
		return Record(v), true
	case Record:
		return v, true
	default:
		return nil, false
	}
}
