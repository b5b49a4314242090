package datamodel

// Encoder assigns dense integer ids to (column, value) pairs so itemset
// mining can work on ints. Ids are assigned in first-seen order, which makes
// them deterministic for a given input order.
//
// An Encoder is owned by the ingester that fills it and read by the
// summarizer afterwards; it is not safe for concurrent Encode calls.
type Encoder struct {
	ids     map[ColumnValue]int
	entries []ColumnValue
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{ids: make(map[ColumnValue]int)}
}

// Encode returns the id for column=value, assigning a new one if needed.
func (e *Encoder) Encode(column, value string) int {
	key := ColumnValue{Column: column, Value: value}
	if id, ok := e.ids[key]; ok {
		return id
	}
	id := len(e.entries)
	e.ids[key] = id
	e.entries = append(e.entries, key)
	return id
}

// Decode returns the pair for id.
func (e *Encoder) Decode(id int) (ColumnValue, bool) {
	if e == nil || id < 0 || id >= len(e.entries) {
		return ColumnValue{}, false
	}
	return e.entries[id], true
}

// Len returns the number of distinct pairs seen.
func (e *Encoder) Len() int {
	if e == nil {
		return 0
	}
	return len(e.entries)
}
