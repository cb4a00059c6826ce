// Package divination defines the read-only result structures handed to the
// dispatch engine by the divination application. The engine interpolates
// them into prompts and never validates divination semantics.
package divination

// Palace is one structured sub-result bearing a hexagram.
type Palace struct {
	Hexagram string `json:"hexagram"`         // Hexagram name, e.g. 大安.
	Element  string `json:"element"`          // Five-element tag, e.g. 木.
	Spirit   string `json:"spirit,omitempty"` // Guardian-spirit tag, optional.
}

// Result is a complete divination outcome: an optional free-text query and
// the sky/earth/human palace sub-results.
type Result struct {
	Query string `json:"query,omitempty"` // Free-text question, optional.
	Sky   Palace `json:"sky"`             // Sky palace.
	Earth Palace `json:"earth"`           // Earth palace.
	Human Palace `json:"human"`           // Human palace.
}
