// Package reshape turns stored log records into flat, stably keyed rows.
package reshape

// NotFound returns the sentinel substituted for an absent field.
func NotFound(field string) string {
	return "Not found " + field
}

var (
	topEventName    = Field("eventName")
	nestedEventName = Field("body", "eventName")
)

// Classify returns the logical event name of a decoded request body.
// The top-level eventName wins over body.eventName; anything else,
// including a body that is not a JSON object, yields the sentinel.
func Classify(body any) string {
	if _, ok := asMap(body); !ok {
		return NotFound("eventName")
	}
	return FirstOf(body, topEventName, nestedEventName).String(NotFound("eventName"))
}
