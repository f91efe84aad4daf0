package reshape

// Policy controls which nested structures a flattened record promotes.
type Policy struct {
	// PromoteBody lifts every body key to the top level as body_<key>.
	PromoteBody bool
	// PromotePayload lifts every payload key to the top level as payload_<key>.
	PromotePayload bool
	// SecondLevel moves headers and queryParams under second_level.
	SecondLevel bool
}

// defaultPolicy applies to every event name missing from policies,
// including the eventName sentinel.
var defaultPolicy = Policy{PromoteBody: true, PromotePayload: true}

var policies = map[string]Policy{
	"ticket_updated":           {},
	"ELMA_event_ticket update": {PromoteBody: true, PromotePayload: true, SecondLevel: true},
	// Reserved for keeping pathParams and headers apart; no promotion yet.
	"ticket_comment_created": {},
	"ticket_created":         {PromoteBody: true, SecondLevel: true},
	"document_downloaded":    {PromoteBody: true, PromotePayload: true},
}

// PolicyFor returns the promotion policy for eventName.
func PolicyFor(eventName string) Policy {
	if p, ok := policies[eventName]; ok {
		return p
	}
	return defaultPolicy
}
