package reshape

import (
	"github.com/rsclarke/hookrelay/internal/models"
)

// FlatRecord is the flattened projection of a LogRecord.
type FlatRecord map[string]any

// MandatoryKeys lists the keys every FlatRecord carries, in column order.
var MandatoryKeys = []string{
	"id", "ip", "domain", "eventName", "timestamp", "eventTimestamp",
	"eventId", "internalId", "number", "ticketId", "isTriggeredViaApi", "body_json",
}

// Flatten builds the flat projection of rec. It never fails: malformed
// columns are kept as raw text and missing fields become sentinels.
// rec is not modified.
func Flatten(rec models.LogRecord) FlatRecord {
	headers := parseOrRaw(rec.Headers)
	body := parseOrRaw(rec.Body)
	pathParams := parseOrRaw(rec.PathParams)
	queryParams := parseOrRaw(rec.QueryParams)

	eventName := Classify(body)
	fields := Extract(rec, headers, body)

	out := FlatRecord{
		"httpMethod":  rec.HTTPMethod,
		"headers":     headers,
		"body":        body,
		"pathParams":  pathParams,
		"queryParams": queryParams,
	}
	var payload any
	if rec.Payload != "" {
		payload = parseOrRaw(rec.Payload)
		out["payload"] = payload
	}

	policy := PolicyFor(eventName)
	if policy.PromoteBody {
		if m, ok := asMap(body); ok {
			delete(out, "body")
			promote(out, "body_", m)
		}
	}
	if policy.PromotePayload {
		if m, ok := promotablePayload(body, payload); ok {
			delete(out, "payload")
			promote(out, "payload_", m)
		}
	}
	if policy.SecondLevel {
		out["second_level"] = map[string]any{
			"headers":     headers,
			"queryParams": queryParams,
		}
		delete(out, "headers")
		delete(out, "queryParams")
	}

	out["id"] = fields.ID
	out["ip"] = fields.IP
	out["domain"] = fields.Domain
	out["eventName"] = eventName
	out["timestamp"] = rec.Timestamp
	out["eventTimestamp"] = fields.EventTimestamp
	out["eventId"] = fields.EventID
	out["internalId"] = fields.InternalID
	out["number"] = fields.Number
	out["ticketId"] = fields.TicketID
	out["isTriggeredViaApi"] = fields.IsTriggeredViaAPI
	out["body_json"] = rec.Body
	return out
}

var payloadField = Field("payload")

// promotablePayload prefers the body's payload object over the stored
// payload column.
func promotablePayload(body, column any) (map[string]any, bool) {
	if l := payloadField.Find(body); l.OK {
		if m, ok := asMap(l.Value); ok {
			return m, true
		}
	}
	m, ok := asMap(column)
	return m, ok
}

func promote(dst FlatRecord, prefix string, src map[string]any) {
	for k, v := range src {
		dst[prefix+k] = v
	}
}
