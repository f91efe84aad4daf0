package reshape

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/rsclarke/hookrelay/internal/models"
)

// CasaviIP is the fixed source address of the CASAVI integration, which
// never declares itself through x-origin-domain.
const CasaviIP = "52.28.237.77"

// Fields holds the business fields pulled out of a record.
type Fields struct {
	ID                int64
	IP                string
	Domain            string
	EventID           string
	InternalID        string
	Number            any
	TicketID          string
	EventTimestamp    any
	IsTriggeredViaAPI string
}

const (
	headerForwardedFor = "x-forwarded-for"
	headerOriginDomain = "x-origin-domain"
)

var (
	ipDefault     = NotFound("domain")
	domainDefault = NotFound("id")
)

// payloadFallback builds the top-level then payload.<key> lookup chain.
func payloadFallback(key string) [2]Path {
	return [2]Path{Field(key), Field("payload", key)}
}

var (
	eventIDPaths        = payloadFallback("eventId")
	internalIDPaths     = payloadFallback("internalId")
	numberPaths         = payloadFallback("number")
	ticketIDPaths       = payloadFallback("ticketId")
	eventTimestampPaths = payloadFallback("eventTimestamp")
)

// Extract pulls the mandatory business fields from rec. headers and body
// are the decoded Headers and Body columns; either may be any JSON value
// or raw text. Absent values become sentinels.
func Extract(rec models.LogRecord, headers any, body any) Fields {
	f := Fields{ID: rec.ID}

	h := normalizeHeaders(headers)
	f.IP = ipDefault
	if v, ok := h[headerForwardedFor]; ok {
		f.IP = firstHop(v)
	}
	domain, hasDomain := h[headerOriginDomain]
	switch {
	case hasDomain:
		f.Domain = domain
	case f.IP == CasaviIP:
		f.Domain = "CASAVI"
	default:
		f.Domain = domainDefault
	}

	f.EventID = probe(body, eventIDPaths).String(NotFound("eventId"))
	f.InternalID = probe(body, internalIDPaths).String(NotFound("internalId"))
	f.Number = probe(body, numberPaths).OrDefault(NotFound("number"))
	f.TicketID = probe(body, ticketIDPaths).String(NotFound("ticketId"))
	f.EventTimestamp = probe(body, eventTimestampPaths).OrDefault(NotFound("eventTimestamp"))

	f.IsTriggeredViaAPI = "None"
	if l := lookupTriggered(body); l.OK {
		if truthy(l.Value) {
			f.IsTriggeredViaAPI = "1"
		} else {
			f.IsTriggeredViaAPI = "0"
		}
	}
	return f
}

func probe(body any, paths [2]Path) Lookup {
	if _, ok := asMap(body); !ok {
		return Lookup{}
	}
	return paths[0].Find(body).Or(paths[1].Find(body))
}

// lookupTriggered reports isTriggeredViaApi as present whenever the key
// holds a non-null value, so false and 0 still produce "0".
func lookupTriggered(body any) Lookup {
	m, ok := asMap(body)
	if !ok {
		return Lookup{}
	}
	v, ok := m["isTriggeredViaApi"]
	if !ok || v == nil {
		return Lookup{}
	}
	return Lookup{Value: v, OK: true}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return false
}

// normalizeHeaders lower-cases header names and flattens array values to
// their first element. Names differing only in case resolve to the
// lexically smallest original name. Anything other than a JSON object
// yields no headers.
func normalizeHeaders(headers any) map[string]string {
	out := map[string]string{}
	m, ok := asMap(headers)
	if !ok {
		return out
	}
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v := m[k]
		lk := strings.ToLower(k)
		if _, seen := out[lk]; seen {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case []any:
			if len(t) == 0 {
				continue
			}
			s = asString(t[0])
		case nil:
			continue
		default:
			s = asString(t)
		}
		if s == "" {
			continue
		}
		out[lk] = s
	}
	return out
}

func firstHop(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return ipDefault
	}
	return v
}
