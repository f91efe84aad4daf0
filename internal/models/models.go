// Package models defines the database entity types.
package models

// LogRecord represents one captured HTTP exchange in the database.
// Headers, Body, PathParams, QueryParams and Payload hold serialized text
// exactly as written at capture time.
type LogRecord struct {
	ID          int64
	Timestamp   string
	HTTPMethod  string
	Headers     string
	Body        string
	PathParams  string
	QueryParams string
	Payload     string
}
