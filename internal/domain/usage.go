package domain

import "encoding/json"

// UsageRecord is one day's API response, kept as the raw JSON document.
type UsageRecord struct {
	Date    Date
	Payload json.RawMessage
}
