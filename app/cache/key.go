package cache

import (
	"github.com/goccy/go-json"
)

type keyShape struct {
	Channels []string `json:"channels"`
	Before   string   `json:"before"`
	After    string   `json:"after"`
	Type     string   `json:"type"`
	ID       string   `json:"id"`
}

// GenerateFeedKey builds the canonical key for a request shape. The search
// term is not part of it so one cached result serves every query.
func GenerateFeedKey(channels []string, before, after, requestType, id string) string {
	if channels == nil {
		channels = []string{}
	}
	data, err := json.Marshal(keyShape{
		Channels: channels,
		Before:   before,
		After:    after,
		Type:     requestType,
		ID:       id,
	})
	if err != nil {
		// Strings and string slices always encode.
		panic(err)
	}
	return string(data)
}
