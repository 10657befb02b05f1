package rest

import (
	"encoding/json"
	"time"

	"github.com/feral-file/ff-options/internal/store/schema"
	"github.com/feral-file/ff-options/internal/value"
)

// OptionResponse is a single stored option
type OptionResponse struct {
	Key         string      `json:"key"`
	Value       value.Value `json:"value"`
	IsJSON      bool        `json:"is_json"`
	Autoload    bool        `json:"autoload"`
	DateCreated time.Time   `json:"date_created"`
	DateUpdated time.Time   `json:"date_updated"`
}

// ListOptionsResponse maps option keys to their values
type ListOptionsResponse struct {
	Options map[string]value.Value `json:"options"`
}

// SetOptionRequest is the body of PUT /api/v1/options/:key.
// Value is kept raw so an explicit null is distinguishable from a missing field.
type SetOptionRequest struct {
	Value    json.RawMessage `json:"value" binding:"required"`
	Autoload bool            `json:"autoload"`
}

// SetOptionsRequest is the body of PUT /api/v1/options
type SetOptionsRequest struct {
	Options  map[string]json.RawMessage `json:"options" binding:"required"`
	Autoload bool                       `json:"autoload"`
}

func newOptionResponse(row *schema.Option, v value.Value) OptionResponse {
	return OptionResponse{
		Key:         row.Key,
		Value:       v,
		IsJSON:      row.IsJSON,
		Autoload:    row.Autoload,
		DateCreated: row.DateCreated,
		DateUpdated: row.DateUpdated,
	}
}

// parseValue turns a request value into an option value. A JSON string becomes a plain string.
func parseValue(raw json.RawMessage) (value.Value, error) {
	j, err := value.Parse(raw)
	if err != nil {
		return value.Value{}, err
	}
	return value.FromJSON(j), nil
}
