package model

import (
	"github.com/go-faster/errors"
	"github.com/tidwall/gjson"
)

// ID is a resource identifier. Backends send ids either as JSON strings or as
// numbers; both decode to the same textual form and always encode as a string.
type ID string

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts a string, a number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	switch r.Type {
	case gjson.String:
		*id = ID(r.Str)
	case gjson.Number:
		*id = ID(r.Raw)
	case gjson.Null:
		*id = ""
	default:
		return errors.Errorf("invalid id %s", r.Raw)
	}
	return nil
}
