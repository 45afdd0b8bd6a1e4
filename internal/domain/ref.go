package domain

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Ref is a resolved foreign reference. Raw payloads carry either a bare id or
// an object with a nested name; both decode into the same shape.
type Ref struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

var (
	refIDKeys    = []string{"id", "_id", "uuid"}
	refLabelKeys = []string{"label", "name", "title"}
)

func (r Ref) IsZero() bool {
	return r.ID == ""
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	res := gjson.ParseBytes(b)
	switch {
	case res.Type == gjson.Null:
		*r = Ref{}
	case res.Type == gjson.String:
		*r = Ref{ID: strings.TrimSpace(res.String())}
	case res.Type == gjson.Number:
		*r = Ref{ID: res.Raw}
	case res.IsObject():
		*r = Ref{
			ID:    firstString(res, refIDKeys),
			Label: firstString(res, refLabelKeys),
		}
	default:
		return fmt.Errorf("ref: unsupported json %s", res.Raw)
	}
	return nil
}

func firstString(obj gjson.Result, keys []string) string {
	for _, key := range keys {
		v := obj.Get(key)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}
