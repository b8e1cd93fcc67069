package view

import (
	"encoding/json"
	"io"
	"reflect"
)

// renderJSON writes the view data as JSON. There is no template file; the
// view name only selects the route. Function-valued locals are dropped.
func renderJSON(w io.Writer, _ string, data map[string]any, _ map[string]any) error {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
			continue
		}
		out[k] = v
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
