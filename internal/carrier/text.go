package carrier

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/roach88/parceltrack/internal/model"
)

// text decodes loosely typed provider fields. Strings, numbers and
// booleans decode to their text. Localized objects such as
// {"fi": "...", "en": "..."} decode to the English, Finnish or first
// non-empty string value. Anything else decodes to "".
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(b, &m); err != nil {
			return err
		}
		*t = text(localized(m))
	case '[':
		*t = ""
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err == nil {
			*t = text(n.String())
			return nil
		}
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = text(strconv.FormatBool(v))
	}
	return nil
}

func localized(m map[string]json.RawMessage) string {
	str := func(k string) string {
		var s string
		if raw, ok := m[k]; ok && json.Unmarshal(raw, &s) == nil {
			return s
		}
		return ""
	}
	for _, k := range []string{"en", "fi", "value", "name"} {
		if s := str(k); s != "" {
			return s
		}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s := str(k); s != "" {
			return s
		}
	}
	return ""
}

func (t text) String() string { return string(t) }

func missingCredentials(carrier string) model.StatusResult {
	return model.StatusResult{Carrier: carrier, Status: model.StatusMissingCredentials}
}

func inTransit(carrier string) model.StatusResult {
	return model.StatusResult{Carrier: carrier, Found: true, Status: model.StatusInTransit}
}
