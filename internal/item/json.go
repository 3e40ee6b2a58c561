package item

import (
	"bytes"
	"fmt"

	"github.com/segmentio/encoding/json"
)

// MarshalJSON encodes an item. Numbers are written as JSON number literals.
func MarshalJSON(it Item) ([]byte, error) {
	data, err := json.Marshal(map[string]any(it))
	if err != nil {
		return nil, fmt.Errorf("encoding item: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes an item, keeping numbers exact.
func UnmarshalJSON(data []byte) (Item, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding item: %w", err)
	}
	it := make(Item, len(raw))
	for k, v := range raw {
		it[k] = fromJSON(v)
	}
	return it, nil
}

// fromJSON replaces decoded json.Number values with Number.
func fromJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		return Number(val)
	case []any:
		for i := range val {
			val[i] = fromJSON(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = fromJSON(val[k])
		}
		return val
	default:
		return v
	}
}
