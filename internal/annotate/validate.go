package annotate

import (
	"fmt"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// itemsSchema is the structural contract for a model annotation.
// Keyword count, casing, and duplicates are left to the prompt.
const itemsSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["id", "author", "keywords"],
		"properties": {
			"keywords": {"type": "array"}
		}
	}
}`

var compiledItemsSchema = jsonschema.MustCompileString("mem://threadtag/annotation_items.json", itemsSchema)

// Validate checks a decoded JSON value against the annotation item shape
// and converts it to Items. The value must come from encoding/json decoding
// into an any.
func Validate(parsed any) ([]Item, error) {
	if err := compiledItemsSchema.Validate(parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	raw, _ := parsed.([]any)
	items := make([]Item, 0, len(raw))
	for _, el := range raw {
		obj := el.(map[string]any)
		kws := obj["keywords"].([]any)
		item := Item{
			ID:       scalarString(obj["id"]),
			Author:   scalarString(obj["author"]),
			Keywords: make([]string, 0, len(kws)),
		}
		for _, kw := range kws {
			item.Keywords = append(item.Keywords, scalarString(kw))
		}
		items = append(items, item)
	}
	return items, nil
}

// scalarString renders a decoded JSON scalar as text; ids sometimes come back as numbers.
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// checkIDs reports ErrIDMismatch unless items cover exactly the given ids.
func checkIDs(items []Item, ids map[string]struct{}) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := ids[it.ID]; !ok {
			return fmt.Errorf("%w: unknown id %q", ErrIDMismatch, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	if len(seen) != len(ids) {
		return fmt.Errorf("%w: annotated %d of %d messages", ErrIDMismatch, len(seen), len(ids))
	}
	return nil
}
