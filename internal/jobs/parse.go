package jobs

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"
)

// responseSchema accepts a single object or an array of objects.
const responseSchema = `{
  "oneOf": [
    {"type": "object"},
    {"type": "array", "items": {"type": "object"}}
  ]
}`

var schemaLoader = gojsonschema.NewStringLoader(responseSchema)

// parseRecords converts a raw model response into records. Nothing is
// returned unless every element decodes.
func parseRecords(raw string) ([]Record, error) {
	text := unwrapFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, &ParseError{Message: "empty response"}
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &ParseError{Message: "response is not valid JSON", Cause: err}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, &ParseError{Message: "validate response shape", Cause: err}
	}
	if !result.Valid() {
		return nil, &ParseError{Message: "response must be a JSON object or an array of objects"}
	}

	var elements []any
	switch v := doc.(type) {
	case map[string]any:
		elements = []any{v}
	case []any:
		elements = v
	}

	records := make([]Record, 0, len(elements))
	for i, el := range elements {
		rec, err := decodeRecord(el)
		if err != nil {
			return nil, &ParseError{Message: fmt.Sprintf("decode job %d", i), Cause: err}
		}
		records = append(records, rec)
	}

	return records, nil
}

// unwrapFence strips a markdown code fence only when it encloses the whole
// response. Anything else is returned unchanged.
func unwrapFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}

	body := strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")
	newline := strings.IndexByte(body, '\n')
	if newline < 0 {
		return text
	}

	lang := strings.TrimSpace(body[:newline])
	if lang != "" && !strings.EqualFold(lang, "json") {
		return text
	}

	return strings.TrimSpace(body[newline+1:])
}

func decodeRecord(el any) (Record, error) {
	var rec Record

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       splitSkills,
		Result:           &rec,
	})
	if err != nil {
		return Record{}, err
	}

	if err := decoder.Decode(el); err != nil {
		return Record{}, err
	}

	rec.Skills = cleanSkills(rec.Skills)
	return rec, nil
}

var stringSliceType = reflect.TypeOf([]string{})

// splitSkills turns "Go, Python" into a list when a slice is expected.
func splitSkills(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != stringSliceType {
		return data, nil
	}
	return strings.Split(data.(string), ","), nil
}

func cleanSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
