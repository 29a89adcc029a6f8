// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fiscal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/fiscal-engine/internal/numeric"
)

// errNotJSON marks a reply that does not contain a JSON object.
var errNotJSON = errors.New("reply is not a JSON object")

// decodeReply maps the service reply onto indicators. Keys are matched
// after full-width folding and whitespace removal. Indicators that are
// absent, set to notFound, or not an amount come back as "".
func decodeReply(reply string, indicators []string, notFound string) (map[string]string, error) {
	body := jsonBody(reply)
	if body == "" {
		return nil, errNotJSON
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errNotJSON, err)
	}

	byKey := make(map[string]any, len(raw))
	for k, v := range raw {
		byKey[numeric.Fold(k)] = v
	}

	values := make(map[string]string, len(indicators))
	for _, ind := range indicators {
		values[ind] = amount(byKey[numeric.Fold(ind)], notFound)
	}
	return values, nil
}

func amount(v any, notFound string) string {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = x
	default:
		return ""
	}
	if notFound != "" && strings.TrimSpace(s) == notFound {
		return ""
	}
	return numeric.Normalize(s)
}

// jsonBody strips Markdown code fences and any prose around the outermost
// braces. It returns "" when the reply holds no object.
func jsonBody(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
