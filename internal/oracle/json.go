package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON locates the outermost JSON object in free-form model output
// and unmarshals it into v. Generative models routinely wrap JSON in prose
// or code fences; taking the first '{' to the last '}' strips both. When a
// first parse fails, a repair pass fixes unquoted keys before retrying.
func extractJSON(text string, v any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}

	raw := text[start : end+1]
	if err := json.Unmarshal([]byte(raw), v); err == nil {
		return nil
	}

	if err := json.Unmarshal([]byte(repairJSON(raw)), v); err != nil {
		return fmt.Errorf("parse JSON object: %w", err)
	}
	return nil
}

// repairJSON fixes the most common malformation in model-produced JSON:
// object keys missing their opening quote (`{score": 7}`). Anything it
// cannot recognize passes through untouched.
func repairJSON(s string) string {
	runes := []rune(s)
	fixed := make([]rune, 0, len(runes)+16)

	i := 0
	for i < len(runes) {
		ch := runes[i]
		fixed = append(fixed, ch)
		i++
		if ch != '{' && ch != ',' {
			continue
		}

		for i < len(runes) && (runes[i] == ' ' || runes[i] == '\n' || runes[i] == '\t') {
			fixed = append(fixed, runes[i])
			i++
		}

		// Unquoted key: a letter run followed by `":` means the opening
		// quote was dropped.
		if i < len(runes) && runes[i] != '"' && isLetter(runes[i]) {
			keyStart := i
			for i < len(runes) && (isLetter(runes[i]) || runes[i] == '_') {
				i++
			}
			if i+1 < len(runes) && runes[i] == '"' && runes[i+1] == ':' {
				fixed = append(fixed, '"')
			}
			fixed = append(fixed, runes[keyStart:i]...)
		}
	}

	return string(fixed)
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
