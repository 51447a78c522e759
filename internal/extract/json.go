package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParseError reports a model reply that did not contain a usable JSON object
type ParseError struct {
	Reply string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model reply: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	errNoObject   = errors.New("no JSON object found")
	errUnbalanced = errors.New("unterminated JSON object")
)

// ExtractJSON returns the first well-formed JSON object in text. Code fences
// and surrounding prose are ignored.
func ExtractJSON(text string) (string, error) {
	if body, ok := fencedBlock(text); ok {
		if obj, err := firstObject(body); err == nil {
			return obj, nil
		}
	}

	obj, err := firstObject(text)
	if err != nil {
		return "", &ParseError{Reply: text, Err: err}
	}
	return obj, nil
}

// fencedBlock returns the contents of the first ``` block, dropping any language tag
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start == -1 {
		return "", false
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		tag := strings.TrimSpace(rest[:nl])
		if !strings.ContainsAny(tag, "{}") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return rest, true
	}
	return rest[:end], true
}

// firstObject scans every '{' in order and returns the first balanced span
// that is valid JSON
func firstObject(text string) (string, error) {
	err := errNoObject
	for offset := 0; offset < len(text); {
		rel := strings.IndexByte(text[offset:], '{')
		if rel == -1 {
			break
		}
		start := offset + rel
		end, ok := matchBrace(text, start)
		if !ok {
			err = errUnbalanced
			break
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
		err = fmt.Errorf("invalid JSON object at offset %d", start)
		offset = start + 1
	}
	return "", err
}

// matchBrace finds the index of the brace closing text[start], skipping braces inside strings
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
