package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a response carries no parseable JSON payload.
var ErrNoJSON = errors.New("no JSON payload in response")

// ExtractArray returns the text between the first '[' and the last ']' if it is valid JSON.
func ExtractArray(text string) (json.RawMessage, error) {
	return extract(text, '[', ']')
}

// ExtractObject returns the text between the first '{' and the last '}' if it is valid JSON.
func ExtractObject(text string) (json.RawMessage, error) {
	return extract(text, '{', '}')
}

// DecodeArray extracts a JSON array from free text and decodes it into T.
func DecodeArray[T any](text string) (T, error) {
	return decode[T](text, ExtractArray)
}

// DecodeObject extracts a JSON object from free text and decodes it into T.
func DecodeObject[T any](text string) (T, error) {
	return decode[T](text, ExtractObject)
}

func decode[T any](text string, extractFn func(string) (json.RawMessage, error)) (T, error) {
	var out T
	raw, err := extractFn(text)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return out, nil
}

func extract(text string, open, close byte) (json.RawMessage, error) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end == -1 || end < start {
		return nil, ErrNoJSON
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, fmt.Errorf("%w: invalid JSON between %q and %q", ErrNoJSON, open, close)
	}
	return json.RawMessage(candidate), nil
}
