package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jeeves-cluster-organization/crewplanner/coreengine/envelope"
)

var shapeValidator = validator.New()

// DecodeStageDocument turns a raw reasoning response into the typed
// document for stage. Any problem is reported as ErrMalformedResponse.
func DecodeStageDocument(stage envelope.Stage, raw []byte) (envelope.Document, error) {
	obj, err := extractJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	doc, err := envelope.DecodeDocument(stage, obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := CheckShape(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// CheckShape validates the structural contract of a document.
func CheckShape(doc envelope.Document) error {
	if err := shapeValidator.Struct(doc); err != nil {
		return fmt.Errorf("%w: %s document: %v", ErrMalformedResponse, doc.Stage(), err)
	}
	return nil
}

// extractJSON returns the first JSON object in text. Responses often wrap
// the object in prose or a fenced code block, and the prose may itself
// contain quotes or braces, so every '{' is tried as a starting point.
func extractJSON(text string) ([]byte, error) {
	for i := strings.IndexByte(text, '{'); i >= 0; {
		var obj json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&obj); err == nil {
			return obj, nil
		}
		next := strings.IndexByte(text[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, fmt.Errorf("no valid JSON object found in response")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
