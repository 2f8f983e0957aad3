package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrGateParse marks a gate reply that carried no usable JSON decision.
// It is always resolved by the policy's default and never reaches callers.
var ErrGateParse = errors.New("unparseable gate response")

// decodeObject pulls the outermost {...} out of a model reply (models like to
// wrap JSON in prose or code fences) and unmarshals it into dst.
func decodeObject(reply string, dst interface{}) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object", ErrGateParse)
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrGateParse, err)
	}
	return nil
}
