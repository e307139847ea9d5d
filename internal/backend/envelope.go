package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Envelope is the wrapper the POS API puts around every payload.
type Envelope struct {
	Success   *bool           `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     json.RawMessage `json:"error"`
	Meta      json.RawMessage `json:"meta"`
	Timestamp string          `json:"timestamp"`
}

func (e Envelope) wrapped() bool {
	return e.Success != nil || len(e.Data) > 0
}

// decodeEnvelope unwraps data when the body is an envelope and decodes the raw body otherwise.
func decodeEnvelope(raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errors.New("empty body")
	}
	var env Envelope
	if raw[0] == '{' && json.Unmarshal(raw, &env) == nil && env.wrapped() {
		if env.Success != nil && !*env.Success {
			return errors.New(firstNonEmpty(env.Message, string(env.Error), "unsuccessful response"))
		}
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

func errorMessage(raw []byte, fallback string) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fallback
	}
	var env Envelope
	if json.Unmarshal(raw, &env) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if len(env.Error) > 0 {
			var text string
			if json.Unmarshal(env.Error, &text) == nil && text != "" {
				return text
			}
			if json.Unmarshal(env.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
		if env.Message != "" {
			return env.Message
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
