package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound matches any APIError with a 404 status.
var ErrNotFound = errors.New("not found")

// ErrUnavailable marks transport failures: the backend was never reached or
// the connection broke before a response arrived.
var ErrUnavailable = errors.New("backend unavailable")

// GenericFailureMessage is shown when neither a detail nor a body is available.
const GenericFailureMessage = "Something went wrong. Please try again."

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method string
	Path   string
	Status int
	// Detail is the server's human-readable message, already extracted from
	// a FastAPI-style {"detail": ...} body or taken from the raw text.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// ErrorMessage returns the text a user should see for err: the server
// detail when there is one, otherwise a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Detail) != "" {
		return apiErr.Detail
	}
	return GenericFailureMessage
}

// extractDetail prefers the "detail" field of a JSON body, then the raw
// text. FastAPI validation errors carry a list of {msg} objects.
func extractDetail(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return text
	}

	if len(envelope.Detail) > 0 {
		var asString string
		if err := json.Unmarshal(envelope.Detail, &asString); err == nil && asString != "" {
			return asString
		}
		var asList []struct {
			Msg string `json:"msg"`
			Loc []any  `json:"loc"`
		}
		if err := json.Unmarshal(envelope.Detail, &asList); err == nil && len(asList) > 0 {
			msgs := make([]string, 0, len(asList))
			for _, item := range asList {
				if item.Msg == "" {
					continue
				}
				msgs = append(msgs, item.Msg)
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return text
}
