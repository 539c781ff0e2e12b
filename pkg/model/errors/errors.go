package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

var ErrNotFound = fmt.Errorf("not found")
var ErrConfiguration = fmt.Errorf("configuration error")
var ErrUnhandledAssociation = fmt.Errorf("unhandled association")
var ErrRequest = fmt.Errorf("request error")
var ErrBadResponse = fmt.Errorf("bad response")
var ErrInternal = fmt.Errorf("internal error")

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

func NewNotFoundError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrNotFound,
	}
}

// NewConfigurationError reports a structural misuse such as asking an abstract
// type for its path or declaring conflicting association metadata.
func NewConfigurationError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrConfiguration,
	}
}

func NewUnhandledAssociationError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrUnhandledAssociation,
	}
}

func NewBadResponseError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrBadResponse,
	}
}

// StatusError is returned by the http transport for unsuccessful responses that
// do not map to a more specific error kind.
type StatusError struct {
	Code   int
	Detail string
}

func (se StatusError) Error() string {
	if se.Detail == "" {
		return fmt.Sprintf("unexpected response code %d", se.Code)
	}
	return fmt.Sprintf("[code: %d] %s", se.Code, se.Detail)
}

func (se StatusError) Is(target error) bool { return target == ErrRequest }

// NewErrorFromResponse converts an unsuccessful response into an error. Bodies
// that look like a problem report or an {"error": "..."} document contribute
// their detail to the message.
func NewErrorFromResponse(code int, contentType string, body []byte) error {
	detail := ""

	if len(body) > 0 && strings.Contains(contentType, "json") {
		report := &struct {
			Title   string `json:"title"`
			Detail  string `json:"detail"`
			Error   string `json:"error"`
			Message string `json:"message"`
		}{}

		if err := json.Unmarshal(body, report); err == nil {
			for _, candidate := range []string{report.Detail, report.Error, report.Message, report.Title} {
				if candidate != "" {
					detail = candidate
					break
				}
			}
		}
	}

	if code == http.StatusNotFound {
		if detail == "" {
			detail = "resource not found"
		}
		return NewNotFoundError(detail)
	}

	return StatusError{Code: code, Detail: detail}
}
