package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/matryer/is"
)

func TestNotFoundFromResponse(t *testing.T) {
	is := is.New(t)

	err := NewErrorFromResponse(http.StatusNotFound, "application/json", []byte(`{"error":"no such widget"}`))

	is.True(errors.Is(err, ErrNotFound))
	is.Equal(err.Error(), "no such widget")
}

func TestNotFoundWithoutBody(t *testing.T) {
	is := is.New(t)

	err := NewErrorFromResponse(http.StatusNotFound, "", nil)

	is.True(errors.Is(err, ErrNotFound))
	is.Equal(err.Error(), "resource not found")
}

func TestServerErrorFromProblemReport(t *testing.T) {
	is := is.New(t)

	err := NewErrorFromResponse(http.StatusBadGateway, "application/problem+json", []byte(`{"title":"Bad Gateway","detail":"upstream down"}`))

	is.True(errors.Is(err, ErrRequest))
	is.True(!errors.Is(err, ErrNotFound)) // a 502 must not be reported as not found

	var se StatusError
	is.True(errors.As(err, &se))
	is.Equal(se.Code, http.StatusBadGateway)
	is.Equal(err.Error(), "[code: 502] upstream down")
}

func TestStatusErrorIgnoresNonJSONBody(t *testing.T) {
	is := is.New(t)

	err := NewErrorFromResponse(http.StatusInternalServerError, "text/html", []byte("<html>oops</html>"))
	is.Equal(err.Error(), "unexpected response code 500")
}

func TestKindsAreDistinct(t *testing.T) {
	is := is.New(t)

	is.True(errors.Is(NewConfigurationError("x"), ErrConfiguration))
	is.True(!errors.Is(NewConfigurationError("x"), ErrNotFound))
	is.True(errors.Is(NewUnhandledAssociationError("x"), ErrUnhandledAssociation))
	is.True(errors.Is(NewBadResponseError("x"), ErrBadResponse))
}
