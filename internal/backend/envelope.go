package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Every backend response is wrapped in the same envelope:
//
//	{ "header": { "responseCode": <int>, "responseMessage": <string> },
//	  "response": <T> }
//
// 200 (read/update) and 201 (created) are the only success codes; anything
// else surfaces as an *APIError carrying the backend's message.

type Header struct {
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}

type Envelope[T any] struct {
	Header   Header `json:"header"`
	Response T      `json:"response"`
}

// APIError is a non-success backend response (envelope code or HTTP status).
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

// AsAPIError unwraps err into an *APIError if there is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func isSuccessCode(code int) bool {
	return code == http.StatusOK || code == http.StatusCreated
}

// decodeEnvelope parses a response body and maps the envelope header onto
// either the typed payload or an *APIError.
func decodeEnvelope[T any](r io.Reader) (T, error) {
	var env Envelope[T]
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		var zero T
		return zero, fmt.Errorf("decode response envelope: %w", err)
	}
	if !isSuccessCode(env.Header.ResponseCode) {
		var zero T
		return zero, &APIError{Code: env.Header.ResponseCode, Message: env.Header.ResponseMessage}
	}
	return env.Response, nil
}
