package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode  int
	Detail      string
	Requires2FA bool
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Detail)
}

// IsUnauthorized reports whether err is, or wraps, a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is, or wraps, a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsServerError reports whether err is, or wraps, a 5xx from the backend.
func IsServerError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError
}

// DetailOf returns the server-supplied detail message carried by err, if any.
func DetailOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// CheckResponse returns nil for 2xx responses. Otherwise it consumes and
// closes the body and returns an *APIError.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return parseError(resp.StatusCode, data)
}

// DecodeJSON checks resp and decodes its body into v, closing the body.
func DecodeJSON(resp *http.Response, v any) error {
	if err := CheckResponse(resp); err != nil {
		return err
	}
	defer resp.Body.Close()
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		path := ""
		if resp.Request != nil {
			path = resp.Request.URL.Path
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Discard drains and closes the body of resp.
func Discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func parseError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Detail = strings.TrimSpace(string(data))
		apiErr.Requires2FA = mentionsSecondFactor(apiErr.Detail)
		return apiErr
	}

	for _, key := range []string{"detail", "error", "message"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			apiErr.Detail = text
		} else {
			apiErr.Detail = string(raw)
		}
		break
	}

	var flag bool
	for _, key := range []string{"requires_2fa", "totp_required"} {
		if raw, ok := payload[key]; ok && json.Unmarshal(raw, &flag) == nil && flag {
			apiErr.Requires2FA = true
		}
	}
	if !apiErr.Requires2FA {
		apiErr.Requires2FA = mentionsSecondFactor(apiErr.Detail)
	}
	return apiErr
}

func mentionsSecondFactor(detail string) bool {
	lower := strings.ToLower(detail)
	for _, marker := range []string{"2fa", "two-factor", "two factor", "totp"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
