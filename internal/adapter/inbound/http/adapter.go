package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voltigdev/voltig-turbo/internal/port/inbound"
)

// NativeRequest is the server-side view of an inbound request: headers keep
// every value and a JSON body is already parsed.
type NativeRequest struct {
	Method string
	URL    string
	Host   string
	Header map[string][]string
	// Body is the parsed JSON body, or nil when the request had none.
	Body any
}

// NativeRequestFrom reads r into a NativeRequest. An empty body yields a nil
// Body; a body that is not JSON is an error.
func NativeRequestFrom(r *http.Request) (*NativeRequest, error) {
	nr := &NativeRequest{
		Method: r.Method,
		URL:    r.URL.RequestURI(),
		Host:   r.Host,
		Header: map[string][]string(r.Header.Clone()),
	}
	if r.Body == nil {
		return nr, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nr, nil
	}
	if err := json.Unmarshal(data, &nr.Body); err != nil {
		return nil, fmt.Errorf("parsing request body: %w", err)
	}
	return nr, nil
}

// ToStandardRequest converts a NativeRequest into an *http.Request for a
// fetch-style handler. Multi-valued headers are joined with ", ", a non-nil
// Body is re-serialised as JSON and a nil Body sends no body. Malformed
// fields degrade to empty values instead of failing.
func ToStandardRequest(ctx context.Context, nr *NativeRequest) (*http.Request, error) {
	target := "http://" + nr.Host + nr.URL
	if nr.Host == "" {
		target = "http://localhost" + nr.URL
	}

	var body io.Reader
	if nr.Body != nil {
		data, err := json.Marshal(nr.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, nr.Method, target, body)
	if err != nil {
		req, err = http.NewRequestWithContext(ctx, nr.Method, "http://localhost/", body)
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
	}
	req.Host = nr.Host

	for name, values := range nr.Header {
		if len(values) == 0 {
			continue
		}
		req.Header.Set(name, strings.Join(values, ", "))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// ApplyStandardResponse writes resp to w: status verbatim, every header and
// the body. A nil body is written as an explicit empty body.
func ApplyStandardResponse(resp *inbound.Response, w http.ResponseWriter) {
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	if resp.Body == nil {
		w.Header().Set("Content-Length", "0")
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
