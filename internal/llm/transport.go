package llm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
)

type rawResponseKey struct{}

// rawResponse holds the last response body seen for one Complete call.
type rawResponse struct {
	mu     sync.Mutex
	status int
	body   []byte
}

func (r *rawResponse) record(status int, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status, r.body = status, body
}

func (r *rawResponse) get() (int, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.body
}

func withRawResponse(ctx context.Context) (context.Context, *rawResponse) {
	raw := &rawResponse{}
	return context.WithValue(ctx, rawResponseKey{}, raw), raw
}

// recordingDoer buffers each response body so the caller can fall back to
// it when the completion text cannot be extracted.
type recordingDoer struct {
	client *http.Client
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if raw, ok := req.Context().Value(rawResponseKey{}).(*rawResponse); ok {
		raw.record(resp.StatusCode, body)
	}
	return resp, nil
}
