package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mobiledgex/matchingengine/pkg/codec"
	"github.com/mobiledgex/matchingengine/pkg/dme"
	"github.com/mobiledgex/matchingengine/pkg/dmeuri"
)

// maxReplyBytes bounds how much of a reply body is read.
const maxReplyBytes = 1 << 20

// maxErrorBody bounds how much of an error body is kept on a TransportError.
const maxErrorBody = 4 << 10

// Target is the host and port a call is sent to.
type Target struct {
	Host string
	Port uint32
}

func (t Target) String() string { return dmeuri.Authority(t.Host, t.Port) }

// Transport performs one request/reply exchange with a matching engine.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Call sends req to api at target and decodes the answer into reply.
	// Any failure is reported as a *TransportError.
	Call(ctx context.Context, target Target, api dme.API, req, reply any) error
	// DefaultPort is the port used when neither the client nor the call
	// names one.
	DefaultPort() uint32
}

// RESTTransport posts JSON to the matching engine REST surface at
// https://<host>:<port>/v1/<api>.
type RESTTransport struct {
	httpClient *http.Client
	codec      codec.JSON
}

// NewRESTTransport returns a REST transport using hc. A nil hc gets a
// plain client; each call is bounded by its context.
func NewRESTTransport(hc *http.Client) *RESTTransport {
	if hc == nil {
		hc = &http.Client{}
	}
	return &RESTTransport{httpClient: hc}
}

func (t *RESTTransport) DefaultPort() uint32 { return dmeuri.DefaultRESTPort }

func (t *RESTTransport) Call(ctx context.Context, target Target, api dme.API, req, reply any) error {
	url := dmeuri.BaseURI(target.Host, target.Port) + api.Path

	body, err := t.codec.Marshal(req)
	if err != nil {
		return &TransportError{API: api.Name, URL: url, Err: fmt.Errorf("encode request: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{API: api.Name, URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return transportFailure(ctx, api.Name, url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return transportFailure(ctx, api.Name, url, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusFailure(api.Name, url, resp.StatusCode, data)
	}

	// Streaming replies arrive as a sequence of JSON objects; the first one
	// carries the answer.
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(reply); err != nil {
		return &TransportError{
			API:        api.Name,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       truncate(data),
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// statusFailure builds the error for a non-success HTTP status, picking up
// the {"code":..,"message":..} body the matching engine sends with it.
func statusFailure(api, url string, statusCode int, body []byte) *TransportError {
	te := &TransportError{API: api, URL: url, StatusCode: statusCode, Body: truncate(body)}

	var payload struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		te.Code = payload.Code
		te.Message = payload.Message
		if te.Message == "" {
			te.Message = payload.Error
		}
	} else {
		te.Message = strings.TrimSpace(string(truncate(body)))
	}
	return te
}

func truncate(b []byte) []byte {
	if len(b) > maxErrorBody {
		return b[:maxErrorBody]
	}
	return b
}
