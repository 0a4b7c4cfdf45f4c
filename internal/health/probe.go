// Package health probes the supervised server's HTTP endpoint.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/smazurov/plexwatch/internal/version"
)

// Outcome classifies a probe.
type Outcome int

// Probe outcomes.
const (
	Success          Outcome = iota // a response was received, whatever its status
	TransportFailure                // no response: refused, DNS, reset, bad URL
	Timeout                         // no response within the probe timeout
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TransportFailure:
		return "transport_failure"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the tagged outcome of one probe. StatusCode is only set for Success.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Healthy reports whether the probe got exactly HTTP 200.
func (r Result) Healthy() bool {
	return r.Outcome == Success && r.StatusCode == http.StatusOK
}

// Reason is a short description of why a result is unhealthy.
func (r Result) Reason() string {
	switch r.Outcome {
	case Success:
		return fmt.Sprintf("status %d", r.StatusCode)
	case Timeout:
		return "timeout"
	default:
		if r.Err != nil {
			return "transport failure: " + r.Err.Error()
		}
		return "transport failure"
	}
}

// Prober performs a single health check.
type Prober interface {
	Probe(ctx context.Context) Result
}

// HTTPProber issues GET requests against a fixed URL.
type HTTPProber struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPProber creates a prober for url. Every request is bounded by timeout
// and opens a fresh connection.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	client := cleanhttp.DefaultClient()
	client.Timeout = timeout
	return &HTTPProber{url: url, timeout: timeout, client: client}
}

// URL returns the probed URL.
func (p *HTTPProber) URL() string {
	return p.url
}

// Probe performs one GET. Transport errors are returned as a Result, never
// as an error; the response body is discarded unread beyond draining.
func (p *HTTPProber) Probe(ctx context.Context) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return Result{Outcome: TransportFailure, Duration: time.Since(start), Err: err}
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{Outcome: classify(ctx, err), Duration: time.Since(start), Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return Result{Outcome: Success, StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

// classify separates timeouts from every other transport error.
func classify(ctx context.Context, err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Timeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}
	return TransportFailure
}
