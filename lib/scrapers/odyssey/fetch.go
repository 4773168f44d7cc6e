package odyssey

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// PageRequest describes one portal page fetch. Zero values fall back to
// the client's defaults.
type PageRequest struct {
	URL string
	// defaults to POST; the portal expects POST even for reads
	Method           string
	Params           map[string]string
	FormData         map[string]string
	VerificationText string
	MaxRetries       int
	Wait             time.Duration
}

// PageError is a terminal fetch failure. Body carries the last response
// body so the failure can be diagnosed offline.
type PageError struct {
	URL              string
	VerificationText string
	StatusCode       int
	Body             string
}

func (e *PageError) Error() string {
	if e.VerificationText != "" {
		return fmt.Sprintf(
			"%q could not be found in page %s (status %d)",
			e.VerificationText, e.URL, e.StatusCode,
		)
	}
	return fmt.Sprintf("failed to load page %s (status %d)", e.URL, e.StatusCode)
}

// dumpDebug persists a failing response body for postmortem inspection.
func (c *Client) dumpDebug(body string) {
	if c.debug == nil {
		return
	}
	c.debug.Write("debug.html", body)
}

// RequestPage fetches a page through the shared session. Non-success
// responses are retried with linearly increasing delay; a success
// response missing VerificationText is rejected outright (the portal
// happily serves error pages with status 200). Either the validated
// body comes back unchanged or the call fails, there is no partial
// success.
func (c *Client) RequestPage(ctx context.Context, req PageRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "RequestPage")
	defer span.End()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = c.maxRetries
	}
	wait := req.Wait
	if wait <= 0 {
		wait = c.wait
	}

	var body string
	var status int
	attempt := 0
	for {
		slog.DebugContext(ctx, "requesting page", "method", method, "url", req.URL, "attempt", attempt)

		r := c.http.R().SetContext(ctx)
		if len(req.Params) > 0 {
			r.SetQueryParams(req.Params)
		}
		if len(req.FormData) > 0 {
			r.SetFormData(req.FormData)
		}

		res, err := r.Execute(method, req.URL)
		if err == nil && res.IsSuccess() {
			body = res.String()
			status = res.StatusCode()
			break
		}

		if res != nil {
			body = res.String()
			status = res.StatusCode()
		}
		slog.WarnContext(
			ctx, "page request failed",
			"method", method,
			"url", req.URL,
			"status", status,
			"attempt", attempt,
			"err", err,
		)

		attempt++
		if attempt > maxRetries {
			c.dumpDebug(body)
			perr := &PageError{
				URL:              req.URL,
				VerificationText: req.VerificationText,
				StatusCode:       status,
				Body:             body,
			}
			span.RecordError(perr)
			span.SetStatus(codes.Error, "retries exhausted")
			return "", perr
		}

		select {
		case <-time.After(wait * time.Duration(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	// the marker check only runs post-success and is never retried: a
	// well-formed error page will look exactly the same next time
	if req.VerificationText != "" && !strings.Contains(body, req.VerificationText) {
		c.dumpDebug(body)
		perr := &PageError{
			URL:              req.URL,
			VerificationText: req.VerificationText,
			StatusCode:       status,
			Body:             body,
		}
		span.RecordError(perr)
		span.SetStatus(codes.Error, "verification text missing")
		return "", perr
	}

	return body, nil
}
