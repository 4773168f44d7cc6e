// Package odyssey drives the two generations of Odyssey court portals:
// the pre-2017 aspx pages ("legacy") and the 2017+ dashboard ("modern").
// It covers the whole protocol surface one crawl needs: session setup,
// search discovery, hidden field harvesting, query submission, case
// retrieval, dedupe fingerprinting and (legacy only) record extraction.
package odyssey

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"courtdata-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scrapers/odyssey")

type Generation int

const (
	GenerationLegacy Generation = iota
	GenerationModern
)

func (g Generation) String() string {
	if g == GenerationLegacy {
		return "legacy"
	}
	return "modern"
}

// PortalProfile identifies one county's portal. Immutable once loaded.
type PortalProfile struct {
	County  string
	BaseURL string // trailing-slash terminated
	Version int    // portal software version year
	Notes   string // encoded extras, e.g. embedded guest credentials
}

// Generation is fixed at load time and never mixed mid-run.
func (p PortalProfile) Generation() Generation {
	if p.Version < 2017 {
		return GenerationLegacy
	}
	return GenerationModern
}

// DebugWriter receives the offending response body when a request fails
// terminally, so there is something to look at during a postmortem.
type DebugWriter interface {
	Write(name string, contents string)
}

type Client struct {
	http    *resty.Client
	base    *url.URL
	profile PortalProfile
	debug   DebugWriter

	wait       time.Duration
	maxRetries int
}

type Options struct {
	Profile PortalProfile
	// delay unit between retries, default 200ms
	Wait time.Duration
	// default 5
	MaxRetries int
	// optional, terminal failure bodies are dropped when nil
	Debug DebugWriter
}

func NewClient(opts Options) (*Client, error) {
	baseStr := opts.Profile.BaseURL
	if !strings.HasSuffix(baseStr, "/") {
		baseStr += "/"
	}
	base, err := url.Parse(baseStr)
	if err != nil {
		return nil, fmt.Errorf("parse portal base url: %w", err)
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	// county portals routinely serve self-signed certificates; accepting
	// them is a deliberate trust decision, not an oversight
	client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	client.SetTimeout(time.Second * 60)

	telemetry.InstrumentResty(client, "scrapers/odyssey/http")

	wait := opts.Wait
	if wait <= 0 {
		wait = 200 * time.Millisecond
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	return &Client{
		http:       client,
		base:       base,
		profile:    opts.Profile,
		debug:      opts.Debug,
		wait:       wait,
		maxRetries: maxRetries,
	}, nil
}

func (c *Client) Profile() PortalProfile {
	return c.profile
}

// Navigator returns the protocol implementation for the profile's
// generation. Shared components (fetch, dedupe, partitioning) do not
// branch; everything generation-specific lives behind this interface.
func (c *Client) Navigator() Navigator {
	if c.profile.Generation() == GenerationLegacy {
		return &legacyNavigator{c: c}
	}
	return &modernNavigator{c: c}
}

// resolve joins a relative portal path onto the base url.
func (c *Client) resolve(ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.base.ResolveReference(parsed).String()
}

// SearchSession holds everything harvested from the search page that a
// submission needs. Built once per crawl run, read-only afterwards.
type SearchSession struct {
	SearchURL string
	// hidden input name/value pairs; submitting without them is a
	// protocol violation
	HiddenFields map[string]string
	// judicial officer display name -> portal id
	Officers map[string]string
}

// SearchQuery is one (day, judicial officer) pair.
type SearchQuery struct {
	Date        time.Time
	OfficerID   string
	OfficerName string
}

func (q SearchQuery) DateString() string {
	return q.Date.Format("01/02/2006")
}

// Azure-era artifact kept on purpose: slashes in storage keys read as
// directory separators downstream.
func (q SearchQuery) DateUnderscore() string {
	return q.Date.Format("01_02_2006")
}

// CaseReference addresses one case without holding its content. Legacy
// results carry CaseURL+CaseID, modern results carry the id triple.
type CaseReference struct {
	CaseURL     string `json:"case-url,omitempty"`
	CaseID      string `json:"case-id,omitempty"`
	EncryptedID string `json:"encrypted-id,omitempty"`
	CaseNumber  string `json:"case-number,omitempty"`
}

// Navigator is the generation capability interface. A Navigator owns
// everything that differs between portal generations.
type Navigator interface {
	// OpenSearch authenticates if the profile requires it, locates the
	// search page and harvests a SearchSession from it.
	OpenSearch(ctx context.Context, opts OpenSearchOptions) (*SearchSession, error)
	// Search submits one query and collects the resulting case
	// references in portal response order.
	Search(ctx context.Context, session *SearchSession, query SearchQuery) ([]CaseReference, error)
	// FetchCase retrieves one case's full document.
	FetchCase(ctx context.Context, ref CaseReference) (string, error)
}

// CaseNumberSearcher is the optional lookup-by-case-number capability.
// Only the legacy dialect exposes the form for it.
type CaseNumberSearcher interface {
	SearchCaseNumber(ctx context.Context, session *SearchSession, caseNumber string) ([]CaseReference, error)
}

type OpenSearchOptions struct {
	// anchor text of the calendar link on legacy portals,
	// default "Court Calendar"
	CalendarLinkText string
	// optional location (NodeDesc) override for legacy submissions
	Location string
}
