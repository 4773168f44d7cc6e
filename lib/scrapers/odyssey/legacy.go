package odyssey

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"courtdata-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

const DefaultCalendarLinkText = "Court Calendar"

// legacyNavigator speaks the pre-2017 aspx dialect: the search page has
// to be discovered from the portal root, and some counties hide it
// behind a public guest login encoded in the profile notes.
type legacyNavigator struct {
	c *Client
}

type credentials struct {
	username string
	password string
}

// parseCredentials pulls guest credentials out of the profile notes,
// which look like `PUBLICLOGIN#user/pass#...`. A malformed notes field
// is a configuration error and must fail before any network activity.
func parseCredentials(county, notes string) (*credentials, error) {
	if !strings.Contains(notes, "PUBLICLOGIN#") {
		return nil, nil
	}

	parts := strings.Split(notes, "#")
	if len(parts) < 3 {
		return nil, fmt.Errorf(
			"for %s, the notes section is malformed: expected at least 2 '#' signs in %q",
			county, notes,
		)
	}
	userpass := strings.Split(parts[1], "/")
	if len(userpass) != 2 {
		return nil, fmt.Errorf(
			"for %s, the notes section is malformed: expected exactly 1 '/' sign in %q",
			county, notes,
		)
	}

	return &credentials{username: userpass[0], password: userpass[1]}, nil
}

func (n *legacyNavigator) login(ctx context.Context, creds *credentials) error {
	_, err := n.c.RequestPage(ctx, PageRequest{
		URL: n.c.resolve("login.aspx"),
		FormData: map[string]string{
			"UserName":     creds.username,
			"Password":     creds.password,
			"ValidateUser": "1",
			"dbKeyAuth":    "Justice",
			"SignOn":       "Sign On",
		},
	})
	return err
}

// findSearchURL loads the portal root and scans its search hyperlinks
// for the court calendar. The page id embedded in the matching href
// becomes the search url. No match means no crawl is possible.
func (n *legacyNavigator) findSearchURL(ctx context.Context, linkText string) (string, error) {
	ctx, span := tracer.Start(ctx, "legacy:findSearchURL")
	defer span.End()

	mainPage, err := n.c.RequestPage(ctx, PageRequest{
		URL:              n.c.base.String(),
		Method:           http.MethodGet,
		VerificationText: "ssSearchHyperlink",
	})
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(mainPage))
	if err != nil {
		return "", err
	}

	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find("a.ssSearchHyperlink")) {
		if !strings.Contains(anchor.Name, linkText) {
			continue
		}
		slog.DebugContext(ctx, "found court calendar link", "href", anchor.Href)

		_, after, found := strings.Cut(anchor.Href, "?ID=")
		if !found {
			continue
		}
		pageID, _, _ := strings.Cut(after, "'")
		return n.c.resolve("Search.aspx?ID=" + pageID), nil
	}

	n.c.dumpDebug(mainPage)
	perr := &PageError{
		URL:              n.c.base.String(),
		VerificationText: fmt.Sprintf("%s link", linkText),
		Body:             mainPage,
	}
	span.RecordError(perr)
	span.SetStatus(codes.Error, "no court calendar link")
	return "", perr
}

func (n *legacyNavigator) OpenSearch(ctx context.Context, opts OpenSearchOptions) (*SearchSession, error) {
	ctx, span := tracer.Start(ctx, "legacy:OpenSearch")
	defer span.End()

	creds, err := parseCredentials(n.c.profile.County, n.c.profile.Notes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed credential notes")
		return nil, err
	}
	if creds != nil {
		if err := n.login(ctx, creds); err != nil {
			return nil, err
		}
	}

	linkText := opts.CalendarLinkText
	if linkText == "" {
		linkText = DefaultCalendarLinkText
	}
	searchURL, err := n.findSearchURL(ctx, linkText)
	if err != nil {
		return nil, err
	}

	searchPage, err := n.c.RequestPage(ctx, PageRequest{
		URL:              searchURL,
		Method:           http.MethodGet,
		VerificationText: "Court Calendar",
	})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchPage))
	if err != nil {
		return nil, err
	}

	session := &SearchSession{
		SearchURL:    searchURL,
		HiddenFields: hiddenInputs(doc),
		Officers:     officerOptions(doc, `select[labelname="Judicial Officer:"] > option`),
	}

	// legacy submissions additionally want the location node. the
	// search page's first location option is authoritative here; there
	// is no separate main-page selector to read it from.
	location := doc.Find("option").First()
	if location.Length() > 0 {
		session.HiddenFields["NodeID"] = location.AttrOr("value", "")
		nodeDesc := opts.Location
		if nodeDesc == "" {
			nodeDesc = location.Text()
		}
		session.HiddenFields["NodeDesc"] = nodeDesc
		slog.InfoContext(ctx, "legacy location", "node_desc", nodeDesc)
	}

	return session, nil
}

func (n *legacyNavigator) Search(ctx context.Context, session *SearchSession, query SearchQuery) ([]CaseReference, error) {
	ctx, span := tracer.Start(ctx, "legacy:Search")
	defer span.End()

	resultsPage, err := n.c.RequestPage(ctx, PageRequest{
		URL:              session.SearchURL,
		FormData:         searchFormData(session, query, GenerationLegacy),
		VerificationText: "Record Count",
	})
	if err != nil {
		return nil, err
	}

	return n.collectResults(resultsPage)
}

// SearchCaseNumber looks a single case up by number instead of by
// calendar date. Only the legacy dialect exposes this form.
func (n *legacyNavigator) SearchCaseNumber(ctx context.Context, session *SearchSession, caseNumber string) ([]CaseReference, error) {
	ctx, span := tracer.Start(ctx, "legacy:SearchCaseNumber")
	defer span.End()

	resultsPage, err := n.c.RequestPage(ctx, PageRequest{
		URL:              session.SearchURL,
		FormData:         singleCaseFormData(session, caseNumber, time.Now()),
		VerificationText: "Record Count",
	})
	if err != nil {
		return nil, err
	}

	return n.collectResults(resultsPage)
}

// collectResults pulls case references out of a legacy result page:
// every anchor pointing at a case detail path, in response order.
func (n *legacyNavigator) collectResults(resultsPage string) ([]CaseReference, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resultsPage))
	if err != nil {
		return nil, err
	}

	var refs []CaseReference
	doc.Find(`a[href^="CaseDetail"]`).Each(func(_ int, anchor *goquery.Selection) {
		href := anchor.AttrOr("href", "")
		caseURL := n.c.base.String() + href
		_, caseID, _ := strings.Cut(caseURL, "=")
		refs = append(refs, CaseReference{
			CaseURL: caseURL,
			CaseID:  caseID,
		})
	})
	return refs, nil
}

func (n *legacyNavigator) FetchCase(ctx context.Context, ref CaseReference) (string, error) {
	return n.c.RequestPage(ctx, PageRequest{
		URL:              ref.CaseURL,
		VerificationText: "Date Filed",
	})
}
