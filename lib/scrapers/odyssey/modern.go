package odyssey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/codes"
)

// modernNavigator speaks the 2017+ dashboard dialect. The search page
// lives at a fixed path, result listings come back as JSON, and a case
// document is stitched together from two fragments.
type modernNavigator struct {
	c *Client
}

func (n *modernNavigator) OpenSearch(ctx context.Context, opts OpenSearchOptions) (*SearchSession, error) {
	ctx, span := tracer.Start(ctx, "modern:OpenSearch")
	defer span.End()

	searchURL := n.c.resolve("Home/Dashboard/26")
	searchPage, err := n.c.RequestPage(ctx, PageRequest{
		URL:              searchURL,
		Method:           http.MethodGet,
		VerificationText: "SearchCriteria.SelectedCourt",
	})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchPage))
	if err != nil {
		return nil, err
	}

	hidden := hiddenInputs(doc)
	// the modern form refuses submissions without an explicit court; the
	// dashboard's default location doubles as that selection
	// TODO: loop over every court the portal lists instead of only the
	// default one
	hidden["SearchCriteria.SelectedCourt"] = hidden["Settings.DefaultLocation"]

	session := &SearchSession{
		SearchURL:    searchURL,
		HiddenFields: hidden,
		Officers:     officerOptions(doc, `select[id="selHSJudicialOfficer"] > option`),
	}
	slog.DebugContext(
		ctx, "harvested modern search session",
		"hidden_fields", len(session.HiddenFields),
		"officers", len(session.Officers),
	)
	return session, nil
}

func (n *modernNavigator) Search(ctx context.Context, session *SearchSession, query SearchQuery) ([]CaseReference, error) {
	ctx, span := tracer.Start(ctx, "modern:Search")
	defer span.End()

	// the first POST only primes the result set server-side; a second
	// read endpoint delivers the actual payload as JSON
	_, err := n.c.RequestPage(ctx, PageRequest{
		URL:              n.c.resolve("Hearing/SearchHearings/HearingSearch"),
		FormData:         searchFormData(session, query, GenerationModern),
		VerificationText: "Search Results",
	})
	if err != nil {
		return nil, err
	}

	listing, err := n.c.RequestPage(ctx, PageRequest{
		URL:              n.c.resolve("Hearing/HearingResults/Read"),
		VerificationText: "AggregateResults",
	})
	if err != nil {
		return nil, err
	}

	var results struct {
		Total int `json:"Total"`
		Data  []struct {
			CaseID          json.Number `json:"CaseId"`
			EncryptedCaseID string      `json:"EncryptedCaseId"`
			CaseNumber      string      `json:"CaseNumber"`
		} `json:"Data"`
	}
	if err := json.Unmarshal([]byte(listing), &results); err != nil {
		err = fmt.Errorf("decode hearing results: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed hearing results")
		return nil, err
	}
	slog.InfoContext(ctx, "cases found", "total", results.Total)

	refs := make([]CaseReference, 0, len(results.Data))
	for _, entry := range results.Data {
		refs = append(refs, CaseReference{
			CaseID:      entry.CaseID.String(),
			EncryptedID: entry.EncryptedCaseID,
			CaseNumber:  entry.CaseNumber,
		})
	}
	return refs, nil
}

// FetchCase retrieves the detail page and the financial fragment and
// concatenates them. The portal serves financial data asynchronously
// even though its UI shows one page; stitching reproduces that page.
func (n *modernNavigator) FetchCase(ctx context.Context, ref CaseReference) (string, error) {
	ctx, span := tracer.Start(ctx, "modern:FetchCase")
	defer span.End()

	detail, err := n.c.RequestPage(ctx, PageRequest{
		URL: n.c.resolve("Case/CaseDetail"),
		Params: map[string]string{
			"eid":        ref.EncryptedID,
			"CaseNumber": ref.CaseNumber,
		},
		VerificationText: "Case Information",
	})
	if err != nil {
		return "", err
	}

	financial, err := n.c.RequestPage(ctx, PageRequest{
		URL: n.c.resolve("Case/CaseDetail/LoadFinancialInformation"),
		Params: map[string]string{
			"caseId": ref.CaseID,
		},
		VerificationText: "Financial",
	})
	if err != nil {
		return "", err
	}

	return detail + financial, nil
}
