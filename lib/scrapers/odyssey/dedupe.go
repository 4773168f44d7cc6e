package odyssey

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a change-detection key for one case document, not a
// security primitive. Re-fetching an unchanged case yields the same
// fingerprint, so the sink can skip rewriting it.
type Fingerprint struct {
	CaseNumber  string
	ContentHash string
}

// FingerprintCase extracts the case number and hashes the document
// body. The last body table is dropped before hashing when it carries a
// "Balance Due" line, since balances move over time without anything
// substantive changing in the case.
func FingerprintCase(caseHTML string) (Fingerprint, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(caseHTML))
	if err != nil {
		return Fingerprint{}, err
	}

	caseNumber := doc.Find(`div.ssCaseDetailCaseNbr > span`).First().Text()
	if caseNumber == "" {
		return Fingerprint{}, fmt.Errorf("case document has no case number element")
	}

	body := doc.Find("body").First()
	balanceTable := body.Find("table").Last()
	if strings.Contains(balanceTable.Text(), "Balance Due") {
		balanceTable.Remove()
	}

	markup, err := goquery.OuterHtml(body)
	if err != nil {
		return Fingerprint{}, err
	}

	return Fingerprint{
		CaseNumber:  caseNumber,
		ContentHash: fmt.Sprintf("%016x", xxhash.Sum64String(markup)),
	}, nil
}

// StorageKey composes the blob name for one fetched case. The date uses
// underscores so the key never reads as nested directories downstream.
func (f Fingerprint) StorageKey(county, dateUnderscore string) string {
	return fmt.Sprintf("%s:%s:%s:%s.html", f.CaseNumber, county, dateUnderscore, f.ContentHash)
}
