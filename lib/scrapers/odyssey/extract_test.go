package odyssey

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const legacyCasePage = `<html><body>
<div class="ssCaseDetailCaseNbr"><span>CR-2015-0042</span></div>
<table>
<tr><td><b>The State of Texas vs. John Doe</b></td></tr>
<tr><th>Case Type:</th><td><b>Misdemeanor B</b></td></tr>
<tr><th>Date Filed:</th><td><b>01/15/2015</b></td></tr>
<tr><th>Location:</th><td><b>County Court at Law 1</b></td><th></th><td><b>Courtroom 2</b></td></tr>
</table>
<table>
<tr><th>Related Case Information</th></tr>
<tr><td>CR-2014-0001</td><td>CR-2014-0002</td></tr>
</table>
<table>
<tr><td>Party Information</td></tr>
<tr><td>Bondsman</td><td>AAA Bail Bonds</td></tr>
<tr><td>123 Bond St</td><td>Austin, TX 78701</td></tr>
<tr><td>Defendant</td><td>Doe, John</td><td>Male White</td><td>DOB: 01/01/1980</td><td>5'10&#34;, 180</td><td>Smith, Jane</td><td>Retained</td><td>(512) 555-1234</td></tr>
<tr><td>500 Main St</td><td>Austin, TX 78701</td><td>SID:</td><td>TX12345678</td></tr>
<tr><td>State</td><td>State of Texas</td><td>Prosecutor Pat</td><td>(512) 555-9999</td></tr>
<tr><td>100 Court St</td><td>Austin, TX 78701</td></tr>
</table>
<table>
<tr><td>Charge Information</td></tr>
<tr><td>Charges</td><td>Statute</td><td>Level</td><td>Date</td></tr>
<tr><td>1</td><td>POSS MARIJ</td><td>481.121</td><td>Misdemeanor B</td><td>01/10/2015</td></tr>
</table>
<table>
<tr><th>Events &amp; Orders of the Court</th></tr>
<tr><th>DISPOSITIONS</th></tr>
<tr><th>01/20/2015</th><td>Disposition</td><td>Guilty Plea</td></tr>
<tr><th>OTHER EVENTS AND HEARINGS</th></tr>
<tr><th>01/16/2015</th><td>Hearing</td><td>Arraignment</td></tr>
<tr><th>02/01/2015</th><td>Motion Hearing</td></tr>
</table>
<table>
<tr><th>Financial Information</th></tr>
<tr><th>Total Financial Assessment</th><td>284.00</td></tr>
<tr><th>Total Payments and Credits</th><td>50.00</td></tr>
<tr><th>Balance Due</th><td>234.00</td></tr>
<tr><th>01/20/2015</th><td>Payment</td><td>(50.00)</td></tr>
</table>
<table><tr><td>&#160;</td></tr></table>
</body></html>`

func TestExtractCaseRecordFullPage(t *testing.T) {
	record, err := ExtractCaseRecord(legacyCasePage)
	require.NoError(t, err)

	require.Equal(t, "CR-2015-0042", record.CaseNumber)
	require.Equal(t, "The State of Texas vs. John Doe", record.Name)
	wantHeaders := map[string]string{
		"case type":  "Misdemeanor B",
		"date filed": "01/15/2015",
		"location":   "County Court at Law 1\nCourtroom 2",
	}
	if diff := cmp.Diff(wantHeaders, record.Headers); diff != "" {
		t.Errorf("headers mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, []string{"CR-2014-0001", "CR-2014-0002"}, record.RelatedCases)

	wantParty := &PartyInformation{
		Defendant:                  "Doe, John",
		Sex:                        "Male",
		Race:                       "White",
		DateOfBirth:                "01/01/1980",
		Height:                     `5'10"`,
		Weight:                     "180",
		DefenseAttorney:            "Smith, Jane",
		AppointedOrRetained:        "Retained",
		DefenseAttorneyPhone:       "(512) 555-1234",
		DefendantAddress:           "500 Main St, Austin, TX 78701",
		SID:                        "TX12345678",
		ProsecutingAttorney:        "Prosecutor Pat",
		ProsecutingAttorneyPhone:   "(512) 555-9999",
		ProsecutingAttorneyAddress: "100 Court St, Austin, TX 78701",
		Bondsman:                   "AAA Bail Bonds",
		BondsmanAddress:            "123 Bond St, Austin, TX 78701",
	}
	if diff := cmp.Diff(wantParty, record.Party); diff != "" {
		t.Errorf("party mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, []Charge{{
		Charges: "POSS MARIJ",
		Statute: "481.121",
		Level:   "Misdemeanor B",
		Date:    "01/10/2015",
	}}, record.Charges)

	require.Equal(t, [][]string{
		{"01/16/2015", "Hearing", "Arraignment"},
		{"02/01/2015", "Motion Hearing"},
	}, record.OtherEvents)
	require.Equal(t, [][]string{
		{"01/20/2015", "Disposition", "Guilty Plea"},
	}, record.Dispositions)

	require.Equal(t, &FinancialInfo{
		TotalAssessment: "284.00",
		TotalPayments:   "50.00",
		BalanceDue:      "234.00",
		Transactions:    [][]string{{"01/20/2015", "Payment", "(50.00)"}},
	}, record.Financial)

	require.Empty(t, record.Missing)
	require.Equal(t, 1, record.UnclassifiedTables)
}

// partyPage wraps one defendant row (and optional extra rows) in the
// minimum page skeleton the extractor accepts.
func partyPage(defendantRow string, extraTables string) string {
	return `<html><body>
<div class="ssCaseDetailCaseNbr"><span>CR-1</span></div>
<table>
<tr><td>Party Information</td></tr>
` + defendantRow + `
<tr><td>State</td><td>State of Texas</td><td>Prosecutor Pat</td><td>(512) 555-9999</td></tr>
</table>
` + extraTables + `
</body></html>`
}

func TestExtractPartyFoldsAliasIntoName(t *testing.T) {
	row := `<tr><td>Defendant</td><td>Doe, John</td><td>AKA</td><td>Johnny</td><td>Male White</td><td>DOB: 01/01/1980</td><td>5'10&#34;, 180</td><td>Smith, Jane</td><td>Retained</td><td>(512) 555-1234</td></tr>`
	record, err := ExtractCaseRecord(partyPage(row, ""))
	require.NoError(t, err)

	require.Equal(t, "Doe, John AKA Johnny", record.Party.Defendant)
	require.Equal(t, "Male", record.Party.Sex)
	require.Equal(t, "Retained", record.Party.AppointedOrRetained)
}

func TestExtractPartyWithoutSexToken(t *testing.T) {
	row := `<tr><td>Defendant</td><td>Doe, John</td><td>DOB: 01/01/1980</td></tr>`
	record, err := ExtractCaseRecord(partyPage(row, ""))
	require.NoError(t, err)

	require.Equal(t, "Doe, John", record.Party.Defendant)
	require.Equal(t, "Unavailable", record.Party.Sex)
	require.Equal(t, "Unavailable", record.Party.Race)
	require.Equal(t, "01/01/1980", record.Party.DateOfBirth)
	require.Empty(t, record.Party.Height)
	require.Contains(t, record.Missing, "height")
	require.Contains(t, record.Missing, "defense attorney")
}

func TestExtractPartyRepresentationFallbackScan(t *testing.T) {
	row := `<tr><td>Defendant</td><td>Doe, John</td><td>Male White</td><td>DOB: 01/01/1980</td><td>5'10&#34;, 180</td><td>Smith, Jane (Court Appointed)</td><td>Oral</td><td>(512) 555-1234</td></tr>`
	record, err := ExtractCaseRecord(partyPage(row, ""))
	require.NoError(t, err)

	// "Oral" is not a representation value; the raw rows mention
	// "Court Appointed" which outranks plain "Appointed"
	require.Equal(t, "Court Appointed", record.Party.AppointedOrRetained)
}

func TestExtractWaiverOfCounselRetrofit(t *testing.T) {
	row := `<tr><td>Defendant</td><td>Doe, John</td><td>Male White</td><td>DOB: 01/01/1980</td><td>5'10&#34;, 180</td></tr>`
	events := `<table>
<tr><th>Events &amp; Orders of the Court</th></tr>
<tr><th>OTHER EVENTS AND HEARINGS</th></tr>
<tr><th>01/16/2015</th><td>Waiver of Right to Counsel</td></tr>
</table>`
	record, err := ExtractCaseRecord(partyPage(row, events))
	require.NoError(t, err)

	require.Equal(t, "Waived right to counsel", record.Party.AppointedOrRetained)
}

func TestExtractRequiresCaseNumber(t *testing.T) {
	_, err := ExtractCaseRecord(`<html><body><table><tr><td>x</td></tr></table></body></html>`)
	require.Error(t, err)
}
