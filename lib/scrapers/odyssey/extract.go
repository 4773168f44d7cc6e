package odyssey

import (
	"fmt"
	"strings"

	"courtdata-backend/lib/htmlutil"
	"courtdata-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// CaseRecord is the structured form of one legacy case document.
// Fields not present on the page stay zero; the names of fields that
// fell back to empty are listed in Missing so downstream consumers can
// tell "absent" from "parsed as empty".
type CaseRecord struct {
	CaseNumber   string            `json:"code"`
	Name         string            `json:"name,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	RelatedCases []string          `json:"related-cases,omitempty"`
	Party        *PartyInformation `json:"party-information,omitempty"`
	Charges      []Charge          `json:"charge-information,omitempty"`
	OtherEvents  [][]string        `json:"other-events-and-hearings,omitempty"`
	Dispositions [][]string        `json:"dispositions,omitempty"`
	Financial    *FinancialInfo    `json:"financial-information,omitempty"`

	Missing            []string `json:"missing,omitempty"`
	UnclassifiedTables int      `json:"unclassified-tables,omitempty"`
}

type PartyInformation struct {
	Defendant                  string `json:"defendant"`
	Sex                        string `json:"sex"`
	Race                       string `json:"race"`
	DateOfBirth                string `json:"date-of-birth"`
	Height                     string `json:"height"`
	Weight                     string `json:"weight"`
	DefenseAttorney            string `json:"defense-attorney"`
	AppointedOrRetained        string `json:"appointed-or-retained"`
	DefenseAttorneyPhone       string `json:"defense-attorney-phone-number"`
	DefendantAddress           string `json:"defendant-address"`
	SID                        string `json:"sid"`
	ProsecutingAttorney        string `json:"prosecuting-attorney"`
	ProsecutingAttorneyPhone   string `json:"prosecuting-attorney-phone-number"`
	ProsecutingAttorneyAddress string `json:"prosecuting-attorney-address"`
	Bondsman                   string `json:"bondsman"`
	BondsmanAddress            string `json:"bondsman-address"`
}

type Charge struct {
	Charges string `json:"charges"`
	Statute string `json:"statute"`
	Level   string `json:"level"`
	Date    string `json:"date"`
}

type FinancialInfo struct {
	TotalAssessment string     `json:"total-financial-assessment"`
	TotalPayments   string     `json:"total-payments-and-credits"`
	BalanceDue      string     `json:"balance-due"`
	Transactions    [][]string `json:"transactions"`
}

// appointed-or-retained values the portal is known to emit. Anything
// else means the positional parse landed on the wrong cell.
var allowedRepresentation = []string{"Appointed", "Retained", "Court Appointed", "Pro Se"}

// scan order matters: "Court Appointed" must win over "Appointed"
var representationPhrases = []string{"Court Appointed", "Retained", "Appointed", "Pro Se"}

func cleanPartyToken(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, "\u00c2", "")
	return strings.TrimSpace(s)
}

func cleanToken(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}

func cleanCollapsed(s string) string {
	return textutil.CollapseSpace(cleanToken(s))
}

// ExtractCaseRecord parses a legacy case document into a CaseRecord.
// Tables are classified by the header phrases in their text, never by
// position, since malformed pages reorder or omit them. A table whose
// text matches no known phrase is counted, not silently dropped.
func ExtractCaseRecord(caseHTML string) (*CaseRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(caseHTML))
	if err != nil {
		return nil, err
	}

	caseNumber := doc.Find(`div.ssCaseDetailCaseNbr > span`).First().Text()
	if caseNumber == "" {
		return nil, fmt.Errorf("case document has no case number element")
	}
	record := &CaseRecord{CaseNumber: caseNumber}

	var parseErr error
	doc.Find("body > table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		text := table.Text()
		switch {
		case strings.Contains(text, "Case Type:") && strings.Contains(text, "Date Filed:"):
			parseHeaderTable(table, record)
		case strings.Contains(text, "Related Case Information"):
			parseRelatedCases(table, record)
		case strings.Contains(text, "Party Information"):
			parseErr = parsePartyTable(table, record)
		case strings.Contains(text, "Charge Information"):
			parseChargeTable(table, record)
		case strings.Contains(text, "Events & Orders of the Court"):
			parseEventsTable(table, record)
		case strings.Contains(text, "Financial Information"):
			parseFinancialTable(table, record)
		default:
			record.UnclassifiedTables++
		}
		return parseErr == nil
	})
	if parseErr != nil {
		return nil, parseErr
	}

	// counsel waivers only show up as an event row, so the
	// representation field can be backfilled once events are known
	if record.Party != nil && record.Party.AppointedOrRetained == "" {
		if containsFold(record.OtherEvents, "waiver of right to counsel") {
			record.Party.AppointedOrRetained = "Waived right to counsel"
		}
	}

	return record, nil
}

// parseHeaderTable reads the case banner: the first bolded value is the
// case name, then bolded values pair with header labels in encounter
// order. A label cell with no text continues the previous label's value
// onto a new line.
func parseHeaderTable(table *goquery.Selection, record *CaseRecord) {
	var values []string
	table.Find("b").Each(func(_ int, b *goquery.Selection) {
		values = append(values, b.Text())
	})
	var labels []string
	table.Find("th").Each(func(_ int, th *goquery.Selection) {
		labels = append(labels, th.Text())
	})
	if len(values) == 0 {
		return
	}

	record.Name = values[0]
	if record.Headers == nil {
		record.Headers = map[string]string{}
	}
	lastKey := ""
	for i, label := range labels {
		if i+1 >= len(values) {
			break
		}
		value := values[i+1]
		if label != "" {
			// labels carry a trailing colon
			lastKey = strings.ToLower(label[:len(label)-1])
			record.Headers[lastKey] = value
		} else if lastKey != "" {
			record.Headers[lastKey] += "\n" + value
		}
	}
}

func parseRelatedCases(table *goquery.Selection, record *CaseRecord) {
	table.Find("td").Each(func(_ int, td *goquery.Selection) {
		record.RelatedCases = append(record.RelatedCases, cleanToken(td.Text()))
	})
}

// parsePartyTable walks party rows from the bottom up, tagging each row
// with the section in effect when it is consumed. Sections advance on
// the literal marker cells "State", "Defendant" and "Bondsman"; the
// marker row itself still belongs to the section it was consumed under.
func parsePartyTable(table *goquery.Selection, record *CaseRecord) error {
	rows := htmlutil.TableRows(table, cleanPartyToken)

	var stateRows, defendantRows, bondsmanRows [][]string
	section := "state"
	for len(rows) > 0 {
		row := rows[len(rows)-1]
		rows = rows[:len(rows)-1]
		switch section {
		case "state":
			stateRows = append(stateRows, row)
		case "defendant":
			defendantRows = append(defendantRows, row)
		case "bondsman":
			bondsmanRows = append(bondsmanRows, row)
		}
		switch row[0] {
		case "State":
			section = "defendant"
		case "Defendant":
			section = "bondsman"
		}
		if row[0] == "Bondsman" {
			break
		}
	}
	reverseRows(stateRows)
	reverseRows(defendantRows)
	reverseRows(bondsmanRows)

	if len(defendantRows) == 0 || len(stateRows) == 0 {
		return fmt.Errorf("party table is missing its defendant or state section")
	}
	if len(bondsmanRows) > 0 && bondsmanRows[0][0] != "Bondsman" {
		bondsmanRows = nil
	}

	defendant := defendantRows[0]

	// a sex token marks where the name ends; extra tokens before it are
	// an "also known as" run folded into the name
	genderPosition := 0
	for i, token := range defendant {
		if strings.HasPrefix(token, "Male ") || strings.HasPrefix(token, "Female ") {
			genderPosition = i
		}
	}
	if genderPosition > 2 {
		fullName := strings.Join(defendant[1:genderPosition], " ")
		folded := append([]string{defendant[0], fullName}, defendant[genderPosition:]...)
		defendant = folded
	}
	if genderPosition == 0 && len(defendant) >= 2 {
		defendant = append(defendant[:2:2], append([]string{"Unavailable Unavailable"}, defendant[2:]...)...)
	}

	hasHeightAndWeight := len(defendant) > 4 && strings.Contains(defendant[4], ",")
	offset := -1
	if hasHeightAndWeight {
		offset = 0
	}

	party := &PartyInformation{}
	var missing []string
	take := func(row []string, idx int, field string) string {
		if idx < len(row) {
			return row[idx]
		}
		missing = append(missing, field)
		return ""
	}

	party.Defendant = take(defendant, 1, "defendant")
	party.Race = "Unavailable"
	if len(defendant) > 2 {
		fields := strings.Fields(defendant[2])
		if len(fields) > 0 {
			party.Sex = fields[0]
		}
		if len(defendant) > 3 {
			party.Race = strings.Join(fields[1:], " ")
		}
	}
	if len(defendant) > 3 {
		if fields := strings.Fields(defendant[3]); len(fields) > 1 {
			party.DateOfBirth = fields[1]
		} else {
			missing = append(missing, "date of birth")
		}
	} else {
		missing = append(missing, "date of birth")
	}
	if hasHeightAndWeight {
		height, weight, _ := strings.Cut(defendant[4], ",")
		party.Height = height
		party.Weight = strings.TrimPrefix(weight, " ")
	} else {
		missing = append(missing, "height", "weight")
	}
	party.DefenseAttorney = take(defendant, 5+offset, "defense attorney")
	party.AppointedOrRetained = take(defendant, 6+offset, "appointed or retained")
	party.DefenseAttorneyPhone = take(defendant, 7+offset, "defense attorney phone number")

	if len(defendantRows) > 1 {
		address := defendantRows[1]
		if len(address) > 2 {
			party.DefendantAddress = strings.Join(address[:len(address)-2], ", ")
		}
		party.SID = address[len(address)-1]
	} else {
		missing = append(missing, "defendant address", "sid")
	}

	party.ProsecutingAttorney = take(stateRows[0], 2, "prosecuting attorney")
	party.ProsecutingAttorneyPhone = take(stateRows[0], 3, "prosecuting attorney phone number")
	if len(stateRows) > 1 {
		party.ProsecutingAttorneyAddress = strings.Join(stateRows[1], ", ")
	}
	if len(bondsmanRows) > 0 {
		party.Bondsman = take(bondsmanRows[0], 1, "bondsman")
	}
	if len(bondsmanRows) > 1 {
		party.BondsmanAddress = strings.Join(bondsmanRows[1], ", ")
	}

	// a representation value outside the known set means the positional
	// parse picked up the wrong cell; fall back to scanning the raw rows
	if !containsString(allowedRepresentation, party.AppointedOrRetained) {
		party.AppointedOrRetained = ""
		raw := strings.ToLower(fmt.Sprint(defendantRows))
		for _, phrase := range representationPhrases {
			if strings.Contains(raw, strings.ToLower(phrase)) {
				party.AppointedOrRetained = phrase
				break
			}
		}
	}

	record.Party = party
	record.Missing = append(record.Missing, missing...)
	return nil
}

// parseChargeTable consumes the flattened token list in fixed groups of
// five, skipping the five header tokens; each group's last four tokens
// are the charge fields.
func parseChargeTable(table *goquery.Selection, record *CaseRecord) {
	tokens := htmlutil.TextNodes(table, cleanToken)
	for i := 5; i < len(tokens); i += 5 {
		group := tokens[i+1:]
		if len(group) > 4 {
			group = group[:4]
		}
		charge := Charge{}
		fields := []*string{&charge.Charges, &charge.Statute, &charge.Level, &charge.Date}
		for j := range group {
			*fields[j] = group[j]
		}
		record.Charges = append(record.Charges, charge)
	}
}

// parseEventsTable walks event rows bottom-up. The page lists
// dispositions above a literal "OTHER EVENTS AND HEARINGS" divider, so
// rows consumed before the divider are events and rows after it are
// dispositions; a "DISPOSITIONS" row ends the walk. Both lists are
// reversed afterwards to restore chronological order.
func parseEventsTable(table *goquery.Selection, record *CaseRecord) {
	rows := htmlutil.HeaderRows(table, cleanCollapsed)

	var eventRows, dispositionRows [][]string
	section := "other_events"
	for len(rows) > 0 {
		row := rows[len(rows)-1]
		rows = rows[:len(rows)-1]
		if row[0] == "OTHER EVENTS AND HEARINGS" {
			section = "dispositions"
			continue
		}
		if row[0] == "DISPOSITIONS" {
			break
		}
		if section == "other_events" {
			eventRows = append(eventRows, row)
		} else {
			dispositionRows = append(dispositionRows, row)
		}
	}
	reverseRows(eventRows)
	reverseRows(dispositionRows)

	record.OtherEvents = eventRows
	record.Dispositions = dispositionRows
}

func parseFinancialTable(table *goquery.Selection, record *CaseRecord) {
	rows := htmlutil.HeaderRows(table, cleanCollapsed)
	if len(rows) < 4 || len(rows[1]) < 2 || len(rows[2]) < 2 || len(rows[3]) < 2 {
		record.Missing = append(record.Missing, "financial information")
		return
	}
	record.Financial = &FinancialInfo{
		TotalAssessment: rows[1][1],
		TotalPayments:   rows[2][1],
		BalanceDue:      rows[3][1],
		Transactions:    rows[4:],
	}
}

func reverseRows(rows [][]string) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsFold(rows [][]string, phrase string) bool {
	for _, row := range rows {
		for _, token := range row {
			if strings.Contains(strings.ToLower(token), phrase) {
				return true
			}
		}
	}
	return false
}
