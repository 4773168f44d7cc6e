package odyssey

import (
	"strings"
	"time"

	"courtdata-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// searchFormData builds the POST body for a calendar search. The hidden
// fields harvested from the search page always ride along; the rest of
// the fields differ per generation.
func searchFormData(session *SearchSession, query SearchQuery, gen Generation) map[string]string {
	form := make(map[string]string, len(session.HiddenFields)+8)
	for k, v := range session.HiddenFields {
		form[k] = v
	}

	if gen == GenerationLegacy {
		form["SearchBy"] = "3"
		form["cboJudOffc"] = query.OfficerID
		form["DateSettingOnAfter"] = query.DateString()
		form["DateSettingOnBefore"] = query.DateString()
		// search by judicial officer
		form["SearchType"] = "JUDOFFC"
		form["SearchMode"] = "JUDOFFC"
		// criminal only; CR,CV,FAM,PR are the portal's categories
		form["CaseCategories"] = "CR"
		return form
	}

	form["SearchCriteria.SelectedHearingType"] = "Criminal Hearing Types"
	form["SearchCriteria.SearchByType"] = "JudicialOfficer"
	form["SearchCriteria.SelectedJudicialOfficer"] = query.OfficerID
	form["SearchCriteria.DateFrom"] = query.DateString()
	form["SearchCriteria.DateTo"] = query.DateString()
	return form
}

// singleCaseFormData builds a legacy case-number search covering all
// dates up to today.
func singleCaseFormData(session *SearchSession, caseNumber string, today time.Time) map[string]string {
	form := make(map[string]string, len(session.HiddenFields)+9)
	for k, v := range session.HiddenFields {
		form[k] = v
	}
	form["__EVENTTARGET"] = ""
	form["SearchBy"] = "0"
	form["DateSettingOnAfter"] = "1/1/1970"
	form["DateSettingOnBefore"] = today.Format("1/2/2006")
	form["SearchType"] = "CASE"
	form["SearchMode"] = "CASENUMBER"
	form["CourtCaseSearchValue"] = caseNumber
	form["CaseCategories"] = ""
	// the portal requires an officer id even on case-number searches
	form["cboJudOffc"] = "38501"
	return form
}

// hiddenInputs collects every named hidden input's name/value pair.
func hiddenInputs(doc *goquery.Document) map[string]string {
	hidden := map[string]string{}
	doc.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok {
			return
		}
		hidden[name] = input.AttrOr("value", "")
	})
	return hidden
}

// officerOptions maps judicial officer display names to their portal
// ids, given the generation-appropriate <select> selector. Option text
// carries non-breaking spaces and stray padding, collapsed here.
func officerOptions(doc *goquery.Document, selector string) map[string]string {
	officers := map[string]string{}
	doc.Find(selector).Each(func(_ int, option *goquery.Selection) {
		name := textutil.CollapseSpace(strings.ReplaceAll(option.Text(), "\u00a0", " "))
		if name == "" {
			return
		}
		officers[name] = option.AttrOr("value", "")
	})
	return officers
}
