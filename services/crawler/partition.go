package crawler

import (
	"encoding/json"
	"fmt"

	"courtdata-backend/lib/scrapers/odyssey"
)

// ScrapeParams is the snapshot of everything a continuation needs to
// fetch its cases without redoing discovery: the already-harvested
// session rides along in the message.
type ScrapeParams struct {
	SearchURL      string            `json:"search-url"`
	BaseURL        string            `json:"base-url"`
	County         string            `json:"county"`
	OdysseyVersion int               `json:"odyssey-version"`
	Notes          string            `json:"notes"`
	DateString     string            `json:"date-string"`
	DateUnderscore string            `json:"date-string-underscore"`
	OfficerID      string            `json:"jo-id"`
	HiddenFields   map[string]string `json:"hidden-values"`
	WaitMs         int64             `json:"ms-wait"`
	Location       string            `json:"location"`
}

// WorkBatch is one queue message: a contiguous slice of case references
// plus the parameters to resume scraping them independently.
type WorkBatch struct {
	Refs   []odyssey.CaseReference `json:"case-refs"`
	Params ScrapeParams            `json:"scrape-params"`
}

// partitionRefs splits references into contiguous chunks of at most
// batchSize, in reference order. Chunking is purely positional; no
// attempt is made to balance chunks by estimated fetch cost.
func partitionRefs(refs []odyssey.CaseReference, batchSize int) [][]odyssey.CaseReference {
	if batchSize <= 0 {
		batchSize = 1
	}
	var batches [][]odyssey.CaseReference
	for start := 0; start < len(refs); start += batchSize {
		end := start + batchSize
		if end > len(refs) {
			end = len(refs)
		}
		batches = append(batches, refs[start:end])
	}
	return batches
}

// buildBatchMessages serializes one queue message per batch.
func buildBatchMessages(refs []odyssey.CaseReference, batchSize int, params ScrapeParams) ([]string, error) {
	var messages []string
	for _, batch := range partitionRefs(refs, batchSize) {
		encoded, err := json.Marshal(WorkBatch{Refs: batch, Params: params})
		if err != nil {
			return nil, fmt.Errorf("encode work batch: %w", err)
		}
		messages = append(messages, string(encoded))
	}
	return messages, nil
}

func DecodeWorkBatch(message string) (WorkBatch, error) {
	var batch WorkBatch
	if err := json.Unmarshal([]byte(message), &batch); err != nil {
		return WorkBatch{}, fmt.Errorf("decode work batch: %w", err)
	}
	return batch, nil
}
