// Package crawler orchestrates portal crawls: it resolves a county to
// its portal profile, opens a search session, walks the requested date
// range per judicial officer and either processes the found cases
// inline or hands them to the work queue in batches.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"courtdata-backend/lib/scrapers/odyssey"
	"courtdata-backend/lib/textutil"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/crawler")

// Sink receives raw case documents. Write reports whether anything was
// actually stored; an already-present key is a normal skip.
type Sink interface {
	Write(ctx context.Context, key string, contents []byte, overwrite bool) (written bool, err error)
}

// Queue receives serialized WorkBatch messages for continuation runs.
type Queue interface {
	Enqueue(ctx context.Context, messages []string) error
}

// Records receives extracted structured case records.
type Records interface {
	Put(ctx context.Context, county, caseNumber string, record any) error
}

type Options struct {
	Registry *Registry
	Sink     Sink
	// optional; without it every run is inline regardless of size
	Queue Queue
	// optional; raw documents are still sunk when nil
	Records Records

	// references per queue message, default 10
	BatchSize int
	// at or below this many references the run stays inline, default 10
	InlineThreshold int
	// retry pacing handed to the portal client
	Wait       time.Duration
	MaxRetries int
	Debug      odyssey.DebugWriter
}

type Service struct {
	registry        *Registry
	sink            Sink
	queue           Queue
	records         Records
	batchSize       int
	inlineThreshold int
	wait            time.Duration
	maxRetries      int
	debug           odyssey.DebugWriter
}

func NewService(opts Options) *Service {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	inlineThreshold := opts.InlineThreshold
	if inlineThreshold <= 0 {
		inlineThreshold = 10
	}
	return &Service{
		registry:        opts.Registry,
		sink:            opts.Sink,
		queue:           opts.Queue,
		records:         opts.Records,
		batchSize:       batchSize,
		inlineThreshold: inlineThreshold,
		wait:            opts.Wait,
		maxRetries:      opts.MaxRetries,
		debug:           opts.Debug,
	}
}

// Request describes one crawl run. The date range is inclusive on both
// ends. An empty JudicialOfficers means every officer the search page
// lists. Test stops the run after the first successfully processed
// case.
type Request struct {
	County           string
	StartDate        time.Time
	EndDate          time.Time
	JudicialOfficers []string
	CalendarLinkText string
	Location         string
	// overrides the service-wide request pacing when positive
	Wait time.Duration
	Test bool
}

// Summary reports what one crawl run did.
type Summary struct {
	County          string
	Searches        int
	CasesFound      int
	CasesProcessed  int
	CasesUnchanged  int
	RecordsStored   int
	BatchesEnqueued int
	SkippedOfficers []string
}

func (s *Service) Crawl(ctx context.Context, req Request) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "Crawl")
	defer span.End()

	profile, err := s.registry.Lookup(req.County)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown county")
		return nil, err
	}
	slog.InfoContext(ctx, "scraping portal", "county", profile.County, "url", profile.BaseURL)

	wait := s.wait
	if req.Wait > 0 {
		wait = req.Wait
	}
	client, err := odyssey.NewClient(odyssey.Options{
		Profile:    profile,
		Wait:       wait,
		MaxRetries: s.maxRetries,
		Debug:      s.debug,
	})
	if err != nil {
		return nil, err
	}
	nav := client.Navigator()

	session, err := nav.OpenSearch(ctx, odyssey.OpenSearchOptions{
		CalendarLinkText: req.CalendarLinkText,
		Location:         req.Location,
	})
	if err != nil {
		return nil, err
	}

	officers := req.JudicialOfficers
	if len(officers) == 0 {
		officers = make([]string, 0, len(session.Officers))
		for name := range session.Officers {
			officers = append(officers, name)
		}
	}

	summary := &Summary{County: profile.County}
	for day := req.StartDate; !day.After(req.EndDate); day = day.AddDate(0, 0, 1) {
		for _, officerName := range officers {
			officerID, ok := resolveOfficer(officerName, session.Officers)
			if !ok {
				suggestion := closestOfficer(officerName, session.Officers)
				slog.ErrorContext(
					ctx, "judicial officer not found on search page, continuing",
					"officer", officerName,
					"closest_match", suggestion,
				)
				summary.SkippedOfficers = append(summary.SkippedOfficers, officerName)
				continue
			}

			query := odyssey.SearchQuery{
				Date:        day,
				OfficerID:   officerID,
				OfficerName: officerName,
			}
			slog.InfoContext(
				ctx, "searching cases",
				"date", query.DateString(),
				"officer", officerName,
			)
			refs, err := nav.Search(ctx, session, query)
			if err != nil {
				return summary, err
			}
			summary.Searches++
			summary.CasesFound += len(refs)
			slog.InfoContext(ctx, "cases found", "count", len(refs))

			if len(refs) <= s.inlineThreshold || s.queue == nil || req.Test {
				done, err := s.processInline(ctx, nav, profile, query, refs, req.Test, summary)
				if err != nil {
					return summary, err
				}
				if done {
					return summary, nil
				}
				continue
			}

			messages, err := buildBatchMessages(refs, s.batchSize, ScrapeParams{
				SearchURL:      session.SearchURL,
				BaseURL:        profile.BaseURL,
				County:         profile.County,
				OdysseyVersion: profile.Version,
				Notes:          profile.Notes,
				DateString:     query.DateString(),
				DateUnderscore: query.DateUnderscore(),
				OfficerID:      officerID,
				HiddenFields:   session.HiddenFields,
				WaitMs:         wait.Milliseconds(),
				Location:       req.Location,
			})
			if err != nil {
				return summary, err
			}
			slog.InfoContext(ctx, "enqueueing case batches", "batches", len(messages))
			if err := s.queue.Enqueue(ctx, messages); err != nil {
				return summary, fmt.Errorf("enqueue work batches: %w", err)
			}
			summary.BatchesEnqueued += len(messages)
		}
	}

	return summary, nil
}

// processInline fetches each referenced case in the current execution.
// In test mode it reports done after the first processed case.
func (s *Service) processInline(
	ctx context.Context,
	nav odyssey.Navigator,
	profile odyssey.PortalProfile,
	query odyssey.SearchQuery,
	refs []odyssey.CaseReference,
	test bool,
	summary *Summary,
) (done bool, err error) {
	for _, ref := range refs {
		if err := s.processCase(ctx, nav, profile, query.DateUnderscore(), ref, summary); err != nil {
			return false, err
		}
		if test {
			slog.InfoContext(ctx, "test run, stopping after first case")
			return true, nil
		}
	}
	return false, nil
}

// processCase runs the per-case pipeline: fetch, fingerprint, sink the
// raw page, and (legacy only) extract and persist the structured
// record. Unchanged content short-circuits after the sink skip.
func (s *Service) processCase(
	ctx context.Context,
	nav odyssey.Navigator,
	profile odyssey.PortalProfile,
	dateUnderscore string,
	ref odyssey.CaseReference,
	summary *Summary,
) error {
	ctx, span := tracer.Start(ctx, "processCase")
	defer span.End()

	caseHTML, err := nav.FetchCase(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "case fetch failed")
		return err
	}
	slog.DebugContext(ctx, "fetched case", "case_id", ref.CaseID, "bytes", len(caseHTML))

	fingerprint, err := odyssey.FingerprintCase(caseHTML)
	if err != nil {
		return fmt.Errorf("fingerprint case %s: %w", ref.CaseID, err)
	}
	key := fingerprint.StorageKey(profile.County, dateUnderscore)

	written, err := s.sink.Write(ctx, key, []byte(caseHTML), false)
	if err != nil {
		return fmt.Errorf("sink case %s: %w", key, err)
	}
	if !written {
		slog.InfoContext(ctx, "case content unchanged, skipping", "key", key)
		summary.CasesUnchanged++
		return nil
	}
	slog.InfoContext(ctx, "stored case", "key", key)
	summary.CasesProcessed++

	if s.records != nil && profile.Generation() == odyssey.GenerationLegacy {
		record, err := odyssey.ExtractCaseRecord(caseHTML)
		if err != nil {
			return fmt.Errorf("extract case %s: %w", fingerprint.CaseNumber, err)
		}
		if err := s.records.Put(ctx, profile.County, record.CaseNumber, record); err != nil {
			return fmt.Errorf("store case record %s: %w", record.CaseNumber, err)
		}
		summary.RecordsStored++
	}
	return nil
}

// ProcessBatch resumes one queued batch. Discovery is not redone: the
// snapshot parameters carry everything needed to fetch the cases.
func (s *Service) ProcessBatch(ctx context.Context, batch WorkBatch) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "ProcessBatch")
	defer span.End()

	profile := odyssey.PortalProfile{
		County:  batch.Params.County,
		BaseURL: batch.Params.BaseURL,
		Version: batch.Params.OdysseyVersion,
		Notes:   batch.Params.Notes,
	}
	client, err := odyssey.NewClient(odyssey.Options{
		Profile:    profile,
		Wait:       time.Duration(batch.Params.WaitMs) * time.Millisecond,
		MaxRetries: s.maxRetries,
		Debug:      s.debug,
	})
	if err != nil {
		return nil, err
	}
	nav := client.Navigator()

	summary := &Summary{County: profile.County}
	for _, ref := range batch.Refs {
		if err := s.processCase(ctx, nav, profile, batch.Params.DateUnderscore, ref, summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// CrawlCase looks one case up by number and runs it through the same
// per-case pipeline as a calendar crawl. Only legacy portals expose a
// case number search.
func (s *Service) CrawlCase(ctx context.Context, county, caseNumber string) (*Summary, error) {
	ctx, span := tracer.Start(ctx, "CrawlCase")
	defer span.End()

	profile, err := s.registry.Lookup(county)
	if err != nil {
		return nil, err
	}
	client, err := odyssey.NewClient(odyssey.Options{
		Profile:    profile,
		Wait:       s.wait,
		MaxRetries: s.maxRetries,
		Debug:      s.debug,
	})
	if err != nil {
		return nil, err
	}
	nav := client.Navigator()

	searcher, ok := nav.(odyssey.CaseNumberSearcher)
	if !ok {
		return nil, fmt.Errorf(
			"the %s portal (%s generation) does not support case number search",
			profile.County, profile.Generation(),
		)
	}

	session, err := nav.OpenSearch(ctx, odyssey.OpenSearchOptions{})
	if err != nil {
		return nil, err
	}
	refs, err := searcher.SearchCaseNumber(ctx, session, caseNumber)
	if err != nil {
		return nil, err
	}

	summary := &Summary{County: profile.County, Searches: 1, CasesFound: len(refs)}
	dateUnderscore := time.Now().Format("01_02_2006")
	for _, ref := range refs {
		if err := s.processCase(ctx, nav, profile, dateUnderscore, ref, summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// resolveOfficer maps a requested officer name to its portal id. An
// exact miss falls back to case- and whitespace-insensitive matching so
// the request does not have to reproduce portal spacing exactly.
func resolveOfficer(name string, officers map[string]string) (string, bool) {
	if id, ok := officers[name]; ok {
		return id, true
	}
	want := textutil.NormalizeName(name)
	if want == "" {
		return "", false
	}
	for candidate, id := range officers {
		if textutil.MatchName(candidate, []string{want}) {
			return id, true
		}
	}
	return "", false
}

// closestOfficer suggests the best fuzzy match for a misspelled officer
// name, or "" when nothing comes close.
func closestOfficer(name string, officers map[string]string) string {
	best := ""
	bestScore := 0.8
	for candidate := range officers {
		score := matchr.JaroWinkler(name, candidate, false)
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best
}
