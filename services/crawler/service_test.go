package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"courtdata-backend/lib/scrapers/odyssey"

	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemorySink() *memorySink {
	return &memorySink{objects: map[string][]byte{}}
}

func (s *memorySink) Write(ctx context.Context, key string, contents []byte, overwrite bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objects[key]; exists && !overwrite {
		return false, nil
	}
	s.objects[key] = contents
	return true, nil
}

type memoryQueue struct {
	mu       sync.Mutex
	messages []string
}

func (q *memoryQueue) Enqueue(ctx context.Context, messages []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, messages...)
	return nil
}

type memoryRecords struct {
	mu      sync.Mutex
	records map[string]any
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{records: map[string]any{}}
}

func (r *memoryRecords) Put(ctx context.Context, county, caseNumber string, record any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[county+"/"+caseNumber] = record
	return nil
}

// crawlPortal serves a legacy portal whose calendar search returns
// caseCount cases for Judge Judy.
func crawlPortal(t *testing.T, caseCount int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body>
<a class="ssSearchHyperlink" href="javascript:open('Search.aspx?ID=900')">Court Calendar</a>
</body></html>`))
	})
	mux.HandleFunc("/Search.aspx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`<html><body><h1>Court Calendar</h1><form>
<input type="hidden" name="__VIEWSTATE" value="vs-token">
<select name="courts"><option value="101">All Courts</option></select>
<select labelname="Judicial Officer:"><option value="42">Judge Judy</option></select>
</form></body></html>`))
			return
		}
		var anchors strings.Builder
		for i := 0; i < caseCount; i++ {
			fmt.Fprintf(&anchors, `<a href="CaseDetail.aspx?CaseID=%d">CR-2015-%04d</a>`+"\n", 1000+i, i)
		}
		fmt.Fprintf(w, `<html><body>Record Count: %d
%s</body></html>`, caseCount, anchors.String())
	})
	mux.HandleFunc("/CaseDetail.aspx", func(w http.ResponseWriter, r *http.Request) {
		caseID := r.URL.Query().Get("CaseID")
		fmt.Fprintf(w, `<html><body>
<div class="ssCaseDetailCaseNbr"><span>CR-%s</span></div>
<table>
<tr><td><b>The State of Texas vs. Defendant %s</b></td></tr>
<tr><th>Case Type:</th><td><b>Misdemeanor B</b></td></tr>
<tr><th>Date Filed:</th><td><b>01/15/2015</b></td></tr>
</table>
<table>
<tr><td>Party Information</td></tr>
<tr><td>Defendant</td><td>Doe, John</td><td>Male White</td><td>DOB: 01/01/1980</td></tr>
<tr><td>State</td><td>State of Texas</td><td>Prosecutor Pat</td><td>(512) 555-9999</td></tr>
</table>
</body></html>`, caseID, caseID)
	})
	return httptest.NewServer(mux)
}

func testRegistry(t *testing.T, baseURL string) *Registry {
	t.Helper()
	registry, err := ReadRegistry(strings.NewReader(
		"county,portal,version,notes\nhays," + baseURL + ",2003,\n",
	))
	require.NoError(t, err)
	return registry
}

func oneDayRequest(officers ...string) Request {
	day := time.Date(2015, 1, 15, 0, 0, 0, 0, time.UTC)
	return Request{
		County:           "hays",
		StartDate:        day,
		EndDate:          day,
		JudicialOfficers: officers,
	}
}

func TestCrawlInline(t *testing.T) {
	server := crawlPortal(t, 3)
	defer server.Close()

	sink := newMemorySink()
	queue := &memoryQueue{}
	records := newMemoryRecords()
	service := NewService(Options{
		Registry:   testRegistry(t, server.URL),
		Sink:       sink,
		Queue:      queue,
		Records:    records,
		Wait:       time.Millisecond,
		MaxRetries: 1,
	})

	summary, err := service.Crawl(context.Background(), oneDayRequest("Judge Judy"))
	require.NoError(t, err)

	require.Equal(t, 1, summary.Searches)
	require.Equal(t, 3, summary.CasesFound)
	require.Equal(t, 3, summary.CasesProcessed)
	require.Equal(t, 3, summary.RecordsStored)
	require.Zero(t, summary.BatchesEnqueued)
	require.Empty(t, queue.messages)
	require.Len(t, sink.objects, 3)

	for key := range sink.objects {
		require.Contains(t, key, ":hays:01_15_2015:")
	}
	require.Contains(t, records.records, "hays/CR-1000")
}

func TestCrawlSkipsUnchangedCases(t *testing.T) {
	server := crawlPortal(t, 2)
	defer server.Close()

	sink := newMemorySink()
	service := NewService(Options{
		Registry:   testRegistry(t, server.URL),
		Sink:       sink,
		Wait:       time.Millisecond,
		MaxRetries: 1,
	})

	first, err := service.Crawl(context.Background(), oneDayRequest("Judge Judy"))
	require.NoError(t, err)
	require.Equal(t, 2, first.CasesProcessed)

	second, err := service.Crawl(context.Background(), oneDayRequest("Judge Judy"))
	require.NoError(t, err)
	require.Zero(t, second.CasesProcessed)
	require.Equal(t, 2, second.CasesUnchanged)
	require.Len(t, sink.objects, 2)
}

func TestCrawlEnqueuesLargeResultSets(t *testing.T) {
	server := crawlPortal(t, 25)
	defer server.Close()

	sink := newMemorySink()
	queue := &memoryQueue{}
	service := NewService(Options{
		Registry:        testRegistry(t, server.URL),
		Sink:            sink,
		Queue:           queue,
		BatchSize:       10,
		InlineThreshold: 10,
		Wait:            time.Millisecond,
		MaxRetries:      1,
	})

	summary, err := service.Crawl(context.Background(), oneDayRequest("Judge Judy"))
	require.NoError(t, err)

	require.Equal(t, 25, summary.CasesFound)
	require.Zero(t, summary.CasesProcessed)
	require.Equal(t, 3, summary.BatchesEnqueued)
	require.Len(t, queue.messages, 3)
	require.Empty(t, sink.objects)

	// a continuation picks the message up and fetches its slice
	batch, err := DecodeWorkBatch(queue.messages[1])
	require.NoError(t, err)
	require.Len(t, batch.Refs, 10)
	require.Equal(t, "hays", batch.Params.County)
	require.Equal(t, "01_15_2015", batch.Params.DateUnderscore)

	resumed, err := service.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 10, resumed.CasesProcessed)
	require.Len(t, sink.objects, 10)
}

func TestCrawlTestModeStopsAfterFirstCase(t *testing.T) {
	server := crawlPortal(t, 25)
	defer server.Close()

	sink := newMemorySink()
	queue := &memoryQueue{}
	service := NewService(Options{
		Registry:        testRegistry(t, server.URL),
		Sink:            sink,
		Queue:           queue,
		InlineThreshold: 10,
		Wait:            time.Millisecond,
		MaxRetries:      1,
	})

	req := oneDayRequest("Judge Judy")
	req.Test = true
	summary, err := service.Crawl(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, summary.CasesProcessed)
	require.Empty(t, queue.messages)
	require.Len(t, sink.objects, 1)
}

func TestCrawlSkipsUnknownOfficerWithSuggestion(t *testing.T) {
	server := crawlPortal(t, 2)
	defer server.Close()

	service := NewService(Options{
		Registry:   testRegistry(t, server.URL),
		Sink:       newMemorySink(),
		Wait:       time.Millisecond,
		MaxRetries: 1,
	})

	summary, err := service.Crawl(context.Background(), oneDayRequest("Judge Jody", "Judge Judy"))
	require.NoError(t, err)

	require.Equal(t, []string{"Judge Jody"}, summary.SkippedOfficers)
	require.Equal(t, 1, summary.Searches)
	require.Equal(t, 2, summary.CasesProcessed)
}

func TestCrawlUnknownCounty(t *testing.T) {
	service := NewService(Options{
		Registry: testRegistry(t, "http://example.invalid/"),
		Sink:     newMemorySink(),
	})

	_, err := service.Crawl(context.Background(), Request{County: "atlantis"})
	require.Error(t, err)
}

func TestResolveOfficer(t *testing.T) {
	officers := map[string]string{"Judge Judy": "42", "Judge Dredd": "43"}

	id, ok := resolveOfficer("Judge Judy", officers)
	require.True(t, ok)
	require.Equal(t, "42", id)

	// spacing and casing differences still resolve
	id, ok = resolveOfficer("judge  judy", officers)
	require.True(t, ok)
	require.Equal(t, "42", id)

	_, ok = resolveOfficer("Judge Jody", officers)
	require.False(t, ok)
}

func TestClosestOfficer(t *testing.T) {
	officers := map[string]string{"Judge Judy": "42", "Judge Dredd": "43"}
	require.Equal(t, "Judge Judy", closestOfficer("Judge Jody", officers))
	require.Empty(t, closestOfficer("completely different", officers))
}

var _ odyssey.DebugWriter = (*capturedDebug)(nil)

type capturedDebug struct{ bodies []string }

func (d *capturedDebug) Write(name, contents string) { d.bodies = append(d.bodies, contents) }

func TestCrawlSurfacesPortalFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance window</html>"))
	}))
	defer server.Close()

	debug := &capturedDebug{}
	service := NewService(Options{
		Registry:   testRegistry(t, server.URL),
		Sink:       newMemorySink(),
		Wait:       time.Millisecond,
		MaxRetries: 1,
		Debug:      debug,
	})

	_, err := service.Crawl(context.Background(), oneDayRequest("Judge Judy"))
	var perr *odyssey.PageError
	require.ErrorAs(t, err, &perr)
	require.NotEmpty(t, debug.bodies)
}
