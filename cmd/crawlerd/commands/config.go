package commands

import (
	"context"
	"os"
	"time"

	"courtdata-backend/lib/blobstore"
	"courtdata-backend/lib/configutil"
	"courtdata-backend/lib/recordstore"
	"courtdata-backend/lib/scrapers/odyssey"
	"courtdata-backend/lib/workqueue"
	"courtdata-backend/services/crawler"

	"github.com/jedib0t/go-pretty/v6/table"
)

type CrawlerConfig struct {
	// path to the county registry csv
	Registry        string `json:"registry"`
	BatchSize       int    `json:"batch_size"`
	InlineThreshold int    `json:"inline_threshold"`
	MsWait          int64  `json:"ms_wait"`
	MaxRetries      int    `json:"max_retries"`
	// directory for failing response bodies, disabled when empty
	DebugDir string `json:"debug_dir"`
}

type Config struct {
	Blob    blobstore.Config   `json:"blob"`
	Queue   workqueue.Config   `json:"queue"`
	Records recordstore.Config `json:"records"`
	Crawler CrawlerConfig      `json:"crawler"`
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("crawlerd.json5")
	if err != nil {
		fatalerr("failed to read config", err)
	}
	if cfg.Crawler.Registry == "" {
		cfg.Crawler.Registry = "texas_county_data.csv"
	}
	return cfg
}

// buildService assembles the crawl service and its collaborators from
// config. The queue and record store are optional pieces.
func buildService(ctx context.Context, cfg Config) (*crawler.Service, *workqueue.Queue) {
	registry, err := crawler.LoadRegistry(cfg.Crawler.Registry)
	if err != nil {
		fatalerr("failed to load county registry", err)
	}

	sink, err := blobstore.New(ctx, cfg.Blob)
	if err != nil {
		fatalerr("failed to open blob sink", err)
	}

	var queue *workqueue.Queue
	if cfg.Queue.QueueURL != "" {
		queue, err = workqueue.New(ctx, cfg.Queue)
		if err != nil {
			fatalerr("failed to open work queue", err)
		}
	}

	var records crawler.Records
	if cfg.Records.File != "" || cfg.Records.Url != "" {
		db, err := cfg.Records.OpenDB()
		if err != nil {
			fatalerr("failed to open record database", err)
		}
		store, err := recordstore.NewStore(db)
		if err != nil {
			fatalerr("failed to initialize record store", err)
		}
		records = store
	}

	var debug odyssey.DebugWriter
	if cfg.Crawler.DebugDir != "" {
		debug, err = odyssey.NewFilesystemDebug(cfg.Crawler.DebugDir)
		if err != nil {
			fatalerr("failed to create debug directory", err)
		}
	}

	opts := crawler.Options{
		Registry:        registry,
		Sink:            sink,
		Records:         records,
		BatchSize:       cfg.Crawler.BatchSize,
		InlineThreshold: cfg.Crawler.InlineThreshold,
		Wait:            msDuration(cfg.Crawler.MsWait),
		MaxRetries:      cfg.Crawler.MaxRetries,
		Debug:           debug,
	}
	if queue != nil {
		opts.Queue = queue
	}
	return crawler.NewService(opts), queue
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func printSummary(summary *crawler.Summary) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"county", "searches", "found", "stored", "unchanged", "records", "batches"})
	t.AppendRow(table.Row{
		summary.County,
		summary.Searches,
		summary.CasesFound,
		summary.CasesProcessed,
		summary.CasesUnchanged,
		summary.RecordsStored,
		summary.BatchesEnqueued,
	})
	for _, skipped := range summary.SkippedOfficers {
		t.AppendFooter(table.Row{"skipped officer", skipped})
	}
	t.Render()
}
