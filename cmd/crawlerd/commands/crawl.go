package commands

import (
	"log/slog"
	"time"

	"courtdata-backend/lib/telemetry"
	"courtdata-backend/services/crawler"

	"github.com/spf13/cobra"
)

var crawlFlags struct {
	county           string
	startDate        string
	endDate          string
	officers         []string
	calendarLinkText string
	location         string
	msWait           int
	test             bool
}

func init() {
	f := crawlCmd.Flags()
	f.StringVar(&crawlFlags.county, "county", "", "County whose portal to crawl.")
	f.StringVar(&crawlFlags.startDate, "start-date", "", "First calendar day to search, YYYY-MM-DD.")
	f.StringVar(&crawlFlags.endDate, "end-date", "", "Last calendar day to search, YYYY-MM-DD (defaults to start-date).")
	f.StringSliceVar(&crawlFlags.officers, "jo", nil, "Judicial officers to search (defaults to all on the search page).")
	f.StringVar(&crawlFlags.calendarLinkText, "calendar-link-text", "", "Anchor text of the court calendar link on legacy portals.")
	f.StringVar(&crawlFlags.location, "location", "", "Location override for legacy search submissions.")
	f.IntVar(&crawlFlags.msWait, "ms-wait", 0, "Milliseconds between request retries (overrides config).")
	f.BoolVar(&crawlFlags.test, "test", false, "Stop after the first successfully processed case.")
	_ = crawlCmd.MarkFlagRequired("county")
	_ = crawlCmd.MarkFlagRequired("start-date")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl --county <name> --start-date <YYYY-MM-DD> [--end-date <YYYY-MM-DD>] [--jo <name>]...",
	Short: "Runs one calendar crawl over a county portal.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		startDate, err := time.Parse("2006-01-02", crawlFlags.startDate)
		if err != nil {
			fatalerr("failed to parse start date", err)
		}
		endDate := startDate
		if crawlFlags.endDate != "" {
			endDate, err = time.Parse("2006-01-02", crawlFlags.endDate)
			if err != nil {
				fatalerr("failed to parse end date", err)
			}
		}

		otel, err := telemetry.SetupFromEnv(ctx, "crawlerd")
		if err != nil {
			slog.Warn("telemetry disabled", "err", err)
		} else {
			defer func() {
				if err := otel.Shutdown(ctx); err != nil {
					slog.Warn("telemetry shutdown failed", "err", err)
				}
			}()
		}

		cfg := readConfig()
		service, _ := buildService(ctx, cfg)

		t1 := time.Now()
		summary, err := service.Crawl(ctx, crawler.Request{
			County:           crawlFlags.county,
			StartDate:        startDate,
			EndDate:          endDate,
			JudicialOfficers: crawlFlags.officers,
			CalendarLinkText: crawlFlags.calendarLinkText,
			Location:         crawlFlags.location,
			Wait:             time.Duration(crawlFlags.msWait) * time.Millisecond,
			Test:             crawlFlags.test,
		})
		if summary != nil {
			printSummary(summary)
		}
		if err != nil {
			fatalerr("crawl failed", err)
		}
		slog.Info("crawl finished", "seconds", time.Since(t1).Seconds())
	},
}
