package commands

import (
	"github.com/spf13/cobra"
)

var caseFlags struct {
	county string
}

func init() {
	caseCmd.Flags().StringVar(&caseFlags.county, "county", "", "County whose portal to search.")
	_ = caseCmd.MarkFlagRequired("county")
	rootCmd.AddCommand(caseCmd)
}

var caseCmd = &cobra.Command{
	Use:   "case --county <name> <case number>",
	Short: "Fetches a single case by case number (legacy portals only).",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg := readConfig()
		service, _ := buildService(ctx, cfg)

		summary, err := service.CrawlCase(ctx, caseFlags.county, args[0])
		if summary != nil {
			printSummary(summary)
		}
		if err != nil {
			fatalerr("case lookup failed", err)
		}
	},
}
