package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/edital-crawler/internal/pipeline"
)

func (c *cli) newRunCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run [locator...]",
		Short: "Fetch, extract, and upsert each locator once",
		Long: `Processes the locators in order. Locators given on the command line
replace pipeline.locators from the configuration. The first locator that
fails to fetch, extract, or store aborts the run.`,
		Annotations: map[string]string{annotationLocators: "required"},
		RunE: func(cmd *cobra.Command, args []string) error {
			locators, err := c.app.Config().Locators(args)
			if err != nil {
				return err
			}
			summary, runErr := c.app.Pipeline().Run(cmd.Context(), locators)
			if err := printSummary(cmd.OutOrStdout(), summary, asJSON); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run summary as JSON")
	return cmd
}

func printSummary(w io.Writer, summary pipeline.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
		return nil
	}
	for _, r := range summary.Results {
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\tprevisto=%t\t%s\n",
			r.Upsert.Op, r.Record.Key(), r.Upsert.ID, r.Record.Projected, r.Locator)
		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}
