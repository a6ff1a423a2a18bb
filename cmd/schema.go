package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/edital-crawler/internal/edital"
)

func newSchemaCmd() *cobra.Command {
	var fields bool
	cmd := &cobra.Command{
		Use:         "schema",
		Short:       "Print the extraction JSON Schema",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipApp: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema := edital.DefaultSchema()
			if fields {
				_, err := fmt.Fprint(cmd.OutOrStdout(), schema.Describe())
				return err
			}
			raw, err := schema.JSONSchema()
			if err != nil {
				return fmt.Errorf("render schema: %w", err)
			}
			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return fmt.Errorf("indent schema: %w", err)
			}
			out.WriteByte('\n')
			_, err = out.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().BoolVar(&fields, "fields", false, "print the field list used in the prompt instead")
	return cmd
}
