package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rickgao/livesync/internal/schema"
)

func newSchemasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the schemas pushes may carry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEMA\tID\tRELATIONS")
			for _, k := range schema.Kinds() {
				def, _ := k.Definition()
				fmt.Fprintf(w, "%s\t%s\t%s\n", k, def.IDAttribute, formatRelations(def.Relations))
			}
			return w.Flush()
		},
	}
}

func formatRelations(rels []schema.Relation) string {
	if len(rels) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(rels))
	for _, r := range rels {
		target := r.Target.String()
		if r.Many {
			target += "[]"
		}
		parts = append(parts, r.Attribute+" -> "+target)
	}
	return strings.Join(parts, ", ")
}
