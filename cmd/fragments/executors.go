package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sakif/fragments/internal/dispatch"
)

func newExecutorsCmd(rootFlags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "executors",
		Short: "List the registered executors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadApp(cmd, rootFlags)
			if err != nil {
				return err
			}
			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "NAME\tVERSION\tTECHNOLOGIES")
			for _, d := range dispatch.NewEngine(cfg, logger).Descriptors() {
				techs := make([]string, len(d.Technologies))
				for i, t := range d.Technologies {
					techs[i] = string(t)
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\n", d.Name, d.Version, strings.Join(techs, ", "))
			}
			return writer.Flush()
		},
	}
}
