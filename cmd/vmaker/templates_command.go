package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ivishnuraj/vmaker/internal/templates"
)

func newTemplatesCommand(ctx *commandContext) *cobra.Command {
	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect clip templates",
	}
	templatesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the templates in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store := templates.NewStore(cfg.TemplatesDir(), cliLogger(cmd))
			if err := store.Load(); err != nil {
				return err
			}

			list := store.List()
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No templates in %s\n", cfg.TemplatesDir())
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, t := range list {
				mode := templates.ModeVertical
				if t.FullWidth() {
					mode = templates.ModeFullWidth
				}
				output := t.OutputName
				if output == "" {
					output = "-"
				}
				rows = append(rows, []string{
					t.Name,
					mode,
					t.EffectiveResolution(),
					formatSeconds(t.Start),
					formatSeconds(t.EffectiveDuration()),
					strconv.Itoa(len(t.Overlays)),
					output,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Name", "Mode", "Resolution", "Start", "Duration", "Overlays", "Output"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	})
	return templatesCmd
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "s"
}
