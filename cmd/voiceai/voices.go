package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Reality-Reimagined/voiceai/internal/voice"
)

const toolLogFile = "voiceai-cli.log"

func newVoicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the voice profiles found in the configured directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(toolLogFile)
			if err != nil {
				return err
			}

			defer a.close()

			registry, err := a.registry()
			if err != nil {
				return err
			}

			return printVoices(cmd.OutOrStdout(), registry.List())
		},
	}
}

func printVoices(out io.Writer, profiles []*voice.Profile) error {
	table := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, err := fmt.Fprintln(table, "ID\tMODEL\tLANGUAGE\tSTYLES\tREFERENCE")
	if err != nil {
		return err
	}

	for _, profile := range profiles {
		cfg := profile.Config()

		reference := cfg.RefAudio
		if reference == "" {
			reference = "-"
		}

		_, err = fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\n",
			profile.ID(), cfg.Model, cfg.Language, strings.Join(cfg.StyleTags, ","), reference)
		if err != nil {
			return err
		}
	}

	return table.Flush()
}
