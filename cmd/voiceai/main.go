// Command voiceai serves the voice synthesis API and offers offline helpers
// for listing voices and rendering speech to files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voiceai",
		Short:         "Voice synthesis service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCommand(),
		newVoicesCommand(),
		newSpeakCommand(),
		newHealthCommand(),
	)

	return cmd
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceai: %v\n", err)
		os.Exit(1)
	}
}
