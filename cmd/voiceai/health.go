package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var errNotReady = errors.New("service is not ready")

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the synthesis engine and object store, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(toolLogFile)
			if err != nil {
				return err
			}

			defer a.close()

			conn, err := a.connectNATS()
			if err != nil {
				return err
			}

			if conn != nil {
				defer conn.Close()
			}

			objects, err := a.objectStore(conn)
			if err != nil {
				return err
			}

			result := checks(a.engine(), objects).Run(cmd.Context())

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")

			err = encoder.Encode(result)
			if err != nil {
				return err
			}

			if !result.OK() {
				return errNotReady
			}

			return nil
		},
	}
}
