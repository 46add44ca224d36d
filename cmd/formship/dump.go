package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Write the encoded body to stdout without sending it",
		Long: `Encode the -F fields exactly as an upload would and write the body to stdout.
The Content-Type and Content-Length headers are printed to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, false); err != nil {
				return err
			}
			stream, err := a.buildStream()
			if err != nil {
				return err
			}
			defer stream.Close()

			length, err := stream.TotalLength()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Content-Type: %s\r\nContent-Length: %d\r\n\r\n", stream.ContentType(), length)

			n, err := stream.WriteTo(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("write body: %w", err)
			}
			if n != length {
				return fmt.Errorf("wrote %d bytes, expected %d", n, length)
			}
			return nil
		},
	}
}
