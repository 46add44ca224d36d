package main

import (
	"github.com/spf13/cobra"

	"github.com/bft-labs/formship/internal/formspec"
	"github.com/bft-labs/formship/internal/spool"
)

func newWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Upload every file that appears in a spool directory",
		Long: `Watch a directory and upload each matching file as its own request.
The -F fields are sent with every file; the file itself goes under --file-field.
Uploaded files are moved into the .sent subdirectory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, true); err != nil {
				return err
			}
			if a.cfg.WatchDir == "" {
				a.cfg.WatchDir = "."
			}

			specs, err := formspec.ParseAll(a.cfg.Fields)
			if err != nil {
				return err
			}

			w, err := spool.New(spool.Config{
				Dir:       a.cfg.WatchDir,
				Pattern:   a.cfg.WatchPattern,
				FileField: a.cfg.FileField,
				Fields:    specs,
				Limits:    a.limits(),
				Target:    a.target(),
				RetryBase: a.cfg.RetryWaitMin,
				RetryMax:  a.cfg.RetryWaitMax,
				Once:      a.cfg.Once,
			}, a.newUploader(), a.libLogger())
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.cfg.WatchDir, "dir", a.cfg.WatchDir, "spool directory (default: current directory)")
	f.StringVar(&a.cfg.WatchPattern, "pattern", a.cfg.WatchPattern, "file name pattern, doublestar syntax")
	f.StringVar(&a.cfg.FileField, "file-field", a.cfg.FileField, "form field name of the spooled file")
	f.BoolVar(&a.cfg.Once, "once", a.cfg.Once, "upload the files present now and exit")
	return cmd
}
