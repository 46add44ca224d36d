package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/formship"
	"github.com/bft-labs/formship/internal/cliconfig"
	"github.com/bft-labs/formship/internal/formspec"
	"github.com/bft-labs/formship/pkg/log"
	"github.com/bft-labs/formship/pkg/mpbody"
	"github.com/bft-labs/formship/pkg/uploader"
)

const helpDescription = `
Upload files and fields as multipart/form-data without loading them into memory.

Highlights:
  - Files are streamed from disk; the exact Content-Length is known up front.
  - Retries with backoff resend the identical body, redirects included.
  - Watch a spool directory and upload every file that lands in it.
  - Configure via file, env, or flags.
`

var exampleUsage = strings.TrimSpace(`
  formship --url https://example.com/upload -F album=summer -F photo=@beach.jpg
  formship --url https://example.com/upload -F 'logs=@/var/log/app/**/*.log;type=text/plain'
  formship watch --url https://example.com/upload --dir ./outbox --pattern '*.pdf'
  formship dump -F 'note=<note.txt' > body.bin
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the configuration shared by all commands.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	headers []string
	logger  zerolog.Logger
}

func newApp() *app {
	return &app{cfg: cliconfig.DefaultConfig(), logger: formship.Logger()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "formship",
		Short:         "Stream multipart/form-data uploads",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd, true); err != nil {
				return err
			}
			return a.upload(cmd.Context(), cmd.OutOrStdout())
		},
	}

	// Flags
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.formship/config.toml)")
	pf.StringVar(&a.cfg.URL, "url", a.cfg.URL, "upload endpoint")
	pf.StringVar(&a.cfg.AuthKey, "auth-key", a.cfg.AuthKey, "bearer token sent in the Authorization header")
	pf.StringArrayVarP(&a.cfg.Fields, "form", "F", nil, "form field: name=value, name=@path[;type=T][;filename=F] or name=<path")
	pf.StringArrayVarP(&a.headers, "header", "H", nil, `extra request header "Key: Value"`)
	pf.DurationVar(&a.cfg.HTTPTimeout, "timeout", a.cfg.HTTPTimeout, "HTTP timeout per attempt")
	pf.IntVar(&a.cfg.RetryMax, "retry-max", a.cfg.RetryMax, "retries after a failed attempt")
	pf.DurationVar(&a.cfg.RetryWaitMin, "retry-wait-min", a.cfg.RetryWaitMin, "minimum wait between attempts")
	pf.DurationVar(&a.cfg.RetryWaitMax, "retry-wait-max", a.cfg.RetryWaitMax, "maximum wait between attempts")
	pf.StringVar(&a.cfg.MaxBlobBytes, "max-blob-bytes", a.cfg.MaxBlobBytes, "largest file accepted by name=<path")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(newWatchCmd(a), newDumpCmd(a))
	return root
}

func main() {
	a := newApp()
	root := newRootCmd(a)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		a.logger.Error().Err(err).Msg("formship")
		os.Exit(1)
	}
}

// load merges defaults, file, environment and flags, then validates.
func (a *app) load(cmd *cobra.Command, needURL bool) error {
	// Load config file first (default $HOME/.formship/config.toml), then apply flag overrides
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	// Build set of changed flags
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	headers, err := cliconfig.ParseHeaders(a.headers)
	if err != nil {
		return err
	}
	a.cfg.Headers = headers

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}

	// Apply environment variables (FORMSHIP_*)
	// These override file config but are overridden by flags (checked via changed map)
	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	level, err := log.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return err
	}
	a.logger = a.logger.Level(level)

	if needURL {
		err = a.cfg.Validate()
	} else {
		err = a.cfg.ValidateLocal()
	}
	if err != nil {
		return err
	}

	// Log configuration (masking API key)
	logCfg := a.cfg
	if len(logCfg.AuthKey) > 0 {
		logCfg.AuthKey = "*****"
	}
	a.logger.Debug().Interface("config", logCfg).Msg("configuration")
	return nil
}

func (a *app) libLogger() log.Logger {
	return log.NewZerologAdapterWithLogger(a.logger)
}

func (a *app) newUploader() *uploader.Uploader {
	logger := a.libLogger()
	return uploader.New(
		uploader.WithLogger(logger),
		uploader.WithRetry(a.cfg.RetryMax, a.cfg.RetryWaitMin, a.cfg.RetryWaitMax),
		uploader.WithTimeout(a.cfg.HTTPTimeout),
		uploader.WithProgress(func(sent, total int64) {
			logger.Debug("upload progress", log.Bytes("sent", sent), log.Bytes("total", total))
		}),
	)
}

func (a *app) target() uploader.Target {
	return uploader.Target{URL: a.cfg.URL, AuthKey: a.cfg.AuthKey, Headers: a.cfg.Headers}
}

func (a *app) limits() formspec.Limits {
	return formspec.Limits{MaxBlobBytes: a.cfg.MaxBlobBytesN}
}

// buildStream turns the configured form arguments into a stream.
func (a *app) buildStream() (*mpbody.Stream, error) {
	if len(a.cfg.Fields) == 0 {
		return nil, fmt.Errorf("no form fields given (use -F name=value)")
	}
	specs, err := formspec.ParseAll(a.cfg.Fields)
	if err != nil {
		return nil, err
	}
	stream := mpbody.New()
	if err := formspec.Apply(stream, specs, a.limits()); err != nil {
		return nil, err
	}
	return stream, nil
}

func (a *app) upload(ctx context.Context, out io.Writer) error {
	stream, err := a.buildStream()
	if err != nil {
		return err
	}
	defer stream.Close()

	resp, err := a.newUploader().Upload(ctx, stream, a.target())
	if resp != nil {
		fmt.Fprintln(out, resp.Summary())
		if len(resp.Body) > 0 {
			fmt.Fprintf(out, "\n%s\n", resp.Body)
		}
	}
	return err
}
