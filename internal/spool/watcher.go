// Package spool uploads files dropped into a directory.
//
// Every matching file becomes its own multipart body: the configured static
// fields followed by the file under FileField. Files that were accepted by
// the server are moved into a ".sent" subdirectory.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/formship/internal/formspec"
	"github.com/bft-labs/formship/pkg/log"
	"github.com/bft-labs/formship/pkg/mpbody"
	"github.com/bft-labs/formship/pkg/uploader"
)

// SentDirName is the subdirectory that receives uploaded files.
const SentDirName = ".sent"

// Default timings.
const (
	DefaultDebounce  = 200 * time.Millisecond
	DefaultRetryBase = time.Second
	DefaultRetryMax  = time.Minute
)

// Uploader sends one stream. *uploader.Uploader implements it.
type Uploader interface {
	Upload(ctx context.Context, stream *mpbody.Stream, target uploader.Target) (*uploader.Response, error)
}

// Config holds watcher settings.
type Config struct {
	// Dir is the spool directory. Only its top level is watched.
	Dir string
	// Pattern is a doublestar pattern matched against file base names.
	Pattern string
	// FileField is the form field name of the spooled file.
	FileField string
	// Fields are added before the file in every body.
	Fields []formspec.Spec
	Limits formspec.Limits
	Target uploader.Target

	// Debounce is how long a file must stay quiet before it is uploaded.
	Debounce  time.Duration
	RetryBase time.Duration
	RetryMax  time.Duration

	// Once uploads the files present at start and returns.
	Once bool
}

// Watcher uploads spooled files.
type Watcher struct {
	cfg    Config
	up     Uploader
	logger log.Logger
	queue  *queue
	sent   string

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New validates cfg and creates a Watcher.
func New(cfg Config, up Uploader, logger log.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("spool: dir is required")
	}
	if up == nil {
		return nil, errors.New("spool: uploader is required")
	}
	if cfg.Pattern == "" {
		cfg.Pattern = "*"
	}
	if !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("spool: invalid pattern %q", cfg.Pattern)
	}
	if cfg.FileField == "" {
		cfg.FileField = "file"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.RetryMax < cfg.RetryBase {
		cfg.RetryMax = DefaultRetryMax
		if cfg.RetryMax < cfg.RetryBase {
			cfg.RetryMax = cfg.RetryBase
		}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	return &Watcher{
		cfg:    cfg,
		up:     up,
		logger: logger,
		queue:  newQueue(),
		sent:   filepath.Join(cfg.Dir, SentDirName),
		timers: make(map[string]*time.Timer),
	}, nil
}

// Run uploads files until ctx is done. In Once mode it returns after the
// initial scan has been processed, with the errors of files that failed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.sent, 0o755); err != nil {
		return fmt.Errorf("create sent dir: %w", err)
	}

	if w.cfg.Once {
		return w.runOnce(ctx)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.Dir, err)
	}

	paths, err := w.scan()
	if err != nil {
		return err
	}
	for _, p := range paths {
		w.queue.push(p)
	}

	w.logger.Info("spool watcher started",
		log.String("dir", w.cfg.Dir),
		log.String("pattern", w.cfg.Pattern),
		log.Int("pending", w.queue.len()),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.worker(ctx)
	}()
	defer func() {
		w.stopTimers()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("spool watcher stopped", log.String("dir", w.cfg.Dir))
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			w.debounce(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("spool watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) error {
	paths, err := w.scan()
	if err != nil {
		return err
	}
	w.logger.Info("uploading spool", log.String("dir", w.cfg.Dir), log.Int("files", len(paths)))

	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.process(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(p), err))
		}
	}
	return errors.Join(errs...)
}

// scan lists matching regular files in lexical order.
func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read spool dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.cfg.Dir, e.Name())
		if w.matches(path) {
			out = append(out, path)
		}
	}
	return out, nil
}

// matches reports whether path is a candidate for upload. Hidden files are
// skipped so partial writes named ".name.tmp" are left alone.
func (w *Watcher) matches(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ok, err := doublestar.Match(w.cfg.Pattern, name)
	return err == nil && ok
}

func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.queue.push(path)
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) worker(ctx context.Context) {
	b := newBackoff(w.cfg.RetryBase, w.cfg.RetryMax)
	for {
		path, ok := w.queue.pop(ctx)
		if !ok {
			return
		}
		b.Reset()
		for {
			err := w.process(ctx, path)
			if err == nil || ctx.Err() != nil {
				break
			}
			if !retryable(err) {
				w.logger.Error("upload rejected, leaving file in spool",
					log.String("file", path),
					log.Err(err),
				)
				break
			}
			w.logger.Warn("upload failed, retrying",
				log.String("file", path),
				log.Err(err),
			)
			if b.Sleep(ctx) != nil {
				return
			}
		}
	}
}

// process uploads one file and moves it aside on success.
func (w *Watcher) process(ctx context.Context, path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("spooled file is gone", log.String("file", path))
		return nil
	}
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return nil
	}

	stream := mpbody.New()
	if err := formspec.Apply(stream, w.cfg.Fields, w.cfg.Limits); err != nil {
		return err
	}
	if err := stream.AddFile(w.cfg.FileField, path, "", ""); err != nil {
		return err
	}

	resp, err := w.up.Upload(ctx, stream, w.cfg.Target)
	if err != nil {
		if resp != nil {
			return &statusError{code: resp.StatusCode, err: fmt.Errorf("upload %s: %w", filepath.Base(path), err)}
		}
		return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}

	dst, err := w.sentPath(filepath.Base(path))
	if err != nil {
		return err
	}
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", path, SentDirName, err)
	}
	w.logger.Info("file uploaded",
		log.String("file", filepath.Base(path)),
		log.Bytes("size", fi.Size()),
		log.Int("status", resp.StatusCode),
	)
	return nil
}

// sentPath picks a destination that does not overwrite an earlier upload.
func (w *Watcher) sentPath(name string) (string, error) {
	dst := filepath.Join(w.sent, name)
	if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
		return dst, nil
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i < 1000; i++ {
		dst = filepath.Join(w.sent, fmt.Sprintf("%s.%d%s", stem, i, ext))
		if _, err := os.Lstat(dst); errors.Is(err, fs.ErrNotExist) {
			return dst, nil
		}
	}
	return "", fmt.Errorf("no free name for %s in %s", name, SentDirName)
}

// retryable reports whether a failed upload is worth repeating. Client
// errors and malformed fields need a human.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, formspec.ErrMalformed), errors.Is(err, formspec.ErrTooLarge),
		errors.Is(err, formspec.ErrNoMatch), errors.Is(err, mpbody.ErrInvalidArgument):
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= http.StatusInternalServerError || se.code == http.StatusTooManyRequests
	}
	return true
}

// statusError carries the HTTP status of a rejected upload.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return fmt.Sprintf("%v (status %d)", e.err, e.code) }
func (e *statusError) Unwrap() error { return e.err }
