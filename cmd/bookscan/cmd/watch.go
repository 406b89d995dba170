package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/bookscan/internal/config"
	"github.com/MeKo-Tech/bookscan/internal/metadata"
	"github.com/MeKo-Tech/bookscan/internal/price"
	"github.com/MeKo-Tech/bookscan/internal/scanner"
	"github.com/MeKo-Tech/bookscan/internal/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan books live from a camera source",
	Long: `Start a live scan session on a configured camera source and print every
ISBN as it is detected. The same book is reported once until another one
is shown. Stop with Ctrl-C, after the first ISBN with --once, or after
--duration.

Sources are configured under camera.sources, for example:

  camera:
    default_source: phone
    sources:
      - name: phone
        url: http://192.168.1.20:8080/video
        facing: environment
      - name: replay
        dir: ./frames
        fps: 5

Examples:
  bookscan watch
  bookscan watch --source replay --once
  bookscan watch --lookup --save`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := GetConfig()

		if cmd.Flags().Changed("source") {
			cfg.Camera.DefaultSource, _ = cmd.Flags().GetString("source")
		}
		if cmd.Flags().Changed("camera-api") {
			cfg.Scanner.CameraAPI, _ = cmd.Flags().GetString("camera-api")
		}
		once, _ := cmd.Flags().GetBool("once")
		lookup, _ := cmd.Flags().GetBool("lookup")
		save, _ := cmd.Flags().GetBool("save")
		duration, _ := cmd.Flags().GetDuration("duration")

		reg := cfg.ToRegistry()
		if len(reg.Sources()) == 0 {
			return errors.New("no camera sources configured (see camera.sources)")
		}
		if _, err := reg.Lookup(cfg.Camera.DefaultSource); err != nil {
			return err
		}
		opts, err := cfg.ToScannerOptions(reg)
		if err != nil {
			return fmt.Errorf("invalid scanner configuration: %w", err)
		}

		var history *store.BoltStore
		if lookup || save {
			history, err = openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = history.Close() }()
		}
		var books metadata.Lookuper
		var prices price.Fetcher
		if lookup {
			books = cfg.ToMetadataClient()
			if prices, err = priceFetcher(cfg, history); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, duration)
			defer cancel()
		}

		w := &watcher{
			cmd: cmd, cfg: cfg, books: books, prices: prices, history: history, save: save,
		}
		return w.run(ctx, scanner.New(opts), once)
	},
}

// watcher prints the ISBNs of one live session.
type watcher struct {
	cmd     *cobra.Command
	cfg     *config.Config
	books   metadata.Lookuper
	prices  price.Fetcher
	history *store.BoltStore
	save    bool
}

func (w *watcher) run(ctx context.Context, session *scanner.Session, once bool) error {
	detected := make(chan string, 16)
	session.SetHandlers(
		func(key string) {
			select {
			case detected <- key:
			default:
				slog.Debug("Dropping detection, output is behind", "isbn", key)
			}
		},
		func(err error) { slog.Warn("Decode error", "error", err) },
	)

	if err := session.Start(ctx, nil); err != nil {
		if errors.Is(err, scanner.ErrStopped) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to start scan session: %w", err)
	}
	defer session.Stop()
	_, _ = fmt.Fprintf(w.cmd.ErrOrStderr(), "Scanning from %q, press Ctrl-C to stop\n", w.cfg.Camera.DefaultSource)

	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case key := <-detected:
			if key == last {
				continue
			}
			last = key
			if err := w.report(ctx, key); err != nil {
				return err
			}
			if once {
				return nil
			}
		}
	}
}

func (w *watcher) report(ctx context.Context, key string) error {
	out := w.cmd.OutOrStdout()
	info := enrich(ctx, w.books, w.prices, key)

	line := key
	if info.Book != nil {
		line += "\t" + info.Book.Title
	}
	if info.Price != nil {
		line += fmt.Sprintf("\t%d %s", info.Price.Price, info.Price.Currency)
	}
	if _, err := fmt.Fprintln(out, line); err != nil {
		return err
	}

	if w.save {
		_, err := w.history.Record(store.Scan{
			ISBN: key, Source: store.SourceCamera, Book: info.Book, Price: info.Price, At: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to record scan: %w", err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringP("source", "s", "", "camera source to use (default camera.default_source)")
	watchCmd.Flags().String("camera-api", "", "acquisition strategy: auto, modern, legacy or engine")
	watchCmd.Flags().Bool("once", false, "exit after the first ISBN")
	watchCmd.Flags().Bool("lookup", false, "look up metadata and used price for each ISBN")
	watchCmd.Flags().Bool("save", false, "record every ISBN in the scan history")
	watchCmd.Flags().Duration("duration", 0, "stop after this long (default until interrupted)")
}
