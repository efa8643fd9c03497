package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"fxcal/internal/config"
	"fxcal/internal/export"
	"fxcal/internal/feed"
	appLog "fxcal/internal/log"
	"fxcal/internal/model"
	"fxcal/internal/query"
)

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath string
	impacts    string
	currencies string
	search     string
	useUTC     bool
	title      string
	output     string
	format     string
	cacheOnly  bool
	watch      bool
	verbose    bool
}

// view bundles everything a single export run needs.
type view struct {
	client     *feed.Client
	loc        *time.Location
	impacts    []model.Impact
	currencies []string
	search     string
	useLocal   bool
	title      string
	output     string
	format     string
	exportDir  string
	cacheOnly  bool
}

func main() {
	flags := parseFlags()
	if flags.verbose {
		appLog.SetLevel(appLog.LevelDebug)
	}

	conf, err := config.LoadFromEnv(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	v, err := buildView(conf, flags)
	if err != nil {
		appLog.Error("invalid arguments", err)
		os.Exit(1)
	}

	appLog.Info("fxcal starting",
		"feed_url", conf.FeedURL,
		"cache_path", conf.CachePath,
		"timezone", conf.Timezone,
		"format", v.format,
		"watch", flags.watch,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.watch {
		if err := runWatch(ctx, v, conf.RefreshCron); err != nil {
			appLog.Error("watch mode failed", err)
			os.Exit(1)
		}
		return
	}

	path, err := runOnce(ctx, v)
	if err != nil {
		appLog.Error("export failed", err)
		os.Exit(1)
	}
	fmt.Println(path)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "data/config.yaml", "Path to config file")
	flag.StringVar(&cfg.impacts, "impact", "", "Comma-separated impact levels to include (overrides config)")
	flag.StringVar(&cfg.currencies, "currency", "", "Comma-separated currency codes to include (overrides config)")
	flag.StringVar(&cfg.search, "search", "", "Case-insensitive text query to filter events")
	flag.BoolVar(&cfg.useUTC, "utc", false, "Render event times in UTC instead of the display timezone")
	flag.StringVar(&cfg.title, "title", "", "Document title (overrides config)")
	flag.StringVar(&cfg.output, "output", "", "Output file path (default: timestamped file in the export directory)")
	flag.StringVar(&cfg.format, "format", "md", "Export format: md or ics")
	flag.BoolVar(&cfg.cacheOnly, "cache-only", false, "Use the cached payload only; do not touch the network")
	flag.BoolVar(&cfg.watch, "watch", false, "Keep running and re-export on the configured refresh schedule")
	flag.BoolVar(&cfg.verbose, "v", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

func buildView(conf *config.Config, flags flagConfig) (*view, error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}

	client, err := feed.New(feed.Options{
		BaseURL:   conf.FeedURL,
		CachePath: conf.CachePath,
		Timeout:   conf.Timeout(),
		Retries:   conf.Retries,
		Backoff:   conf.Backoff(),
	})
	if err != nil {
		return nil, err
	}

	impactNames := conf.Impacts
	if flags.impacts != "" {
		impactNames = splitCSV(flags.impacts)
	}
	impacts, err := parseImpacts(impactNames)
	if err != nil {
		return nil, err
	}

	currencies := conf.Currencies
	if flags.currencies != "" {
		currencies = splitCSV(flags.currencies)
	}

	search := conf.Search
	if flags.search != "" {
		search = flags.search
	}

	title := conf.ExportTitle
	if flags.title != "" {
		title = flags.title
	}

	format := strings.ToLower(flags.format)
	if format != "md" && format != "ics" {
		return nil, fmt.Errorf("unsupported format %q (want md or ics)", flags.format)
	}

	return &view{
		client:     client,
		loc:        loc,
		impacts:    impacts,
		currencies: currencies,
		search:     search,
		useLocal:   !(flags.useUTC || conf.UseUTC),
		title:      title,
		output:     flags.output,
		format:     format,
		exportDir:  conf.ExportDir,
		cacheOnly:  flags.cacheOnly,
	}, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseImpacts resolves impact names strictly: a name the classifier cannot
// place is a user typo, not feed drift, so it is an error here.
func parseImpacts(names []string) ([]model.Impact, error) {
	impacts := make([]model.Impact, 0, len(names))
	for _, name := range names {
		impact := model.ImpactFromValue(name)
		if impact == model.ImpactUnknown && !strings.EqualFold(strings.TrimSpace(name), string(model.ImpactUnknown)) {
			return nil, fmt.Errorf("unsupported impact level: %q", name)
		}
		impacts = append(impacts, impact)
	}
	return impacts, nil
}

// runOnce performs one fetch (or cache load), filters, renders, and writes
// the export. It returns the written file path.
func runOnce(ctx context.Context, v *view) (string, error) {
	result, err := obtain(ctx, v)
	if err != nil {
		return "", err
	}

	all, err := model.BuildEvents(result.Events, v.loc)
	if err != nil {
		return "", err
	}

	filtered := applyFilters(all, v)

	var content string
	switch v.format {
	case "ics":
		content = export.RenderICS(query.Sort(filtered, false), v.title)
	default:
		content = export.RenderMarkdown(all, filtered, v.title, v.useLocal)
	}

	path := v.output
	if path == "" {
		path = export.DefaultOutputPath(v.exportDir, v.impacts, result.FetchedAt, v.format)
	}
	if err := export.WriteFile(content, path); err != nil {
		return "", err
	}

	appLog.Info("export written",
		"path", path,
		"events", len(filtered),
		"from_cache", result.FromCache,
		"source", result.Source,
	)
	return path, nil
}

func obtain(ctx context.Context, v *view) (*feed.FetchResult, error) {
	if v.cacheOnly {
		if cached := v.client.LoadCache(); cached != nil {
			return cached, nil
		}
		return nil, fmt.Errorf("no cached payload available at %s", v.client.CachePath())
	}
	return v.client.Fetch(ctx, feed.FetchOptions{UseCacheOnFail: true, PersistCache: true})
}

func applyFilters(events []model.Event, v *view) []model.Event {
	working := events
	if len(v.impacts) > 0 {
		working = query.FilterByImpact(working, v.impacts)
	}
	if len(v.currencies) > 0 {
		working = query.FilterByCurrency(working, v.currencies)
	}
	if v.search != "" {
		working = query.Search(working, v.search)
	}
	return working
}

// runWatch re-runs the export on the configured cron schedule until the
// context is canceled, logging events that newly appeared since the last
// refresh.
func runWatch(ctx context.Context, v *view, schedule string) error {
	var prev []model.Event

	tick := func() {
		result, err := v.client.Fetch(ctx, feed.FetchOptions{UseCacheOnFail: true, PersistCache: true})
		if err != nil {
			if errors.Is(err, feed.ErrFetchInFlight) {
				appLog.Info("refresh skipped: previous fetch still running")
				return
			}
			appLog.Error("refresh failed", err)
			return
		}

		all, err := model.BuildEvents(result.Events, v.loc)
		if err != nil {
			appLog.Error("refresh produced an unusable payload", err)
			return
		}

		if fresh := model.DiffNew(prev, all); len(prev) > 0 && len(fresh) > 0 {
			for _, e := range fresh {
				appLog.Info("new calendar event",
					"title", e.Title,
					"currency", e.Currency,
					"impact", string(e.Impact),
					"time_utc", e.UTC.Format(time.RFC3339),
				)
			}
		}
		prev = all

		filtered := applyFilters(all, v)
		var content string
		switch v.format {
		case "ics":
			content = export.RenderICS(query.Sort(filtered, false), v.title)
		default:
			content = export.RenderMarkdown(all, filtered, v.title, v.useLocal)
		}

		path := v.output
		if path == "" {
			path = export.DefaultOutputPath(v.exportDir, v.impacts, result.FetchedAt, v.format)
		}
		if err := export.WriteFile(content, path); err != nil {
			appLog.Error("export write failed", err, "path", path)
			return
		}
		appLog.Info("export refreshed", "path", path, "events", len(filtered), "from_cache", result.FromCache)
	}

	// Run one cycle immediately so the export exists before the first tick.
	tick()

	c := cron.New()
	if _, err := c.AddFunc(schedule, tick); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()

	appLog.Info("fxcal exiting")
	return nil
}
