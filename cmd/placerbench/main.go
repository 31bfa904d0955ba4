// Command placerbench drives a placer with synthetic scrolling and content
// churn and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/adplacer/config"
	"github.com/IvanBrykalov/adplacer/failure"
	pmet "github.com/IvanBrykalov/adplacer/metrics/prom"
	"github.com/IvanBrykalov/adplacer/placer"
	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/IvanBrykalov/adplacer/supply"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// counters is a Sink that tallies events; the placer calls it under its lock
// but reporting reads happen concurrently.
type counters struct {
	placed, removed, failed atomic.Uint64
}

func (c *counters) ItemPlaced(int)            { c.placed.Add(1) }
func (c *counters) ItemRemoved(int)           { c.removed.Add(1) }
func (c *counters) LoadFailed(failure.Reason) { c.failed.Add(1) }

func main() {
	// ---- Flags ----
	var (
		fixedFlag = flag.String("fixed", "1", "comma-separated fixed positions (ignored with -rules_url/-rules_file)")
		interval  = flag.Int("interval", 5, "repeating interval (0 = none)")
		rulesURL  = flag.String("rules_url", "", "fetch rules from this endpoint instead")
		rulesFile = flag.String("rules_file", "", "load static rules from this YAML file")
		strategy  = flag.String("strategy", "", "content-change strategy: move | fixed | atend (default from env)")

		content  = flag.Int("content", 1_000, "initial content length")
		window   = flag.Int("window", 20, "visible range size")
		workers  = flag.Int("workers", runtime.GOMAXPROCS(0), "number of scrolling goroutines")
		churn    = flag.Int("churn", 10, "percentage of operations that mutate content [0..100]")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")

		failPct = flag.Int("fail", 10, "percentage of supply fetches that fail [0..100]")
		latency = flag.Duration("latency", 5*time.Millisecond, "simulated supply fetch latency")

		verbose     = flag.Bool("v", false, "debug logging")
		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			logger.Info("pprof: serving", "addr", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "adplacer", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("metrics: serving", "addr", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Configuration: env first, flags override ----
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *rulesURL != "" {
		cfg.RulesURL, cfg.RulesFile = *rulesURL, ""
	}
	if *rulesFile != "" {
		cfg.RulesFile, cfg.RulesURL = *rulesFile, ""
	}
	if *strategy != "" {
		cfg.StrategyName = *strategy
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	var fetched atomic.Uint64
	fetch := supply.FetchFunc[string](func(ctx context.Context, seq uint64) (string, error) {
		select {
		case <-time.After(*latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		if rand.IntN(100) < *failPct {
			return "", fmt.Errorf("bench: fetch %d: %w", seq, failure.ErrNoFill)
		}
		fetched.Add(1)
		return "ad-" + strconv.FormatUint(seq, 10), nil
	})

	opt, err := config.PlacerOptions[string](cfg, fetch, logger)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.RulesURL == "" && cfg.RulesFile == "" {
		r, err := parseRules(*fixedFlag, *interval)
		if err != nil {
			log.Fatal(err)
		}
		opt.Rules = r
	}
	sink := &counters{}
	opt.Sink = sink
	opt.Metrics = metrics

	p := placer.New[string](opt)
	defer p.Destroy()
	p.SetContentLength(*content)
	p.LoadAds("bench")

	// ---- Snapshot flags for goroutines ----
	windowN := max(*window, 1)
	churnPct := *churn
	workersN := max(*workers, 1)

	// ---- Load generation ----
	var scrolls, inserts, removes atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		g.Go(func() error {
			// Each worker gets its own RNG (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewPCG(uint64(w), uint64(start.UnixNano())))
			for gctx.Err() == nil {
				n := p.ContentLen()
				switch {
				case r.IntN(100) >= churnPct || n == 0:
					lo := 0
					if total := p.AdjustedLen(); total > windowN {
						lo = r.IntN(total - windowN)
					}
					p.PlaceInRange(lo, lo+windowN)
					scrolls.Add(1)
				case r.IntN(2) == 0:
					p.ContentInserted(r.IntN(n+1), 1+r.IntN(3))
					inserts.Add(1)
				default:
					i := r.IntN(n)
					p.ContentRemoved(i, 1+r.IntN(min(3, n-i)))
					removes.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatal(err)
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := scrolls.Load() + inserts.Load() + removes.Load()
	filled := 0
	slots := p.Slots()
	for _, s := range slots {
		if s.Filled() {
			filled++
		}
	}

	fmt.Printf("strategy=%s workers=%d content=%d dur=%v fail=%d%%\n",
		opt.Policy.Name(), workersN, *content, elapsed, *failPct)
	fmt.Printf("ops=%d (%.0f ops/s)  scrolls=%d  inserts=%d  removes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), scrolls.Load(), inserts.Load(), removes.Load())
	fmt.Printf("fetched=%d  placed=%d  removed=%d  load-failures=%d\n",
		fetched.Load(), sink.placed.Load(), sink.removed.Load(), sink.failed.Load())
	fmt.Printf("ContentLen()=%d  AdjustedLen()=%d  slots=%d filled=%d\n",
		p.ContentLen(), p.AdjustedLen(), len(slots), filled)
}

// parseRules builds rules from the -fixed and -interval flags.
func parseRules(fixed string, interval int) (rules.Rules, error) {
	var pos []int
	for _, f := range strings.Split(fixed, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return rules.Rules{}, fmt.Errorf("bad -fixed value %q: %w", f, err)
		}
		pos = append(pos, n)
	}
	return rules.New(pos, interval)
}
