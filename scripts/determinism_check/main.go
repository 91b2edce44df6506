package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable/internal/scheduler"
)

type target struct {
	Catalog   string `json:"catalog"`
	OnePerDay bool   `json:"onePerDay"`
	Critical  bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type comparison struct {
	Target    target
	Runs      int
	Identical bool
	Placed    int
	Requested int
	Error     error
	Duration  time.Duration
}

func main() {
	var (
		targetsPath string
		runs        int
		minMinutes  int
		maxMinutes  int
		timeout     time.Duration
	)

	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "determinism_check", "targets.json"), "Path to JSON targets file")
	flag.IntVar(&runs, "runs", 3, "Runs per catalog")
	flag.IntVar(&minMinutes, "min-session", 60, "Minimum session length in minutes")
	flag.IntVar(&maxMinutes, "max-session", 180, "Maximum session length in minutes")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Timeout per run")
	flag.Parse()

	if runs < 2 {
		log.Fatalf("runs must be at least 2, got %d", runs)
	}

	targets, err := loadTargets(targetsPath)
	if err != nil {
		log.Fatalf("failed to load targets: %v", err)
	}

	bounds := scheduler.DurationBounds{Min: minMinutes, Max: maxMinutes}
	var (
		comparisons  []comparison
		breaking     int
		optionalDiff int
	)
	for _, t := range targets {
		comp := compareRuns(t, bounds, runs, timeout)
		if comp.Error != nil || !comp.Identical {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		comparisons = append(comparisons, comp)
	}

	printReport(comparisons)

	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadTargets(path string) ([]target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets defined in %s", path)
	}
	return cfg.Targets, nil
}

func loadCatalog(path string) (*scheduler.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var catalog scheduler.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	return &catalog, nil
}

// compareRuns schedules the same catalog several times from fresh snapshots and checks
// that every run produced byte-identical output.
func compareRuns(tgt target, bounds scheduler.DurationBounds, runs int, timeout time.Duration) comparison {
	comp := comparison{Target: tgt, Runs: runs, Identical: true}
	engine := scheduler.NewEngine(scheduler.EngineConfig{
		Bounds:  bounds,
		Options: scheduler.Options{OnePerDay: tgt.OnePerDay},
	}, nil, zap.NewNop())

	var first []byte
	start := time.Now()
	for i := 0; i < runs; i++ {
		catalog, err := loadCatalog(tgt.Catalog)
		if err != nil {
			comp.Error = err
			return comp
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		schedule, err := engine.Run(ctx, catalog)
		cancel()
		if err != nil {
			comp.Error = fmt.Errorf("run %d: %w", i+1, err)
			return comp
		}
		if schedule.Cancelled {
			comp.Error = fmt.Errorf("run %d hit the %s timeout", i+1, timeout)
			return comp
		}
		payload, err := json.Marshal(schedule)
		if err != nil {
			comp.Error = fmt.Errorf("encode run %d: %w", i+1, err)
			return comp
		}
		if first == nil {
			first = payload
			comp.Placed = schedule.Stats.OccurrencesPlaced
			comp.Requested = schedule.Stats.OccurrencesRequested
			continue
		}
		if !bytes.Equal(first, payload) {
			comp.Identical = false
		}
	}
	comp.Duration = time.Since(start)
	return comp
}

func printReport(results []comparison) {
	fmt.Println("Determinism Check Report")
	fmt.Println("========================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.Identical {
			status = "DIFF"
		}
		fmt.Printf("[%s] %s\n", status, res.Target.Catalog)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Runs: %d (%s) | Placed: %d of %d | Identical: %t | Critical: %t\n",
			res.Runs, res.Duration, res.Placed, res.Requested, res.Identical, res.Target.Critical)
	}
}
