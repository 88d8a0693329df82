package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"modresolve/internal/check"
	"modresolve/internal/config"
	"modresolve/internal/resolver"
	"modresolve/internal/safeio"
	"modresolve/internal/scan"
)

type lookupOut struct {
	Specifier string   `json:"specifier"`
	Path      string   `json:"path,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Error     string   `json:"error,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Tried     []string `json:"tried,omitempty"`
}

func main() {
	cfgPath := flag.String("config", "", "path to resolver YAML (defaults to $RESOLVER_CONFIG)")
	from := flag.String("from", "", "importing file; relative paths are taken from the project root")
	checkDir := flag.String("check", "", "resolve every import under this directory (relative to the project root) and report failures")
	asJSON := flag.Bool("json", false, "print results as JSON")
	quiet := flag.Bool("q", false, "suppress log output")
	flag.Parse()

	if *quiet {
		log.SetOutput(io.Discard)
	}
	if *checkDir == "" && flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: resolve [-config file] [-from importer] specifier...")
		fmt.Fprintln(os.Stderr, "       resolve [-config file] -check dir")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	logger := log.Default()
	res, err := cfg.Build(logger)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("resolve: root %s, %d aliases, extensions %v", res.Table().RootDir(), res.Table().Len(), res.Extensions())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	var code int
	if *checkDir != "" {
		code = runCheck(ctx, cfg, res, *checkDir, *asJSON, logger)
	} else {
		code = runLookup(ctx, res, *from, flag.Args(), *asJSON)
	}
	stop()
	os.Exit(code)
}

func runLookup(ctx context.Context, res *resolver.Resolver, from string, specs []string, asJSON bool) int {
	importer := from
	if importer == "" {
		// Resolve as if imported from a file at the project root.
		importer = filepath.Join(res.Table().RootDir(), "index")
	}
	code := 0
	var out []lookupOut
	for _, spec := range specs {
		r := res.ResolveFile(ctx, spec, importer)
		o := lookupOut{Specifier: spec}
		if r.Resolved() {
			o.Path, o.Kind = r.Path, string(r.Kind)
		} else {
			code = 1
			o.Error, o.Reason = r.Err().Error(), string(r.Reason())
			o.Tried = r.Failure.Candidates
		}
		out = append(out, o)
		if asJSON {
			continue
		}
		if o.Error != "" {
			fmt.Fprintln(os.Stderr, o.Error)
			continue
		}
		fmt.Println(o.Path)
	}
	if asJSON {
		writeJSON(out)
	}
	return code
}

func runCheck(ctx context.Context, cfg *config.Config, res *resolver.Resolver, dir string, asJSON bool, logger *log.Logger) int {
	sfs, err := safeio.NewSafeFS(cfg.RootDir)
	if err != nil {
		log.Fatal(err)
	}
	runner := &check.Runner{
		Resolver: res,
		FS:       sfs,
		Workers:  cfg.Workers,
		Scan:     scan.Options{IgnoreDirs: cfg.IgnoreDirs},
		Logger:   logger,
	}
	report, err := runner.Run(ctx, dir)
	if err != nil {
		log.Fatal(err)
	}
	m := res.CacheMetrics()
	log.Printf("resolve: cache hits=%d misses=%d computations=%d shared=%d", m.Hits, m.Misses, m.Computations, m.Shared)
	if asJSON {
		writeJSON(report)
	} else {
		for _, d := range report.Diagnostics {
			fmt.Println(d.String())
		}
	}
	if !report.OK() {
		return 1
	}
	return 0
}

func writeJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal(err)
	}
}
