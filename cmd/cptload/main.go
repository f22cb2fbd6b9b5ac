package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/app"
	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/config"
	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/openground"
	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/util"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "check":
		os.Exit(runCheck(ctx, os.Args[2:]))
	case "load":
		os.Exit(runLoad(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func parseOptions(name string, args []string) (app.Options, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var opts app.Options
	fs.StringVar(&opts.ManifestPath, "manifest", "", "JSON manifest naming the ConeTec exports to process")
	fs.StringVar(&opts.BaseDir, "base-dir", "", "Directory that relative source_file paths resolve against (default: manifest's directory)")
	fs.IntVar(&opts.Workers, "workers", 1, "Number of files processed concurrently")
	fs.BoolVar(&opts.FailFast, "fail-fast", false, "Abort on the first job failure instead of continuing")
	if err := fs.Parse(args); err != nil {
		return app.Options{}, false
	}
	if opts.ManifestPath == "" {
		_, _ = fmt.Fprintf(os.Stderr, "%s requires --manifest\n", name)
		return app.Options{}, false
	}
	return opts, true
}

func runCheck(ctx context.Context, args []string) int {
	opts, ok := parseOptions("check", args)
	if !ok {
		return 2
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	if _, err := app.Check(ctx, opts, logger); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "check failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func runLoad(ctx context.Context, args []string) int {
	opts, ok := parseOptions("load", args)
	if !ok {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	client, err := openground.NewClient(openground.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Region:       cfg.Region,
		InstanceID:   cfg.InstanceID,
		TokenURL:     cfg.TokenURL,
		BaseURL:      cfg.BaseURL,
		RateLimitRPS: cfg.RateLimitRPS,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "client error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	if _, err := app.Run(ctx, cfg, client, opts, logger); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `cptload: load ConeTec CPT spreadsheet exports into OpenGround Cloud

Usage:
  cptload <command> [flags]

Commands:
  check  Parse and validate every file in the manifest without remote calls
  load   Load every file in the manifest into the configured project

Examples:
  cptload check --manifest delivery/manifest.json
  cptload load --manifest delivery/manifest.json

Environment (load):
  OPENGROUND_CLIENT_ID      Client-credentials id (required)
  OPENGROUND_CLIENT_SECRET  Client-credentials secret (required)
  CLOUD_REGION              Region of the API host, e.g. "us" (required)
  CLOUD_ID                  OpenGround cloud instance id (required)
  PROJECT_CLOUD_ID          Cloud id of the target project (required)
  OPENGROUND_TOKEN_URL      Token endpoint override (harness/testing)
  OPENGROUND_BASE_URL       API base URL override (harness/testing)
  RATE_LIMIT_RPS            Remote call rate limit, 0 disables
  OPENGROUND_CONFIG_FILE    Optional YAML config file; env vars override it

A .env file in the working directory is loaded first if present.

`)
}
