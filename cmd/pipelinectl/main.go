// Command pipelinectl triggers stages by hand and manages the source registry.
//
//	pipelinectl trigger [-url http://localhost:8080] [-body JSON] <ingest|cluster|generate>
//	pipelinectl seed-sources [file.yaml]
//	pipelinectl migrate
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/stancefeed-backend/internal/data/db"
	"github.com/yungbote/stancefeed-backend/internal/data/repos"
	"github.com/yungbote/stancefeed-backend/internal/data/seed"
	types "github.com/yungbote/stancefeed-backend/internal/domain"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pipelinectl <trigger|seed-sources|migrate> [args]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "trigger":
		err = runTrigger(ctx, os.Args[2:])
	case "seed-sources":
		err = runSeed(ctx, os.Args[2:])
	case "migrate":
		err = runMigrate()
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runTrigger(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	base := fs.String("url", envutil.String("PIPELINE_URL", "http://localhost:8080"), "pipeline base url")
	body := fs.String("body", "", "json request body, logged by the stage as a diagnostic preview")
	timeout := fs.Duration("timeout", 60*time.Second, "request timeout")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one stage name")
	}
	stage := fs.Arg(0)
	secret := jobrt.LoadStageConfig(stage).Secret
	if secret == "" {
		return fmt.Errorf("no cron secret for %s (set %s or CRON_SECRET)", stage, stageSecretVar(stage))
	}
	client := &http.Client{Timeout: *timeout}
	return trigger(ctx, client, triggerRequest{
		BaseURL: *base,
		Stage:   stage,
		Secret:  secret,
		Body:    *body,
	}, os.Stdout)
}

func runSeed(ctx context.Context, args []string) error {
	var (
		sources []*types.Source
		err     error
	)
	if len(args) > 0 {
		f, openErr := os.Open(args[0])
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		sources, err = seed.Load(f)
	} else {
		sources, err = seed.Default()
	}
	if err != nil {
		return err
	}

	log, pg, err := openDB()
	if err != nil {
		return err
	}
	defer pg.Close()
	defer log.Sync()

	n, err := repos.New(pg.DB(), log).Sources.Upsert(dbctx.Context{Ctx: ctx}, sources)
	if err != nil {
		return fmt.Errorf("upsert sources: %w", err)
	}
	fmt.Printf("seeded %d sources (%d rows affected)\n", len(sources), n)
	return nil
}

func runMigrate() error {
	log, pg, err := openDB()
	if err != nil {
		return err
	}
	defer pg.Close()
	defer log.Sync()
	if err := pg.AutoMigrateAll(); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

func openDB() (*logger.Logger, *db.PostgresService, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, nil, fmt.Errorf("init postgres: %w", err)
	}
	return log, pg, nil
}
