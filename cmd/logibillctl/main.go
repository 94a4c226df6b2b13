package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/logistics-billing/cmd/logibillctl/cli"
	"github.com/odyssey-erp/logistics-billing/internal/app"
)

const usage = `usage: logibillctl <command> [flags]

commands:
  rebuild    enqueue a summary rebuild (--from, --to as YYYY-MM-DD)
  queue      print default queue counters
  scheduled  list scheduled tasks (--size)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("close jobs cli", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, jobsCLI, os.Args[1], os.Args[2:]); err != nil {
		logger.Error(os.Args[1], slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.JobsCLI, command string, args []string) error {
	switch command {
	case "rebuild":
		fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
		fromRaw := fs.String("from", "", "first day to rebuild")
		toRaw := fs.String("to", "", "last day to rebuild")
		_ = fs.Parse(args)
		from, err := cli.ParseDay(*fromRaw)
		if err != nil {
			return err
		}
		to, err := cli.ParseDay(*toRaw)
		if err != nil {
			return err
		}
		info, err := c.Rebuild(ctx, from, to)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s on %s\n", info.ID, info.Queue)
	case "queue":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Println(stats)
	case "scheduled":
		fs := flag.NewFlagSet("scheduled", flag.ExitOnError)
		size := fs.Int("size", 10, "page size")
		_ = fs.Parse(args)
		tasks, err := c.ListScheduled(ctx, *size)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}
