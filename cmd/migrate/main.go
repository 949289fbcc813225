package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/storefront-cart/pkg/config"
	"github.com/angelmondragon/storefront-cart/pkg/db"
	"github.com/angelmondragon/storefront-cart/pkg/logger"
	"github.com/angelmondragon/storefront-cart/pkg/migrate"
)

const usage = "up|down|status|to|create|validate"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	cmd := flags.String("cmd", "up", "command: "+usage)
	dir := flags.String("dir", migrate.DefaultDir, "migrations directory")
	name := flags.String("name", "", "migration name for -cmd=create")
	target := flags.String("version", "", "target version for -cmd=to")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Offline commands work on files only.
	switch *cmd {
	case "create":
		if *name == "" {
			return errors.New("-name is required for create")
		}
		created, err := migrate.Create(*dir, *name, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "created", created)
		return nil
	case "validate":
		if err := migrate.Validate(*dir); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations valid")
		return nil
	case "up", "down", "status", "to":
	default:
		return fmt.Errorf("unknown -cmd %q (want %s)", *cmd, usage)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()
	pool, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	migrator, err := migrate.New(pool, *dir)
	if err != nil {
		return err
	}

	switch *cmd {
	case "up":
		results, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		printResults(out, results)
		return nil
	case "down":
		result, err := migrator.Down(ctx)
		if err != nil || result == nil {
			printResults(out, nil)
			return err
		}
		printResults(out, []*goose.MigrationResult{result})
		return nil
	case "to":
		if *target == "" {
			return errors.New("-version is required for to")
		}
		results, err := migrator.To(ctx, *target)
		if err != nil {
			return err
		}
		printResults(out, results)
		return nil
	default:
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			applied := "-"
			if st.State == goose.StateApplied {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%-8s %-25s %s\n", st.State, applied, st.Source.Path)
		}
		return nil
	}
}

func printResults(out io.Writer, results []*goose.MigrationResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "nothing to do")
		return
	}
	for _, res := range results {
		fmt.Fprintln(out, res.String())
	}
}
