package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jessevdk/go-flags"
	_ "modernc.org/sqlite"

	"wecounts/migrations"
)

type options struct {
	DB   string `long:"db" env:"DATABASE_PATH" default:"./data/checked.db" description:"Path to the dedup SQLite database"`
	Args struct {
		Command string `positional-arg-name:"command" description:"up, up-one, down, status, version or reset"`
	} `positional-args:"yes" required:"yes"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[--db path] <up|up-one|down|status|version|reset>"
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", opts.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := run(context.Background(), db, opts.Args.Command); err != nil {
		log.Fatalf("%s: %v", opts.Args.Command, err)
	}
}

func run(ctx context.Context, db *sql.DB, cmd string) error {
	p, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		_, err = p.Up(ctx)
	case "up-one":
		_, err = p.UpByOne(ctx)
	case "down":
		_, err = p.Down(ctx)
	case "reset":
		_, err = p.DownTo(ctx, 0)
	case "status":
		statuses, serr := p.Status(ctx)
		if serr != nil {
			return serr
		}
		for _, s := range statuses {
			applied := "pending"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%-24s %s\n", applied, s.Source.Path)
		}
	case "version":
		v, verr := p.GetDBVersion(ctx)
		if verr != nil {
			return verr
		}
		fmt.Printf("version %d\n", v)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return err
}
