// Command ledger-admin applies the ledger schema and inspects or clears
// order records in PostgreSQL.
//
//	ledger-admin [-database-url URL] migrate
//	ledger-admin [-database-url URL] lookup PAYMENT_ORDER_ID
//	ledger-admin [-database-url URL] release PAYMENT_ORDER_ID
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/colormuse/print-api/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] migrate | lookup ID | release ID\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args()); err != nil {
		slog.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, args []string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	cmd, rest := args[0], args[1:]
	if cmd == "migrate" {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		slog.Info("schema applied")
		return nil
	}

	if len(rest) != 1 {
		return errors.Errorf("%s needs exactly one payment order id", cmd)
	}
	id := rest[0]
	ledger := postgres.NewLedger(pool, 0)

	switch cmd {
	case "lookup":
		entry, err := ledger.Lookup(ctx, id)
		if err != nil {
			return err
		}
		return printEntry(entry)
	case "release":
		if err := ledger.Release(ctx, id); err != nil {
			return err
		}
		slog.Info("reservation released", slog.String("payment_order_id", id))
		return nil
	default:
		return errors.Errorf("unknown command %q", cmd)
	}
}

func printEntry(entry *postgres.Entry) error {
	e := jx.Encoder{}
	e.SetIdent(2)
	e.Obj(func(e *jx.Encoder) {
		e.Field("payment_order_id", func(e *jx.Encoder) { e.Str(entry.PaymentOrderID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(entry.Status) })
		if entry.JobID != "" {
			e.Field("job_id", func(e *jx.Encoder) { e.Str(entry.JobID) })
		}
		if entry.Amount != nil {
			e.Field("amount", func(e *jx.Encoder) { e.Str(entry.Amount.StringFixed(2) + " " + entry.Currency) })
		}
		e.Field("reserved_at", func(e *jx.Encoder) { e.Str(entry.ReservedAt.Format("2006-01-02T15:04:05Z07:00")) })
		if entry.CompletedAt != nil {
			e.Field("completed_at", func(e *jx.Encoder) { e.Str(entry.CompletedAt.Format("2006-01-02T15:04:05Z07:00")) })
		}
		if len(entry.Job) > 0 {
			e.Field("job", func(e *jx.Encoder) { e.Raw(entry.Job) })
		}
	})
	_, err := fmt.Fprintln(os.Stdout, e.String())
	return err
}
