// Command migrate applies pending schema migrations and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/snailscoop/modauthority/internal/migrate"
	"github.com/snailscoop/modauthority/internal/store/pg"
)

func main() {
	dir := flag.String("dir", "migrations", "directory with *.up.sql files")
	flag.Parse()

	dsn := os.Getenv("MODAUTH_PG_DSN")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "MODAUTH_PG_DSN is required")
		os.Exit(1)
	}

	store, err := pg.Open(dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open postgres:", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := migrate.Up(ctx, store.DB(), *dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}
