package app

import (
	"context"
	"flag"
	"strings"
)

// StoreFlags are the storage flags shared by the binaries. Empty DSN flags
// fall back to Settings.
type StoreFlags struct {
	UseMemory     bool
	PostgresDSN   string
	ClickHouseDSN string
	Migrate       bool
	FixtureBars   int
}

// RegisterStoreFlags registers the storage flags on fs.
func RegisterStoreFlags(fs *flag.FlagSet) *StoreFlags {
	f := &StoreFlags{}
	fs.BoolVar(&f.UseMemory, "use-memory", false, "Use in-memory storage seeded with synthetic fixtures")
	fs.StringVar(&f.PostgresDSN, "postgres-dsn", "", "PostgreSQL connection string (default $POSTGRES_DSN)")
	fs.StringVar(&f.ClickHouseDSN, "clickhouse-dsn", "", "ClickHouse connection string (default $CLICKHOUSE_DSN)")
	fs.BoolVar(&f.Migrate, "migrate", false, "Apply the embedded schema before running")
	fs.IntVar(&f.FixtureBars, "fixture-bars", 0, "Bars per fixture series with --use-memory (default 600)")
	return f
}

// OpenStores opens the stores selected by f. In-memory stores are seeded
// for every configured symbol on timeframes.
func (e *Env) OpenStores(ctx context.Context, f *StoreFlags, timeframes []string) (*Stores, error) {
	pg, ch := f.PostgresDSN, f.ClickHouseDSN
	if pg == "" {
		pg = e.Settings.PostgresDSN
	}
	if ch == "" {
		ch = e.Settings.ClickHouseDSN
	}

	return OpenStores(ctx, StoreOptions{
		UseMemory:         f.UseMemory,
		PostgresDSN:       pg,
		ClickHouseDSN:     ch,
		Migrate:           f.Migrate,
		FixtureSymbols:    e.Strategy.Assets.AllSymbols(),
		FixtureTimeframes: timeframes,
		FixtureBars:       f.FixtureBars,
		Logger:            e.Logger,
	})
}

// SplitList splits a comma-separated flag value, trimming blanks. An empty
// value yields def.
func SplitList(s string, def []string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
