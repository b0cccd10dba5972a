package main

import (
	"context"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	mbp "go.sustore.dev/core/mainboilerplate"
	"go.sustore.dev/core/metrics"
	"go.sustore.dev/core/store"
)

const iniFilename = "sustore.ini"

// Config is the top-level configuration object of the scheduler-unit store
// tooling.
var Config = new(struct {
	Store       store.Config          `group:"Store" namespace:"store" env-namespace:"STORE"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

func openStore() *store.Store {
	mbp.InitLog(Config.Log)
	mbp.InitDiagnostics(Config.Diagnostics)
	prometheus.MustRegister(metrics.StoreCollectors()...)

	var st, err = store.Open(Config.Store)
	mbp.Must(err, "failed to open store")
	return st
}

type cmdSetup struct{}

func (cmdSetup) Execute([]string) error {
	var st = openStore()
	defer st.Close()

	mbp.Must(st.RunMigrations(context.Background()), "failed to apply schema migrations")
	log.Info("schema is up to date")
	return nil
}

type cmdSync struct{}

func (cmdSync) Execute([]string) error {
	var st = openStore()
	defer st.Close()

	var synced, err = st.SyncByteStore(context.Background())
	mbp.Must(err, "failed to sync the blob store")
	log.WithField("synced", synced).Info("sync complete")
	return nil
}

type cmdMigrate struct {
	Args struct {
		Range string `positional-arg-name:"RANGE" description:"Offset range to migrate, as \"<from>\" or \"<from>-<to>\""`
	} `positional-args:"yes" required:"yes"`
}

func (c *cmdMigrate) Execute([]string) error {
	var st = openStore()
	defer st.Close()

	var processed, err = st.MigrateToDisk(context.Background(),
		c.Args.Range, Config.Store.MigrationBatchSize)
	mbp.Must(err, "failed to migrate messages to disk")
	log.WithField("processed", processed).Info("migration complete")
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("setup", "Apply schema migrations", `
Apply the store's relational schema against the primary database endpoint.
Statements are idempotent, and setup is safe to re-run at every deploy.
`, &cmdSetup{})

	_, _ = parser.AddCommand("sync", "Sync the blob store tail", `
Scan the messages table newest to oldest and write each payload into the
blob store, stopping at the first payload already present. Run at startup,
before the service accepts traffic, to repair any rows whose blob write was
lost to a crash.
`, &cmdSync{})

	_, _ = parser.AddCommand("migrate", "Migrate payloads to the blob store", `
Copy the relational payload bytes of an offset range of message rows into
the blob store, in concurrent batches. The range is "<from>" or
"<from>-<to>", and is clamped to the true row count. Any row failure aborts
the run; the migration is safely re-runnable.
`, &cmdMigrate{})

	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}
