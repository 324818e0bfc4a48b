// Command dbcore-worker is a demo CLI driving one worker through its
// statement-boundary lifecycle end to end: core-worker-init, a handful of
// begin-statement/end-statement cycles (one of which aborts), and
// core-worker-shutdown. It exists to exercise internal/xact.Worker the way
// a real connection handler would, not as a production entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relcore/dbcore/internal/bufpool"
	"github.com/relcore/dbcore/internal/catalog"
	"github.com/relcore/dbcore/internal/config"
	"github.com/relcore/dbcore/internal/dbmeta"
	"github.com/relcore/dbcore/internal/notify"
	"github.com/relcore/dbcore/internal/temprel"
	"github.com/relcore/dbcore/internal/txnlog"
	"github.com/relcore/dbcore/internal/xact"
)

var (
	databaseDir string
	configPath  string
)

var rootCmd = &cobra.Command{
	Use:   "dbcore-worker",
	Short: "run one worker through a scripted transaction lifecycle",
	RunE:  runDemo,
}

func init() {
	rootCmd.Flags().StringVar(&databaseDir, "database-dir", "", "database directory (defaults to a temp dir)")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to dbcore.yaml or dbcore.toml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if databaseDir == "" {
		databaseDir, err = os.MkdirTemp("", "dbcore-worker-*")
		if err != nil {
			return fmt.Errorf("creating database dir: %w", err)
		}
	}

	meta, err := coreWorkerInit(databaseDir, settings)
	if err != nil {
		return fmt.Errorf("core-worker-init: %w", err)
	}
	log.Printf("dbcore-worker: initialized %s (schema v%d, scratch %s)", databaseDir, meta.SchemaVersion, meta.ScratchDir(databaseDir))

	proc := xact.NewProcess()
	txlog, err := txnlog.Open(filepath.Join(databaseDir, "xlog"))
	if err != nil {
		return fmt.Errorf("opening transaction log: %w", err)
	}
	defer txlog.Close()

	pool := bufpool.NewMemPool()
	temp, err := temprel.Open(filepath.Join(databaseDir, "temprel.db"))
	if err != nil {
		return fmt.Errorf("opening temp-relation registry: %w", err)
	}
	defer temp.Close()

	cat := catalog.NewCache(nil, pool, temp, catalog.IndexedAccess{}, filepath.Join(databaseDir, "locks"))
	notifier := notify.NewDispatcher(nil)
	worker := xact.NewWorker(proc, txlog, pool, cat, temp, notifier)

	ctx := context.Background()

	runStatement(ctx, worker, "insert into t values (1)", false)
	runStatement(ctx, worker, "insert into t values (2)", false)
	runStatement(ctx, worker, "insert into t values (bogus)", true)
	runStatement(ctx, worker, "insert into t values (3)", false)

	return coreWorkerShutdown(worker)
}

func coreWorkerInit(dbDir string, settings config.Settings) (*dbmeta.Meta, error) {
	if running, pid := catalog.DescribeNailedLockOwner(dbDir); running {
		log.Printf("dbcore-worker: nailed-file regeneration lock held by pid %d", pid)
	}

	m, err := dbmeta.Load(dbDir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = dbmeta.Default()
		m.ScratchSubdir = filepath.Base(settings.ScratchDir)
		if err := m.Save(dbDir); err != nil {
			return nil, err
		}
	}
	if m.NeedsUpgrade() {
		return nil, fmt.Errorf("database %s needs a schema upgrade (have v%d, need v%d)", dbDir, m.SchemaVersion, dbmeta.CurrentSchemaVersion)
	}
	return m, nil
}

func coreWorkerShutdown(w *xact.Worker) error {
	log.Printf("dbcore-worker: shutting down, final state %+v", w.State())
	return nil
}

func runStatement(ctx context.Context, w *xact.Worker, label string, fail bool) {
	if err := w.BeginStatement(ctx); err != nil {
		log.Printf("begin-statement %q: %v", label, err)
		return
	}
	if fail {
		if err := w.AbortCurrent(ctx); err != nil {
			log.Printf("abort-current %q: %v", label, err)
		}
		log.Printf("%-30s -> aborted", label)
		return
	}
	if err := w.EndStatement(ctx); err != nil {
		log.Printf("end-statement %q: %v", label, err)
		return
	}
	log.Printf("%-30s -> committed", label)
}
