// Command treemapscan is the demo CLI driving internal/session from
// argv: it scans one directory, prints a running progress line, dumps
// a short summary of the resulting tree, and optionally exposes the
// loopback debug/metrics surface (internal/debugsrv) while it runs.
// Grounded on the teacher's cmd/cc-backend/main.go: flag parsing, a
// JSON config file overlaid on defaults, .env loading before the
// config is read, and log.Fatal as the only place configuration
// errors ever terminate the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"

	"github.com/diskviz/treemap/internal/colorscheme"
	"github.com/diskviz/treemap/internal/config"
	"github.com/diskviz/treemap/internal/debugsrv"
	"github.com/diskviz/treemap/internal/history"
	"github.com/diskviz/treemap/internal/scanner"
	"github.com/diskviz/treemap/internal/session"
	"github.com/diskviz/treemap/pkg/log"
)

var logger = log.For("treemapscan")

func main() {
	var flagConfigFile, flagRoot, flagLogLevel string
	var flagOnlyDirs, flagGops bool
	var flagMinSize int64
	flag.StringVar(&flagConfigFile, "config", "./treemap.json", "Overwrite the default options by those specified in `config.json`")
	flag.StringVar(&flagRoot, "root", ".", "Directory to scan")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "One of debug, info, notice, warn, err, crit")
	flag.BoolVar(&flagOnlyDirs, "only-dirs", false, "Restrict picking to directories (the scanned tree is not filtered)")
	flag.Int64Var(&flagMinSize, "min-size", 0, "Exclude nodes smaller than this many bytes from picking and search (the scanned tree is not pruned)")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			logger.Fatalf("gops/agent.Listen failed: %s", err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Fatalf("parsing '.env' file failed: %s", err)
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		logger.Fatal(err)
	}

	colors, err := colorscheme.Load(cfg.ColorSchemePath)
	if err != nil {
		logger.Fatal(err)
	}

	var hist *history.Store
	if cfg.HistoryDB != "" {
		hist, err = history.Open(cfg.HistoryDB)
		if err != nil {
			logger.Warnf("history recording skipped: %s", err)
		} else {
			defer hist.Close()
		}
	}

	sess := session.New(cfg, colors, hist, session.Callbacks{})
	defer sess.Close()

	handle := sess.Scan(flagRoot, session.ScanFilter{
		MinSize:         flagMinSize,
		OnlyDirectories: flagOnlyDirs,
	})

	if cfg.ShowDebuggingMenu {
		dbg, err := debugsrv.New(cfg.DebugAddr, func() (scanner.Snapshot, bool) {
			select {
			case <-handle.Done():
				return handle.Progress(), false
			default:
				return handle.Progress(), true
			}
		})
		if err != nil {
			logger.Fatal(err)
		}
		if err := dbg.Start(); err != nil {
			logger.Fatal(err)
		}
		defer dbg.Shutdown(context.Background())
		logger.Infof("debug surface listening at %s", cfg.DebugAddr)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-handle.Done():
			break loop
		case <-sigs:
			logger.Info("interrupted, stopping scan")
			sess.StopScan()
		case <-ticker.C:
			snap := handle.Progress()
			fmt.Printf("\rscanning: %d files, %d directories, %d bytes", snap.FilesScanned, snap.DirectoriesScanned, snap.BytesProcessed)
		}
	}
	fmt.Println()

	if err := handle.Err(); err != nil {
		logger.Fatalf("scan failed: %s", err)
	}

	root := sess.Tree()
	if root == nil {
		logger.Fatal("scan produced no tree")
	}

	fmt.Printf("%s: %d bytes\n", flagRoot, root.Payload.File.Size)
	var top []string
	for c := range root.Children() {
		top = append(top, fmt.Sprintf("  %s: %d bytes", c.Payload.File.Name, c.Payload.File.Size))
		if len(top) >= 10 {
			break
		}
	}
	for _, line := range top {
		fmt.Println(line)
	}
}
