// Command sombractl is a thin administration CLI over the sombra
// public API. It only calls Stats/Verify/Vacuum/Checkpoint — it is not
// a query shell, and never touches the graph, dictionary, or index
// layers directly.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/maskdotdev/sombra-sub004"
	"github.com/maskdotdev/sombra-sub004/config"
	"github.com/maskdotdev/sombra-sub004/internal/pager"
)

var (
	flagData    = flag.String("data", "", "path to the database's data file")
	flagWAL     = flag.String("wal", "", "path to the database's WAL file")
	flagLock    = flag.String("lock", "", "path to the database's lock file")
	flagConfig  = flag.String("config", "", "optional YAML config file (see config.Options)")
	flagLevel   = flag.String("level", "quick", "verify level: quick or thorough")
	flagInto    = flag.String("into", "", "destination data file for vacuum (wal/lock derived by suffix)")
	flagVerbose = flag.Bool("v", false, "verbose logging")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s -data PATH -wal PATH -lock PATH <stats|verify|vacuum|checkpoint>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 || *flagData == "" || *flagWAL == "" || *flagLock == "" {
		usage()
		os.Exit(2)
	}

	log := zerolog.Nop()
	if *flagVerbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	opts := config.Options{}
	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "sombractl: load config:", err)
			os.Exit(1)
		}
		opts = loaded
	}

	paths := sombra.Paths{Data: *flagData, WAL: *flagWAL, Lock: *flagLock}
	db, err := sombra.Open(paths, opts, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sombractl: open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch args[0] {
	case "stats":
		runStats(db)
	case "verify":
		runVerify(db, *flagLevel)
	case "vacuum":
		runVacuum(db, *flagInto, opts)
	case "checkpoint":
		runCheckpoint(db)
	default:
		usage()
		os.Exit(2)
	}
}

func runStats(db *sombra.DB) {
	s := db.Stats()
	fmt.Printf("cached_pages=%d wal_frames=%d wal_bytes=%d wal_syncs=%d durable_lsn=%d free_pages=%d\n",
		s.CachedPages, s.WALFrames, s.WALBytes, s.WALSyncs, s.DurableLSN, s.FreePages)
}

func runVerify(db *sombra.DB, levelFlag string) {
	var level sombra.VerifyLevel
	switch levelFlag {
	case "quick":
		level = sombra.VerifyQuick
	case "thorough":
		level = sombra.VerifyThorough
	default:
		fmt.Fprintln(os.Stderr, "sombractl: unknown -level, want quick or thorough")
		os.Exit(2)
	}
	if err := db.Verify(level); err != nil {
		fmt.Fprintln(os.Stderr, "sombractl: verify failed:", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func runVacuum(db *sombra.DB, into string, opts config.Options) {
	if into == "" {
		fmt.Fprintln(os.Stderr, "sombractl: vacuum requires -into")
		os.Exit(2)
	}
	dest := sombra.Paths{Data: into, WAL: into + ".wal", Lock: into + ".lock"}
	if err := db.Vacuum(dest, opts); err != nil {
		fmt.Fprintln(os.Stderr, "sombractl: vacuum failed:", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func runCheckpoint(db *sombra.DB) {
	if err := db.Checkpoint(pager.CheckpointForce); err != nil {
		fmt.Fprintln(os.Stderr, "sombractl: checkpoint failed:", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}
