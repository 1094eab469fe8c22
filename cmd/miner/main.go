package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/danielpatrickdp/scenario-miner/internal/codec"
	"github.com/danielpatrickdp/scenario-miner/internal/config"
	"github.com/danielpatrickdp/scenario-miner/internal/logging"
	"github.com/danielpatrickdp/scenario-miner/internal/metrics"
	"github.com/danielpatrickdp/scenario-miner/internal/miner"
	"github.com/danielpatrickdp/scenario-miner/internal/outcomes"
	"github.com/danielpatrickdp/scenario-miner/internal/source"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
)

// #region main

func main() {
	_ = godotenv.Load()

	cfg := config.DefaultMining()
	flag.StringVar(&cfg.Scout, "scout", cfg.Scout, "backend model id of the scout")
	flag.StringVar(&cfg.OutputName, "output-name", cfg.OutputName, "store suffix: index_<name>.jsonl, logs_<name>.jsonl")
	flag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory for the index and log stores")
	flag.IntVar(&cfg.Limit, "limit", cfg.Limit, "process at most N records (0 = all)")
	flag.IntVar(&cfg.FramesPerScene, "frames-per-scene", cfg.FramesPerScene, "sample k evenly spaced frames per scene (0 = every sample)")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent records")
	flag.StringVar(&cfg.OutcomesDB, "outcomes-db", cfg.OutcomesDB, "optional sqlite path for attempt telemetry")
	flag.StringVar(&cfg.LockRedis, "lock-redis", cfg.LockRedis, "optional redis addr for the store lock")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this addr")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "usage: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	os.Exit(run(cfg, *metricsAddr))
}

// #endregion main

// #region run

func run(cfg config.Mining, metricsAddr string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Dataset
	dataset, err := source.Open(source.DefaultConfig())
	if err != nil {
		log.Printf("[MINER] %v", err)
		return 1
	}
	ids := dataset.IDs()
	if cfg.FramesPerScene > 0 {
		ids = dataset.SparseIDs(cfg.FramesPerScene)
	}

	// 2. Backend
	codecCfg := codec.DefaultConfig()
	reasoner, err := codec.NewClient(codecCfg.ReasonerAddr)
	if err != nil {
		log.Printf("[MINER] connect reasoner %s: %v", codecCfg.ReasonerAddr, err)
		return 1
	}
	defer reasoner.Close()
	reasoner.WithCallTimeout(codecCfg.CallTimeout)
	if err := reasoner.Health(ctx, codecCfg.HealthTimeout); err != nil {
		log.Printf("[MINER] backend %s unreachable: %v", codecCfg.ReasonerAddr, err)
		return 1
	}
	detector := reasoner
	if addr := codecCfg.Detector(); addr != codecCfg.ReasonerAddr {
		detector, err = codec.NewClient(addr)
		if err != nil {
			log.Printf("[MINER] connect detector %s: %v", addr, err)
			return 1
		}
		defer detector.Close()
		detector.WithCallTimeout(codecCfg.CallTimeout)
	}

	// 3. Stores
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Printf("[MINER] create output dir: %v", err)
		return 1
	}
	release, err := store.LockStore(ctx, cfg.LockRedis, cfg.IndexPath())
	if err != nil {
		log.Printf("[MINER] %v", err)
		return 1
	}
	defer release()

	ledger, err := store.Load(cfg.IndexPath())
	if err != nil {
		log.Printf("[MINER] %v", err)
		return 1
	}
	index, err := store.OpenAppender(cfg.IndexPath())
	if err != nil {
		log.Printf("[MINER] %v", err)
		return 1
	}
	defer index.Close()
	logStore, err := store.OpenAppender(cfg.LogPath())
	if err != nil {
		log.Printf("[MINER] %v", err)
		return 1
	}
	defer logStore.Close()

	deps := miner.Deps{
		Source:   dataset,
		Detector: detector,
		Reasoner: reasoner,
		Index:    index,
		Log:      logStore,
		Ledger:   ledger,
		RunID:    logging.NewRunID(),
	}
	if cfg.OutcomesDB != "" {
		db, err := outcomes.Open(cfg.OutcomesDB)
		if err != nil {
			log.Printf("[MINER] %v", err)
			return 1
		}
		defer db.Close()
		deps.Outcomes = db
	}
	if metricsAddr != "" {
		deps.Metrics = metrics.New()
		go func() {
			if err := deps.Metrics.Serve(ctx, metricsAddr); err != nil {
				log.Printf("[MINER] metrics server: %v", err)
			}
		}()
	}

	// 4. Run
	log.Printf("[MINER] scout=%s output=%s index=%s", cfg.Scout, cfg.OutputName, cfg.IndexPath())
	sum, err := miner.NewWorker(cfg, deps).Run(ctx, ids)
	fmt.Println(sum.String())
	if err != nil && !miner.IsCancelled(err) {
		log.Printf("[MINER] run: %v", err)
		return 1
	}
	return 0
}

// #endregion run
