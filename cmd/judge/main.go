package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/danielpatrickdp/scenario-miner/internal/codec"
	"github.com/danielpatrickdp/scenario-miner/internal/config"
	"github.com/danielpatrickdp/scenario-miner/internal/judge"
	"github.com/danielpatrickdp/scenario-miner/internal/logging"
	"github.com/danielpatrickdp/scenario-miner/internal/metrics"
	"github.com/danielpatrickdp/scenario-miner/internal/outcomes"
	"github.com/danielpatrickdp/scenario-miner/internal/store"
	"github.com/danielpatrickdp/scenario-miner/internal/verifier"
)

// #region flags

// fileList accepts repeated or comma-separated -files values.
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*f = append(*f, p)
		}
	}
	return nil
}

// parseArgs runs flag.Parse and treats bare arguments as more scout files, so
// "-files a.jsonl b.jsonl -output out.jsonl" works like the shell form suggests.
func parseArgs(files *fileList) {
	flag.Parse()
	for args := flag.Args(); len(args) > 0; args = flag.Args() {
		i := 0
		for i < len(args) && !strings.HasPrefix(args[i], "-") {
			*files = append(*files, args[i])
			i++
		}
		if i < len(args) && args[i] == "--" {
			*files = append(*files, args[i+1:]...)
			return
		}
		flag.CommandLine.Parse(args[i:])
	}
}

// #endregion flags

// #region main

func main() {
	_ = godotenv.Load()

	cfg := config.DefaultJudge()
	var files fileList
	flag.Var(&files, "files", "scout index stores (repeatable, comma-separated, or bare args)")
	flag.StringVar(&cfg.Output, "output", cfg.Output, "consensus store path")
	flag.IntVar(&cfg.N, "n", cfg.N, "best-of-N candidates per record")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "backend model id of the judge")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent records")
	flag.Float64Var(&cfg.RPS, "rps", cfg.RPS, "synthesis requests per second (0 = unlimited)")
	flag.StringVar(&cfg.OutcomesDB, "outcomes-db", cfg.OutcomesDB, "optional sqlite path for decision telemetry")
	flag.StringVar(&cfg.LockRedis, "lock-redis", cfg.LockRedis, "optional redis addr for the store lock")
	weightsPath := flag.String("verifier-config", "", "YAML file overriding verifier weights")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this addr")
	parseArgs(&files)
	cfg.Files = files

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "usage: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	weights := verifier.DefaultWeights()
	if *weightsPath != "" {
		w, err := verifier.LoadWeights(*weightsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "usage: %v\n", err)
			os.Exit(2)
		}
		weights = w
	}
	os.Exit(run(cfg, weights, *metricsAddr))
}

// #endregion main

// #region run

func run(cfg config.Judge, weights verifier.Weights, metricsAddr string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scouts, err := judge.LoadScouts(cfg.Files)
	if err != nil {
		log.Printf("[JUDGE] %v", err)
		return 1
	}

	codecCfg := codec.DefaultConfig()
	client, err := codec.NewClient(codecCfg.ReasonerAddr)
	if err != nil {
		log.Printf("[JUDGE] connect %s: %v", codecCfg.ReasonerAddr, err)
		return 1
	}
	defer client.Close()
	client.WithCallTimeout(codecCfg.CallTimeout)
	if err := client.Health(ctx, codecCfg.HealthTimeout); err != nil {
		log.Printf("[JUDGE] backend %s unreachable: %v", codecCfg.ReasonerAddr, err)
		return 1
	}

	if dir := filepath.Dir(cfg.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("[JUDGE] create output dir: %v", err)
			return 1
		}
	}
	release, err := store.LockStore(ctx, cfg.LockRedis, cfg.Output)
	if err != nil {
		log.Printf("[JUDGE] %v", err)
		return 1
	}
	defer release()

	ledger, err := store.Load(cfg.Output)
	if err != nil {
		log.Printf("[JUDGE] %v", err)
		return 1
	}
	out, err := store.OpenAppender(cfg.Output)
	if err != nil {
		log.Printf("[JUDGE] %v", err)
		return 1
	}
	defer out.Close()

	deps := judge.Deps{
		Reasoner: client,
		Scorer:   verifier.New(weights),
		Output:   out,
		Ledger:   ledger,
		RunID:    logging.NewRunID(),
	}
	if cfg.OutcomesDB != "" {
		db, err := outcomes.Open(cfg.OutcomesDB)
		if err != nil {
			log.Printf("[JUDGE] %v", err)
			return 1
		}
		defer db.Close()
		deps.Decisions = db
	}
	if metricsAddr != "" {
		deps.Metrics = metrics.New()
		go func() {
			if err := deps.Metrics.Serve(ctx, metricsAddr); err != nil {
				log.Printf("[JUDGE] metrics server: %v", err)
			}
		}()
	}

	log.Printf("[JUDGE] %d scout stores -> %s", len(cfg.Files), cfg.Output)
	sum, err := judge.New(cfg, deps).Run(ctx, scouts)
	fmt.Println(sum.String())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[JUDGE] run: %v", err)
		return 1
	}
	return 0
}

// #endregion run
