package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hotwings/api"
	"hotwings/config"
	"hotwings/service"
	"hotwings/store"
	"hotwings/token"
	"hotwings/vesting"
)

// dryRunSupply seeds the source and liquidity wallets of the in-memory bank
const dryRunSupply uint64 = 1_000_000_000_000

var (
	configPath string
	dryRun     bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hotwings",
	Short: "Presale lock and milestone vesting ledger",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dry-run") {
			cfg.DryRun = dryRun
		}
		logger, err = newLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the persisted lock pool state",
	RunE:  runState,
}

var pdaCmd = &cobra.Command{
	Use:   "pda",
	Short: "Print the lock pool PDA for the configured program and mint",
	RunE:  runPDA,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "use an in-memory token bank instead of the cluster")
	rootCmd.AddCommand(serveCmd, stateCmd, pdaCmd)
}

func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}

// newTokenService returns the bank in dry-run mode, the cluster adapter otherwise
func newTokenService(ctx context.Context, ledgerCfg vesting.Config) (token.Service, func(), error) {
	if cfg.DryRun {
		bank := token.NewBank()
		bank.Mint(ledgerCfg.Source, dryRunSupply)
		bank.Mint(ledgerCfg.Liquidity, dryRunSupply)
		logger.Warn("dry run: token movements are simulated in memory")
		return bank, func() {}, nil
	}

	if cfg.Payer == "" {
		return nil, nil, errors.New("payer keypair is required")
	}
	payer, err := config.LoadKey(cfg.Payer)
	if err != nil {
		return nil, nil, err
	}
	keys, err := cfg.LoadKeys()
	if err != nil {
		return nil, nil, err
	}
	rpcCfg := token.RPCConfig{
		RPCURL:  cfg.RPCURL,
		WSURL:   cfg.WSURL,
		Mint:    ledgerCfg.Mint,
		Payer:   payer,
		Custody: map[solana.PublicKey]token.Custody{},
	}
	for _, k := range keys {
		rpcCfg.Keys = append(rpcCfg.Keys, k)
	}
	if cfg.PoolAuthority != "" {
		authority, err := config.LoadKey(cfg.PoolAuthority)
		if err != nil {
			return nil, nil, err
		}
		pool, _, err := vesting.DerivePoolPDA(ledgerCfg.ProgramID, ledgerCfg.Mint)
		if err != nil {
			return nil, nil, err
		}
		custody := token.Custody{Authority: authority}
		if cfg.PoolTokenAccount != "" {
			custody.TokenAccount = solana.MustPublicKeyFromBase58(cfg.PoolTokenAccount)
		} else if custody.TokenAccount, _, err = solana.FindAssociatedTokenAddress(authority.PublicKey(), ledgerCfg.Mint); err != nil {
			return nil, nil, err
		}
		rpcCfg.Custody[pool] = custody
	}

	client, err := token.NewRPC(ctx, rpcCfg, logger.Named("rpc"))
	if err != nil {
		return nil, nil, err
	}
	if err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("solana health check failed: %w", err)
	}
	return client, client.Close, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledgerCfg := cfg.LedgerConfig()
	tokens, closeTokens, err := newTokenService(ctx, ledgerCfg)
	if err != nil {
		return err
	}
	defer closeTokens()

	ledger, err := vesting.NewLedger(ledgerCfg, tokens, vesting.SystemClock, logger.Named("ledger"))
	if err != nil {
		return err
	}
	hook := vesting.NewTaxHook(ledger, cfg.TaxConfig(), logger.Named("taxhook"))

	repo, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc, err := service.New(ctx, ledger, hook, repo, logger.Named("service"))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	api.NewHandler(svc, logger.Named("api")).Routes(mux)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("listen", cfg.Listen),
			zap.Stringer("program", ledgerCfg.ProgramID),
			zap.Stringer("pool", ledger.Pool()),
			zap.Bool("dry_run", cfg.DryRun))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func runState(cmd *cobra.Command, args []string) error {
	repo, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	st, err := repo.Load(cmd.Context(), cfg.LedgerConfig().ProgramID)
	if errors.Is(err, store.ErrNotFound) {
		st = vesting.NewLedgerState()
	} else if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func runPDA(cmd *cobra.Command, args []string) error {
	lc := cfg.LedgerConfig()
	pool, bump, err := vesting.DerivePoolPDA(lc.ProgramID, lc.Mint)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pool: %s\nbump: %d\n", pool, bump)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
