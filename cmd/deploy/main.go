// Package main deploys a SEP-41 token contract: upload → create →
// initialize, with optional initial mint. Sessions are durable, so an
// interrupted deployment can be resumed with --resume.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stellar-token-lab/internal/deploy"
	"stellar-token-lab/internal/domain"
	"stellar-token-lab/internal/observability"
	"stellar-token-lab/internal/signer"
	"stellar-token-lab/internal/stellar"
	"stellar-token-lab/internal/stellar/sandbox"
	"stellar-token-lab/internal/storage"
	chstore "stellar-token-lab/internal/storage/clickhouse"
	"stellar-token-lab/internal/storage/memory"
	"stellar-token-lab/internal/storage/migrations"
	pgstore "stellar-token-lab/internal/storage/postgres"
	"stellar-token-lab/internal/token"
)

// Network passphrase aliases.
var networkAliases = map[string]string{
	"testnet": "Test SDF Network ; September 2015",
	"mainnet": "Public Global Stellar Network ; September 2015",
}

// seedEnvVar holds the hex-encoded 32-byte ed25519 seed of the local
// signing key. Kept out of flags so it never lands in shell history.
const seedEnvVar = "DEPLOYER_SEED"

func main() {
	// Load .env file if present
	loadEnvFile()

	// Parse flags
	resumeID := flag.String("resume", "", "Resume an interrupted session by ID")
	abandonID := flag.String("abandon", "", "Abandon an interrupted session by ID")
	list := flag.Bool("list", false, "List unfinished sessions and exit")

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("STELLAR_RPC_ENDPOINT"), "Stellar RPC HTTP endpoint")
	sandboxMode := flag.Bool("sandbox", false, "Run against an in-process sandbox instead of a network")
	network := flag.String("network", envOr("STELLAR_NETWORK", "testnet"), "Network alias (testnet, mainnet) or a full passphrase")
	agentEndpoint := flag.String("agent-endpoint", os.Getenv("AGENT_ENDPOINT"), "Wallet agent WebSocket endpoint (local key when empty)")
	sourceAccount := flag.String("source", "", "Source account (defaults to the local signing key's address)")

	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for session storage")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the submission audit log")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	wasmPath := flag.String("wasm", "", "Path to the token contract wasm")
	saltHex := flag.String("salt", "", "32-byte hex salt for contract ID derivation (random when empty)")
	name := flag.String("name", "", "Token name")
	symbol := flag.String("symbol", "", "Token symbol")
	decimals := flag.Uint("decimals", 7, "Token decimals")
	admin := flag.String("admin", "", "Token admin account (defaults to the source account)")
	mintable := flag.Bool("mintable", true, "Allow the admin to mint")
	burnable := flag.Bool("burnable", true, "Allow holders to burn")
	freezable := flag.Bool("freezable", false, "Allow the admin to freeze accounts")
	fixedSupply := flag.Bool("fixed-supply", false, "Cap total supply at --max-supply")
	maxSupply := flag.String("max-supply", "", "Maximum total supply (required with --fixed-supply)")
	initialMint := flag.String("initial-mint", "", "Amount to mint after initialization")
	initialMintTo := flag.String("initial-mint-to", "", "Recipient of the initial mint (defaults to the admin)")

	maxAttempts := flag.Int("max-attempts", deploy.DefaultMaxAttempts, "Submission attempts per step")
	stepTimeout := flag.Duration("step-timeout", deploy.DefaultStepTimeout, "Per-step timeout")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	verbose := flag.Bool("verbose", false, "Verbose output")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[deploy] ", log.LstdFlags)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	passphrase := *network
	if full, ok := networkAliases[passphrase]; ok {
		passphrase = full
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	if err := run(ctx, logger, runOptions{
		resumeID:      *resumeID,
		abandonID:     *abandonID,
		list:          *list,
		rpcEndpoint:   *rpcEndpoint,
		sandboxMode:   *sandboxMode,
		passphrase:    passphrase,
		agentEndpoint: *agentEndpoint,
		sourceAccount: *sourceAccount,
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		useMemory:     *useMemory,
		wasmPath:      *wasmPath,
		saltHex:       *saltHex,
		name:          *name,
		symbol:        *symbol,
		decimals:      uint32(*decimals),
		admin:         *admin,
		mintable:      *mintable,
		burnable:      *burnable,
		freezable:     *freezable,
		fixedSupply:   *fixedSupply,
		maxSupply:     *maxSupply,
		initialMint:   *initialMint,
		initialMintTo: *initialMintTo,
		maxAttempts:   *maxAttempts,
		stepTimeout:   *stepTimeout,
		verbose:       *verbose,
	}); err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}
}

type runOptions struct {
	resumeID, abandonID string
	list                bool

	rpcEndpoint   string
	sandboxMode   bool
	passphrase    string
	agentEndpoint string
	sourceAccount string

	postgresDSN   string
	clickhouseDSN string
	useMemory     bool

	wasmPath string
	saltHex  string
	name     string
	symbol   string
	decimals uint32
	admin    string

	mintable, burnable, freezable, fixedSupply bool

	maxSupply     string
	initialMint   string
	initialMintTo string

	maxAttempts int
	stepTimeout time.Duration
	verbose     bool
}

func run(ctx context.Context, logger *log.Logger, opts runOptions) error {
	// Signing key and source account
	sgn, source, err := buildSigner(ctx, opts)
	if err != nil {
		return err
	}
	if closer, ok := sgn.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// Network client
	var client stellar.Client
	if opts.sandboxMode {
		sb := sandbox.New(opts.passphrase)
		sb.FundAccount(source)
		client = sb
		logger.Println("Running against in-process sandbox")
	} else {
		if opts.rpcEndpoint == "" {
			return fmt.Errorf("--rpc-endpoint is required (or use --sandbox)")
		}
		client = stellar.NewHTTPClient(opts.rpcEndpoint)
	}

	// Stores
	var sessions storage.SessionStore = memory.NewSessionStore()
	var submissions storage.SubmissionLogStore

	if !opts.useMemory && !opts.sandboxMode {
		if opts.postgresDSN == "" {
			return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
		}
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
		sessions = pgstore.NewSessionStore(pool)
	}
	if opts.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		submissions = chstore.NewSubmissionLogStore(conn)
	}

	coord, err := deploy.New(deploy.Options{
		Client:            client,
		Signer:            sgn,
		Sessions:          sessions,
		Submissions:       submissions,
		NetworkPassphrase: opts.passphrase,
		MaxAttempts:       opts.maxAttempts,
		StepTimeout:       opts.stepTimeout,
		Verbose:           opts.verbose,
	})
	if err != nil {
		return err
	}

	switch {
	case opts.list:
		return listSessions(ctx, logger, sessions)
	case opts.abandonID != "":
		if err := coord.Abandon(ctx, opts.abandonID); err != nil {
			return err
		}
		logger.Printf("Session %s abandoned", opts.abandonID)
		return nil
	case opts.resumeID != "":
		req, err := buildRequest(opts, source)
		if err != nil {
			return err
		}
		sess, err := coord.Resume(ctx, opts.resumeID, req)
		return report(logger, sess, err)
	default:
		req, err := buildRequest(opts, source)
		if err != nil {
			return err
		}
		sess, err := coord.Deploy(ctx, req)
		return report(logger, sess, err)
	}
}

// buildSigner picks between the wallet agent and a local ed25519 key. In
// sandbox mode a missing seed gets an ephemeral key.
func buildSigner(ctx context.Context, opts runOptions) (signer.Signer, string, error) {
	if opts.agentEndpoint != "" {
		if opts.sourceAccount == "" {
			return nil, "", fmt.Errorf("--source is required with --agent-endpoint")
		}
		agent, err := signer.NewAgentSigner(ctx, opts.agentEndpoint, nil)
		if err != nil {
			return nil, "", fmt.Errorf("connect to wallet agent: %w", err)
		}
		return agent, opts.sourceAccount, nil
	}

	seedHex := os.Getenv(seedEnvVar)
	var seed []byte
	switch {
	case seedHex != "":
		var err error
		seed, err = hex.DecodeString(seedHex)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, "", fmt.Errorf("%s must be a hex-encoded %d-byte seed", seedEnvVar, ed25519.SeedSize)
		}
	case opts.sandboxMode:
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, "", err
		}
	default:
		return nil, "", fmt.Errorf("%s is not set (or use --agent-endpoint)", seedEnvVar)
	}

	local, err := signer.NewLocalSigner(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		return nil, "", err
	}
	source := opts.sourceAccount
	if source == "" {
		source = local.Address()
	}
	return local, source, nil
}

// buildRequest assembles the deployment request from flags.
func buildRequest(opts runOptions, source string) (deploy.Request, error) {
	var req deploy.Request

	if opts.wasmPath == "" {
		return req, fmt.Errorf("--wasm is required")
	}
	wasm, err := os.ReadFile(opts.wasmPath)
	if err != nil {
		return req, fmt.Errorf("read wasm: %w", err)
	}

	var salt [32]byte
	if opts.saltHex != "" {
		raw, err := hex.DecodeString(opts.saltHex)
		if err != nil || len(raw) != len(salt) {
			return req, fmt.Errorf("--salt must be %d hex-encoded bytes", len(salt))
		}
		copy(salt[:], raw)
	} else {
		if _, err := rand.Read(salt[:]); err != nil {
			return req, err
		}
	}

	cfg := token.Config{
		Mintable:    opts.mintable,
		Burnable:    opts.burnable,
		Freezable:   opts.freezable,
		FixedSupply: opts.fixedSupply,
	}
	if opts.maxSupply != "" {
		ms, err := token.ParseAmount(opts.maxSupply)
		if err != nil {
			return req, fmt.Errorf("parse --max-supply: %w", err)
		}
		cfg.MaxSupply = &ms
	}

	req = deploy.Request{
		SourceAccount: source,
		Wasm:          wasm,
		Salt:          salt,
		Admin:         opts.admin,
		Name:          opts.name,
		Symbol:        opts.symbol,
		Decimals:      opts.decimals,
		Config:        cfg,
		InitialMintTo: opts.initialMintTo,
	}
	if opts.initialMint != "" {
		amt, err := token.ParseAmount(opts.initialMint)
		if err != nil {
			return req, fmt.Errorf("parse --initial-mint: %w", err)
		}
		req.InitialMint = amt
	}
	return req, nil
}

// report prints the final session state. Indeterminate outcomes leave the
// session resumable, so the session ID is printed even on error.
func report(logger *log.Logger, sess *domain.Session, err error) error {
	if sess != nil {
		logger.Printf("Session %s: status=%s", sess.ID, sess.Status)
		for _, step := range sess.Steps {
			logger.Printf("  %s: tx %s", step.Step, step.TxHash)
		}
		if sess.ContractID != "" {
			logger.Printf("Contract ID: %s", sess.ContractID)
		}
		if err != nil && !sess.Terminal() {
			logger.Printf("Deployment interrupted; resume with --resume %s", sess.ID)
		}
	}
	return err
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func listSessions(ctx context.Context, logger *log.Logger, sessions storage.SessionStore) error {
	list, err := sessions.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		logger.Println("No unfinished sessions")
		return nil
	}
	for _, sess := range list {
		logger.Printf("%s  status=%-16s  source=%s  updated=%s",
			sess.ID, sess.Status, sess.SourceAccount, sess.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
