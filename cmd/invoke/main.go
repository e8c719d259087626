// Package main invokes one function on a deployed token contract:
// build, sign, submit, and wait for the final outcome.
//
// Arguments are typed, one per positional argument:
//
//	invoke --contract-id C... --function mint addr:G... i128:5000000
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stellar-token-lab/internal/envelope"
	"stellar-token-lab/internal/signer"
	"stellar-token-lab/internal/stellar"
	"stellar-token-lab/internal/token"
)

// Network passphrase aliases.
var networkAliases = map[string]string{
	"testnet": "Test SDF Network ; September 2015",
	"mainnet": "Public Global Stellar Network ; September 2015",
}

// seedEnvVar holds the hex-encoded 32-byte ed25519 seed of the local
// signing key.
const seedEnvVar = "DEPLOYER_SEED"

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("STELLAR_RPC_ENDPOINT"), "Stellar RPC HTTP endpoint")
	network := flag.String("network", envOr("STELLAR_NETWORK", "testnet"), "Network alias (testnet, mainnet) or a full passphrase")
	agentEndpoint := flag.String("agent-endpoint", os.Getenv("AGENT_ENDPOINT"), "Wallet agent WebSocket endpoint (local key when empty)")
	sourceAccount := flag.String("source", "", "Source account (defaults to the local signing key's address)")
	contractID := flag.String("contract-id", "", "Target contract ID (C...)")
	function := flag.String("function", "", "Contract function to invoke")
	fee := flag.Uint("fee", 0, "Fee override in stroops (0 uses the estimate)")
	pollInterval := flag.Duration("poll-interval", time.Second, "Interval between outcome polls")
	maxPolls := flag.Int("max-polls", 30, "Maximum outcome polls before giving up")

	flag.Parse()

	logger := log.New(os.Stdout, "[invoke] ", log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	passphrase := *network
	if full, ok := networkAliases[passphrase]; ok {
		passphrase = full
	}

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *contractID == "" || *function == "" {
		logger.Fatal("--contract-id and --function are required")
	}

	args, err := parseArgs(flag.Args())
	if err != nil {
		logger.Fatalf("Error: %v", err)
	}

	if err := run(ctx, logger, *rpcEndpoint, passphrase, *agentEndpoint, *sourceAccount,
		*contractID, *function, args, uint32(*fee), *pollInterval, *maxPolls); err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, rpcEndpoint, passphrase, agentEndpoint, sourceAccount,
	contractID, function string, args []envelope.SCVal, fee uint32, pollInterval time.Duration, maxPolls int) error {

	sgn, source, err := buildSigner(ctx, agentEndpoint, sourceAccount)
	if err != nil {
		return err
	}
	if closer, ok := sgn.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	client := stellar.NewHTTPClient(rpcEndpoint)
	builder := envelope.NewBuilder(passphrase)

	seq, err := client.GetAccountSequence(ctx, source)
	if err != nil {
		return fmt.Errorf("fetch account sequence: %w", err)
	}

	env, err := builder.Build(envelope.Invoke{
		ContractID: contractID,
		Function:   function,
		Args:       args,
	}, source, seq+1)
	if err != nil {
		return err
	}
	if fee > 0 {
		env = env.WithFee(fee)
	}

	signed, err := sgn.Sign(ctx, signer.Request{
		Envelope:          env.Bytes(),
		NetworkPassphrase: passphrase,
		Description:       fmt.Sprintf("%s on %s", function, contractID),
	})
	if err != nil {
		return fmt.Errorf("sign envelope: %w", err)
	}

	hash := env.Hash()
	txHash := hex.EncodeToString(hash[:])
	logger.Printf("Submitting %s (fee=%d, tx=%s)", function, env.Fee, txHash)

	res, err := client.SubmitTransaction(ctx, signed)
	if err != nil {
		return fmt.Errorf("submit: %w (check tx %s before retrying)", err, txHash)
	}
	if res.Status == stellar.TxStatusFailed {
		return fmt.Errorf("rejected: %s", res.ErrorCode)
	}

	for poll := 1; poll <= maxPolls; poll++ {
		final, err := client.GetTransaction(ctx, txHash)
		if err == nil {
			switch final.Status {
			case stellar.TxStatusSuccess:
				logger.Printf("Confirmed in ledger %d", final.Ledger)
				if final.ReturnValue != "" {
					logger.Printf("Return value: %s", final.ReturnValue)
				}
				return nil
			case stellar.TxStatusFailed:
				return fmt.Errorf("failed: %s %s", final.ErrorCode, final.ErrorDetail)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return fmt.Errorf("no definitive outcome after %d polls (tx %s)", maxPolls, txHash)
}

func buildSigner(ctx context.Context, agentEndpoint, sourceAccount string) (signer.Signer, string, error) {
	if agentEndpoint != "" {
		if sourceAccount == "" {
			return nil, "", fmt.Errorf("--source is required with --agent-endpoint")
		}
		agent, err := signer.NewAgentSigner(ctx, agentEndpoint, nil)
		if err != nil {
			return nil, "", fmt.Errorf("connect to wallet agent: %w", err)
		}
		return agent, sourceAccount, nil
	}

	seedHex := os.Getenv(seedEnvVar)
	if seedHex == "" {
		return nil, "", fmt.Errorf("%s is not set (or use --agent-endpoint)", seedEnvVar)
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, "", fmt.Errorf("%s must be a hex-encoded %d-byte seed", seedEnvVar, ed25519.SeedSize)
	}
	local, err := signer.NewLocalSigner(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		return nil, "", err
	}
	source := sourceAccount
	if source == "" {
		source = local.Address()
	}
	return local, source, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseArgs converts type:value positional arguments into contract call
// values. Supported types: addr, str, u32, i128, bool, void.
func parseArgs(raw []string) ([]envelope.SCVal, error) {
	args := make([]envelope.SCVal, 0, len(raw))
	for _, arg := range raw {
		if arg == "void" {
			args = append(args, envelope.VoidVal())
			continue
		}
		typ, value, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("argument %q: want type:value", arg)
		}
		switch typ {
		case "addr":
			args = append(args, envelope.AddressVal(value))
		case "str":
			args = append(args, envelope.StringVal(value))
		case "u32":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", arg, err)
			}
			args = append(args, envelope.U32Val(uint32(v)))
		case "i128":
			amt, err := token.ParseAmount(value)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", arg, err)
			}
			args = append(args, envelope.I128Val(amt))
		case "bool":
			v, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", arg, err)
			}
			args = append(args, envelope.BoolVal(v))
		default:
			return nil, fmt.Errorf("argument %q: unknown type %q", arg, typ)
		}
	}
	return args, nil
}
