// Package deploy coordinates token deployments: it drives the
// upload → create → initialize pipeline, gets every envelope signed,
// submits with bounded retries, and keeps a durable session so an
// interrupted deployment can be resumed without re-running completed
// steps or double-submitting an in-flight transaction.
package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"stellar-token-lab/internal/domain"
	"stellar-token-lab/internal/envelope"
	"stellar-token-lab/internal/observability"
	"stellar-token-lab/internal/signer"
	"stellar-token-lab/internal/stellar"
	"stellar-token-lab/internal/storage"
	"stellar-token-lab/internal/strkey"
	"stellar-token-lab/internal/token"
)

// Default coordinator configuration.
const (
	DefaultMaxAttempts  = 3
	DefaultStepTimeout  = 120 * time.Second
	MinStepTimeout      = 30 * time.Second
	MaxStepTimeout      = 300 * time.Second
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxPolls     = 60
)

// Request describes one token deployment.
type Request struct {
	SourceAccount string
	Wasm          []byte
	Salt          [32]byte

	// Token initialization parameters. Admin defaults to SourceAccount.
	Admin    string
	Name     string
	Symbol   string
	Decimals uint32
	Config   token.Config

	// InitialMint, when positive, mints a starting balance to
	// InitialMintTo (defaulting to the admin) after initialization.
	InitialMint   token.Amount
	InitialMintTo string
}

// Options for creating a Coordinator.
type Options struct {
	// Required dependencies
	Client   stellar.Client
	Signer   signer.Signer
	Sessions storage.SessionStore

	// NetworkPassphrase binds every envelope and signature to one network.
	NetworkPassphrase string

	// Optional: append-only audit log of every submission attempt.
	Submissions storage.SubmissionLogStore

	// Optional: defaults to the process-wide metrics instance.
	Metrics *observability.Metrics

	// Retry policy
	MaxAttempts  int
	StepTimeout  time.Duration
	RetryDelay   time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	MaxPolls     int

	Verbose bool
}

// Coordinator drives deployment sessions through the pipeline.
type Coordinator struct {
	client      stellar.Client
	signer      signer.Signer
	sessions    storage.SessionStore
	submissions storage.SubmissionLogStore
	metrics     *observability.Metrics
	builder     *envelope.Builder
	passphrase  string

	maxAttempts  int
	stepTimeout  time.Duration
	retryDelay   time.Duration
	maxDelay     time.Duration
	pollInterval time.Duration
	maxPolls     int
	verbose      bool

	now func() time.Time
}

// New creates a Coordinator. Missing retry options get defaults; the
// step timeout is clamped to [30s, 300s].
func New(opts Options) (*Coordinator, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("deploy: Client is required")
	}
	if opts.Signer == nil {
		return nil, fmt.Errorf("deploy: Signer is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("deploy: Sessions store is required")
	}
	if opts.NetworkPassphrase == "" {
		return nil, fmt.Errorf("deploy: NetworkPassphrase is required")
	}

	c := &Coordinator{
		client:       opts.Client,
		signer:       opts.Signer,
		sessions:     opts.Sessions,
		submissions:  opts.Submissions,
		metrics:      opts.Metrics,
		builder:      envelope.NewBuilder(opts.NetworkPassphrase),
		passphrase:   opts.NetworkPassphrase,
		maxAttempts:  opts.MaxAttempts,
		stepTimeout:  opts.StepTimeout,
		retryDelay:   opts.RetryDelay,
		maxDelay:     opts.MaxDelay,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		verbose:      opts.Verbose,
		now:          time.Now,
	}

	if c.metrics == nil {
		c.metrics = observability.DefaultMetrics
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.stepTimeout == 0 {
		c.stepTimeout = DefaultStepTimeout
	}
	if c.stepTimeout < MinStepTimeout {
		c.stepTimeout = MinStepTimeout
	}
	if c.stepTimeout > MaxStepTimeout {
		c.stepTimeout = MaxStepTimeout
	}
	if c.retryDelay <= 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.maxDelay <= 0 {
		c.maxDelay = DefaultMaxDelay
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.maxPolls <= 0 {
		c.maxPolls = DefaultMaxPolls
	}

	return c, nil
}

// Deploy creates a new session and runs the pipeline to completion.
// On failure the session is persisted with its failure step and reason;
// on an indeterminate outcome it keeps the pending transaction hash so
// Resume can settle it.
func (c *Coordinator) Deploy(ctx context.Context, req Request) (*domain.Session, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	id, err := NewSessionID()
	if err != nil {
		return nil, err
	}

	now := c.now()
	sess := &domain.Session{
		ID:                id,
		SourceAccount:     req.SourceAccount,
		NetworkPassphrase: c.passphrase,
		Status:            domain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := c.sessions.Insert(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	c.metrics.DeploymentsStarted.Inc()
	c.logf("session %s: deployment started (source=%s)", sess.ID, sess.SourceAccount)

	return sess, c.run(ctx, sess, &req)
}

// Resume reloads a session and re-enters the pipeline at the first
// incomplete step. The caller supplies the original request; its wasm
// must hash to the session's recorded wasm hash.
func (c *Coordinator) Resume(ctx context.Context, sessionID string, req Request) (*domain.Session, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	sess, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.Terminal() {
		return sess, fmt.Errorf("resume session %s: %w (%s)", sessionID, ErrSessionTerminal, sess.Status)
	}
	if sess.SourceAccount != req.SourceAccount {
		return sess, fmt.Errorf("resume session %s: %w: source account differs", sessionID, ErrRequestMismatch)
	}
	if sess.WasmHash != "" {
		hash := sha256.Sum256(req.Wasm)
		if hex.EncodeToString(hash[:]) != sess.WasmHash {
			return sess, fmt.Errorf("resume session %s: %w: wasm hash differs", sessionID, ErrRequestMismatch)
		}
	}

	c.metrics.DeploymentsResumed.Inc()
	c.logf("session %s: resuming (status=%s, %d steps done)", sess.ID, sess.Status, len(sess.Steps))

	return sess, c.run(ctx, sess, &req)
}

// Abandon marks a session failed so it is never resumed. It refuses when
// a submitted transaction's outcome is still unknown: the transaction may
// yet land, and abandoning would hide that.
func (c *Coordinator) Abandon(ctx context.Context, sessionID string) error {
	sess, err := c.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if sess.Terminal() {
		return fmt.Errorf("abandon session %s: %w (%s)", sessionID, ErrSessionTerminal, sess.Status)
	}

	if sess.PendingTxHash != "" {
		res, err := c.client.GetTransaction(ctx, sess.PendingTxHash)
		if err != nil {
			return fmt.Errorf("abandon session %s: %w: %v", sessionID, ErrPendingUnresolved, err)
		}
		switch res.Status {
		case stellar.TxStatusSuccess:
			return fmt.Errorf("abandon session %s: %w: pending %s transaction succeeded, resume instead",
				sessionID, ErrPendingUnresolved, sess.PendingStep)
		case stellar.TxStatusPending:
			return fmt.Errorf("abandon session %s: %w: transaction still pending", sessionID, ErrPendingUnresolved)
		}
		// Failed or not found: safe to abandon.
	}

	c.fail(ctx, sess, sess.PendingStep, errors.New("abandoned by operator"))
	return nil
}

// validateRequest checks a deployment request before any session exists.
func validateRequest(req *Request) error {
	if !strkey.IsValidAccount(req.SourceAccount) {
		return fmt.Errorf("deploy: invalid source account %q", req.SourceAccount)
	}
	if len(req.Wasm) == 0 {
		return fmt.Errorf("deploy: empty wasm")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Symbol) == "" {
		return fmt.Errorf("deploy: token name and symbol are required")
	}
	if req.Admin == "" {
		req.Admin = req.SourceAccount
	}
	if !strkey.IsValidAccount(req.Admin) {
		return fmt.Errorf("deploy: invalid admin account %q", req.Admin)
	}
	if req.InitialMint.Sign() < 0 {
		return fmt.Errorf("deploy: negative initial mint")
	}
	if req.InitialMint.Sign() > 0 {
		if req.InitialMintTo == "" {
			req.InitialMintTo = req.Admin
		}
		if !strkey.IsValidAccount(req.InitialMintTo) {
			return fmt.Errorf("deploy: invalid initial mint recipient %q", req.InitialMintTo)
		}
	}
	return nil
}

// run executes every remaining step of the pipeline. Completed steps are
// skipped; the first hard failure marks the session failed and stops.
func (c *Coordinator) run(ctx context.Context, sess *domain.Session, req *Request) error {
	c.metrics.SessionsInFlight.Inc()
	defer c.metrics.SessionsInFlight.Dec()

	wasmHash := sha256.Sum256(req.Wasm)
	contractID := envelope.ContractID(c.passphrase, req.SourceAccount, req.Salt, wasmHash)

	type pipelineStep struct {
		step   domain.Step
		op     envelope.Operation
		status domain.Status // session status once the step confirms
		skip   bool
	}

	steps := []pipelineStep{
		{
			step:   domain.StepUploadWasm,
			op:     envelope.UploadWasm{Wasm: req.Wasm},
			status: domain.StatusUploadDone,
		},
		{
			step:   domain.StepCreateInstance,
			op:     envelope.CreateInstance{WasmHash: wasmHash, Salt: req.Salt},
			status: domain.StatusInstanceCreated,
		},
		{
			step: domain.StepInitialize,
			op: envelope.Invoke{
				ContractID: contractID,
				Function:   "initialize",
				Args:       envelope.InitializeArgs(req.Admin, req.Name, req.Symbol, req.Decimals, req.Config),
			},
			status: domain.StatusInitialized,
		},
		{
			step: domain.StepInitialMint,
			op: envelope.Invoke{
				ContractID: contractID,
				Function:   "mint",
				Args:       envelope.MintArgs(req.InitialMintTo, req.InitialMint),
			},
			status: domain.StatusInitialized,
			skip:   req.InitialMint.Sign() <= 0,
		},
	}

	// With a first mint planned, initialization alone does not finish
	// the session.
	if req.InitialMint.Sign() > 0 {
		steps[2].status = domain.StatusInstanceCreated
	}

	for _, ps := range steps {
		if ps.skip || sess.Completed(ps.step) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stepErr(ps.step, err)
		}

		start := c.now()
		txHash, err := c.runStep(ctx, sess, ps.step, ps.op)
		c.metrics.StepDuration.WithLabelValues(string(ps.step)).Observe(c.now().Sub(start).Seconds())

		if err != nil {
			if errors.Is(err, ErrIndeterminate) {
				// Not failed: the pending hash stays in the session for
				// Resume to settle.
				return stepErr(ps.step, err)
			}
			c.fail(ctx, sess, ps.step, err)
			return stepErr(ps.step, err)
		}

		sess.RecordStep(ps.step, txHash, c.now())
		sess.Status = ps.status
		switch ps.step {
		case domain.StepUploadWasm:
			sess.WasmHash = hex.EncodeToString(wasmHash[:])
		case domain.StepCreateInstance:
			sess.ContractID = contractID
		}
		if err := c.sessions.Update(ctx, sess); err != nil {
			return stepErr(ps.step, fmt.Errorf("persist session: %w", err))
		}

		c.metrics.StepsCompleted.WithLabelValues(string(ps.step)).Inc()
		c.logf("session %s: step %s confirmed (tx=%s)", sess.ID, ps.step, txHash)
	}

	// The loop may run zero steps, e.g. a resume request that drops the
	// initial mint after initialize already confirmed. The session still
	// has to end terminal.
	if sess.Status != domain.StatusInitialized {
		sess.Status = domain.StatusInitialized
		sess.UpdatedAt = c.now()
		if err := c.sessions.Update(ctx, sess); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
	}

	c.metrics.DeploymentsCompleted.Inc()
	c.metrics.LastSuccessfulDeployment.Set(float64(c.now().Unix()))
	c.logf("session %s: deployment complete (contract=%s)", sess.ID, sess.ContractID)
	return nil
}

// runStep gets one operation signed, submitted, and confirmed, retrying
// transient failures with fresh sequence numbers and bounded backoff.
// Returns the hash of the confirming transaction.
func (c *Coordinator) runStep(ctx context.Context, sess *domain.Session, step domain.Step, op envelope.Operation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	// A submission from a previous run may still be in flight for this
	// step. Its outcome must be settled before anything is re-submitted.
	if sess.PendingStep == step && sess.PendingTxHash != "" {
		txHash, settled, err := c.settlePending(ctx, sess)
		if err != nil {
			return "", err
		}
		if settled {
			return txHash, nil
		}
	}

	delay := c.retryDelay
	var fee uint32
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		txHash, err := c.attempt(ctx, sess, step, op, attempt, &fee)
		if err == nil {
			return txHash, nil
		}
		lastErr = err

		var subErr *stellar.SubmitError
		if !errors.As(err, &subErr) || !subErr.Class.Transient() {
			return "", err
		}

		c.metrics.SubmissionRetries.WithLabelValues(string(subErr.Class)).Inc()
		if subErr.Class.FeeRelated() {
			fee = envelope.BumpFee(fee)
			c.metrics.FeeBumps.Inc()
			c.logf("session %s: step %s attempt %d failed (%s), retrying with fee %d",
				sess.ID, step, attempt, subErr.Class, fee)
		} else {
			c.logf("session %s: step %s attempt %d failed (%s), retrying",
				sess.ID, step, attempt, subErr.Class)
		}
	}

	return "", fmt.Errorf("max attempts exceeded: %w", lastErr)
}

// attempt performs one build-sign-submit-confirm round trip. fee carries
// the bumped fee across attempts; zero means use the builder's estimate.
func (c *Coordinator) attempt(ctx context.Context, sess *domain.Session, step domain.Step, op envelope.Operation, attempt int, fee *uint32) (string, error) {
	seq, err := c.client.GetAccountSequence(ctx, sess.SourceAccount)
	if err != nil {
		return "", fmt.Errorf("fetch account sequence: %w", err)
	}

	env, err := c.builder.Build(op, sess.SourceAccount, seq+1)
	if err != nil {
		return "", err
	}
	if *fee == 0 {
		*fee = env.Fee
	} else {
		env = env.WithFee(*fee)
	}

	c.metrics.SigningRequests.Inc()
	signed, err := c.signer.Sign(ctx, signer.Request{
		Envelope:          env.Bytes(),
		NetworkPassphrase: c.passphrase,
		Description:       fmt.Sprintf("%s (session %s)", step, sess.ID),
	})
	if err != nil {
		if errors.Is(err, signer.ErrRejected) {
			c.metrics.SigningRejections.Inc()
			c.record(ctx, sess, step, attempt, "", env.Fee, env.SeqNum, domain.OutcomeRejected, err.Error())
		}
		return "", fmt.Errorf("sign envelope: %w", err)
	}

	hash := env.Hash()
	txHash := hex.EncodeToString(hash[:])

	// Persist the hash before the wire write: if the process dies while
	// the submission is in flight, Resume can query this exact
	// transaction instead of guessing.
	sess.PendingStep = step
	sess.PendingTxHash = txHash
	sess.UpdatedAt = c.now()
	if err := c.sessions.Update(ctx, sess); err != nil {
		return "", fmt.Errorf("persist pending submission: %w", err)
	}

	c.metrics.SubmissionAttempts.WithLabelValues(string(step)).Inc()
	submitStart := c.now()
	res, err := c.client.SubmitTransaction(ctx, signed)
	c.metrics.SubmissionLatency.Observe(c.now().Sub(submitStart).Seconds())

	if err != nil {
		// The request may or may not have reached the network. Probe
		// before concluding anything.
		c.logf("session %s: step %s submission outcome unknown: %v", sess.ID, step, err)
		c.record(ctx, sess, step, attempt, txHash, env.Fee, env.SeqNum, domain.OutcomeIndeterminate, err.Error())
		return c.resolveUnknown(ctx, sess, step, txHash)
	}

	if res.Status == stellar.TxStatusFailed {
		subErr := stellar.ClassifyResult(res.ErrorCode, "")
		c.record(ctx, sess, step, attempt, txHash, env.Fee, env.SeqNum, domain.OutcomeFailed, res.ErrorCode)
		c.clearPending(ctx, sess)
		return "", subErr
	}

	// Accepted: poll for the final outcome.
	final, err := c.confirm(ctx, txHash)
	if err != nil {
		c.record(ctx, sess, step, attempt, txHash, env.Fee, env.SeqNum, domain.OutcomeIndeterminate, err.Error())
		return "", err
	}

	if final.Status == stellar.TxStatusFailed {
		subErr := stellar.ClassifyResult(final.ErrorCode, final.ErrorDetail)
		c.record(ctx, sess, step, attempt, txHash, env.Fee, env.SeqNum, domain.OutcomeFailed, final.ErrorCode)
		c.clearPending(ctx, sess)
		return "", subErr
	}

	c.record(ctx, sess, step, attempt, txHash, env.Fee, env.SeqNum, domain.OutcomeSuccess, "")
	return txHash, nil
}

// confirm polls GetTransaction until the outcome is definitive or the
// poll budget runs out.
func (c *Coordinator) confirm(ctx context.Context, txHash string) (*stellar.TxResult, error) {
	for poll := 1; poll <= c.maxPolls; poll++ {
		res, err := c.client.GetTransaction(ctx, txHash)
		if err == nil && (res.Status == stellar.TxStatusSuccess || res.Status == stellar.TxStatusFailed) {
			c.metrics.ConfirmationRounds.Observe(float64(poll))
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrIndeterminate, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
	return nil, fmt.Errorf("%w: no definitive outcome after %d polls", ErrIndeterminate, c.maxPolls)
}

// resolveUnknown settles a submission whose send failed at the transport
// level: the transaction may have landed anyway.
func (c *Coordinator) resolveUnknown(ctx context.Context, sess *domain.Session, step domain.Step, txHash string) (string, error) {
	c.metrics.IndeterminateProbes.Inc()

	res, err := c.client.GetTransaction(ctx, txHash)
	if err != nil {
		return "", fmt.Errorf("%w: probe failed: %v", ErrIndeterminate, err)
	}

	switch res.Status {
	case stellar.TxStatusSuccess:
		c.logf("session %s: step %s transaction landed despite send error", sess.ID, step)
		return txHash, nil
	case stellar.TxStatusFailed:
		c.clearPending(ctx, sess)
		return "", stellar.ClassifyResult(res.ErrorCode, res.ErrorDetail)
	case stellar.TxStatusNotFound:
		// Never reached the network. Safe to retry with a fresh
		// sequence number.
		c.clearPending(ctx, sess)
		return "", &stellar.SubmitError{Class: stellar.ClassNetwork, Detail: "submission lost in transit"}
	default:
		return "", fmt.Errorf("%w: transaction still pending", ErrIndeterminate)
	}
}

// settlePending resolves a pending transaction recorded by a previous
// run. Returns (txHash, true, nil) when it confirmed, (\"\", false, nil)
// when it is safe to re-submit, and an error when the outcome is a hard
// failure or still unknown.
func (c *Coordinator) settlePending(ctx context.Context, sess *domain.Session) (string, bool, error) {
	txHash := sess.PendingTxHash
	c.metrics.IndeterminateProbes.Inc()
	c.logf("session %s: settling pending %s transaction %s", sess.ID, sess.PendingStep, txHash)

	res, err := c.client.GetTransaction(ctx, txHash)
	if err != nil {
		return "", false, fmt.Errorf("%w: probe failed: %v", ErrIndeterminate, err)
	}

	switch res.Status {
	case stellar.TxStatusSuccess:
		return txHash, true, nil
	case stellar.TxStatusFailed:
		subErr := stellar.ClassifyResult(res.ErrorCode, res.ErrorDetail)
		c.clearPending(ctx, sess)
		if subErr.Class.Transient() {
			// The step loop re-submits from scratch.
			return "", false, nil
		}
		return "", false, subErr
	case stellar.TxStatusNotFound:
		c.clearPending(ctx, sess)
		return "", false, nil
	default:
		return "", false, fmt.Errorf("%w: transaction still pending", ErrIndeterminate)
	}
}

// clearPending removes the in-flight marker after an outcome is known.
func (c *Coordinator) clearPending(ctx context.Context, sess *domain.Session) {
	sess.PendingStep = ""
	sess.PendingTxHash = ""
	sess.UpdatedAt = c.now()
	if err := c.sessions.Update(ctx, sess); err != nil {
		c.logf("session %s: clear pending: %v", sess.ID, err)
	}
}

// fail marks the session terminally failed.
func (c *Coordinator) fail(ctx context.Context, sess *domain.Session, step domain.Step, cause error) {
	sess.Status = domain.StatusFailed
	sess.FailureStep = step
	sess.FailureReason = cause.Error()
	sess.PendingStep = ""
	sess.PendingTxHash = ""
	sess.UpdatedAt = c.now()
	if err := c.sessions.Update(ctx, sess); err != nil {
		c.logf("session %s: persist failure: %v", sess.ID, err)
	}
	c.metrics.DeploymentsFailed.WithLabelValues(string(step)).Inc()
	c.logf("session %s: failed at %s: %v", sess.ID, step, cause)
}

// record appends one attempt to the audit log, when one is configured.
func (c *Coordinator) record(ctx context.Context, sess *domain.Session, step domain.Step, attempt int, txHash string, fee uint32, seqNum int64, outcome, detail string) {
	c.metrics.SubmissionOutcomes.WithLabelValues(outcome).Inc()
	if c.submissions == nil {
		return
	}
	rec := &domain.SubmissionRecord{
		SessionID:   sess.ID,
		Step:        step,
		Attempt:     attempt,
		TxHash:      txHash,
		Fee:         fee,
		SeqNum:      seqNum,
		Outcome:     outcome,
		ErrorDetail: detail,
		SubmittedAt: c.now(),
	}
	if err := c.submissions.Append(ctx, rec); err != nil {
		c.logf("session %s: audit log append: %v", sess.ID, err)
	}
}

func (c *Coordinator) logf(format string, args ...interface{}) {
	if c.verbose {
		log.Printf("[deploy] "+format, args...)
	}
}
