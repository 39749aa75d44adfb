package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/vietddude/rpcmon/internal/core/domain"
	"github.com/vietddude/rpcmon/internal/monitoring/metrics"
)

const (
	// DefaultTimeout bounds a single method attempt.
	DefaultTimeout = 10 * time.Second

	codeMethodNotFound = -32601
	maxResponseBytes   = 1 << 20
)

// DefaultMethods lists BlockDAG liveness methods first and chain-agnostic ones last.
var DefaultMethods = []string{
	"getBlockCount",   // BlockDAG
	"getInfo",         // BlockDAG
	"eth_blockNumber", // EVM
	"net_version",     // generic
}

// Config controls the probe.
type Config struct {
	Timeout time.Duration `yaml:"timeout"`
	Methods []string      `yaml:"methods"`
}

// Outcome classifies a single method attempt.
type Outcome string

const (
	OutcomeResult         Outcome = "result"
	OutcomeMethodNotFound Outcome = "method_not_found"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeTransport      Outcome = "transport"
	OutcomeProtocol       Outcome = "protocol"
)

// Attempt records one method tried during a probe.
type Attempt struct {
	Method  string
	Outcome Outcome
	Err     error
}

// ProbeResult is the verdict of one probe.
type ProbeResult struct {
	Verdict domain.Verdict
	// Latency is measured from the start of the probe to the last response
	// received. Nil when no response arrived at all.
	Latency  *time.Duration
	Err      error
	Attempts []Attempt
}

// ErrorDetail returns the failure description, or "" for online results.
func (r ProbeResult) ErrorDetail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Prober checks JSON-RPC endpoints for liveness.
type Prober struct {
	cfg        Config
	httpClient *http.Client
}

// NewProber creates a prober. Zero values in cfg fall back to the defaults.
func NewProber(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = DefaultMethods
	}
	return &Prober{
		cfg: cfg,
		// Per-attempt deadlines come from the request context.
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Methods returns the candidate methods in probe order.
func (p *Prober) Methods() []string {
	return p.cfg.Methods
}

// Probe tries each candidate method against url until one gives a decisive answer.
// The returned error is non-nil only when ctx is done; no verdict exists then.
func (p *Prober) Probe(ctx context.Context, url string) (ProbeResult, error) {
	start := time.Now()
	var res ProbeResult

	for _, method := range p.cfg.Methods {
		outcome, detail, err := p.attempt(ctx, url, method)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ProbeResult{}, ctxErr
		}
		metrics.ProbeAttemptsTotal.WithLabelValues(method, string(outcome)).Inc()

		if outcome != OutcomeTransport && outcome != OutcomeTimeout {
			elapsed := time.Since(start)
			res.Latency = &elapsed
		}

		switch outcome {
		case OutcomeResult:
			res.Attempts = append(res.Attempts, Attempt{Method: method, Outcome: outcome})
			res.Verdict = domain.VerdictOnline
			return res, nil

		case OutcomeMethodNotFound:
			res.Attempts = append(res.Attempts, Attempt{Method: method, Outcome: outcome})
			continue

		case OutcomeTimeout:
			res.Attempts = append(res.Attempts, Attempt{
				Method:  method,
				Outcome: outcome,
				Err:     &ProbeError{Kind: ErrTimeout, Method: method, Detail: "request timeout", Err: err},
			})
			continue

		case OutcomeTransport:
			// A dead socket will not answer another method name either.
			perr := &ProbeError{Kind: ErrTransport, Method: method, Detail: "connection failed", Err: err}
			res.Attempts = append(res.Attempts, Attempt{Method: method, Outcome: outcome, Err: perr})
			res.Verdict = domain.VerdictOffline
			res.Err = perr
			return res, nil

		default:
			perr := &ProbeError{Kind: ErrProtocol, Method: method, Detail: detail, Err: err}
			res.Attempts = append(res.Attempts, Attempt{Method: method, Outcome: outcome, Err: perr})
			res.Verdict = domain.VerdictOffline
			res.Err = perr
			return res, nil
		}
	}

	res.Verdict = domain.VerdictOffline
	res.Err = &ProbeError{Kind: ErrExhausted, Detail: "no supported methods responded"}
	return res, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// attempt sends one request and classifies the raw outcome. detail is only set
// for OutcomeProtocol.
func (p *Prober) attempt(ctx context.Context, url, method string) (Outcome, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: []any{}, ID: 1})
	if err != nil {
		return OutcomeProtocol, "marshal request", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return OutcomeTransport, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return OutcomeTimeout, "", err
		}
		return OutcomeTransport, "", fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return OutcomeTimeout, "", err
		}
		return OutcomeProtocol, fmt.Sprintf("read response: %v", err), err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return OutcomeProtocol, fmt.Sprintf("HTTP %d", resp.StatusCode), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return OutcomeProtocol, "invalid JSON response", fmt.Errorf("parse response: %w", err)
	}

	// JSON-RPC 1.0 servers send "result": null next to a populated error.
	if rawErr, ok := envelope["error"]; ok && !isNull(rawErr) {
		var rerr rpcError
		if err := json.Unmarshal(rawErr, &rerr); err != nil {
			return OutcomeProtocol, "malformed rpc error", fmt.Errorf("parse rpc error: %w", err)
		}
		if rerr.Code == codeMethodNotFound {
			return OutcomeMethodNotFound, "", nil
		}
		return OutcomeProtocol, fmt.Sprintf("rpc error %d: %s", rerr.Code, rerr.Message), nil
	}

	if _, ok := envelope["result"]; ok {
		return OutcomeResult, "", nil
	}
	return OutcomeProtocol, "malformed JSON-RPC response", nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
