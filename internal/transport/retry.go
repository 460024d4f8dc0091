package transport

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rescale-labs/abfs/internal/constants"
	"github.com/rescale-labs/abfs/internal/perf"
	"github.com/rescale-labs/abfs/internal/retryclassify"
)

// Refresher is the capability C3 needs from C2: ensure the bearer token is
// fresh before (re)issuing a request, and hand back the current token.
type Refresher interface {
	EnsureFresh(ctx context.Context) error
	Bearer() string
}

// RetryConfig parameterizes Execute/ExecuteInto's retry loop: the session to
// refresh through, and the per-operation retry budget (default
// constants.DefaultRetries).
type RetryConfig struct {
	Session    Refresher
	MaxRetries int
	Op         string // for logging only
}

func (cfg RetryConfig) maxRetries() int {
	if cfg.MaxRetries > 0 {
		return cfg.MaxRetries
	}
	return constants.DefaultRetries
}

// Execute drives the classify/backoff/retry loop of §4.1 around one logical
// request, refreshing the session per §4.2 before the first attempt and
// again whenever a worker's own attempt observes the token needs refresh.
// buildReq is called once per attempt so the bearer token can change between
// attempts and so callers with a streaming Body can re-open it.
func (c *Client) Execute(ctx context.Context, cfg RetryConfig, buildReq func(bearer string) Request) (Response, error) {
	var lastResp Response
	var lastOutcome retryclassify.Outcome

	for attempt := 1; attempt <= cfg.maxRetries(); attempt++ {
		if cfg.Session != nil {
			if err := cfg.Session.EnsureFresh(ctx); err != nil {
				return Response{}, fmt.Errorf("%s: refreshing credentials: %w", cfg.Op, err)
			}
		}

		bearer := ""
		if cfg.Session != nil {
			bearer = cfg.Session.Bearer()
		}

		resp, outcome := c.Do(ctx, buildReq(bearer))
		lastResp, lastOutcome = resp, outcome

		verdict := retryclassify.Classify(outcome)
		if verdict == retryclassify.VerdictOK {
			return resp, nil
		}
		if verdict == retryclassify.VerdictFatal {
			return resp, requestError(cfg.Op, outcome)
		}

		if attempt == cfg.maxRetries() {
			break
		}
		c.sleepBackoff(ctx, attempt, outcome)
	}

	return lastResp, fmt.Errorf("%s: exhausted %d attempt(s): %w", cfg.Op, cfg.maxRetries(), requestError(cfg.Op, lastOutcome))
}

// ExecuteInto is Execute's counterpart for the streaming download path: the
// response body is written directly into dst rather than buffered.
func (c *Client) ExecuteInto(ctx context.Context, cfg RetryConfig, buildReq func(bearer string) Request, dst io.Writer) (int64, error) {
	var lastN int64
	var lastOutcome retryclassify.Outcome

	for attempt := 1; attempt <= cfg.maxRetries(); attempt++ {
		if cfg.Session != nil {
			if err := cfg.Session.EnsureFresh(ctx); err != nil {
				return 0, fmt.Errorf("%s: refreshing credentials: %w", cfg.Op, err)
			}
		}
		bearer := ""
		if cfg.Session != nil {
			bearer = cfg.Session.Bearer()
		}

		n, outcome := c.DoInto(ctx, buildReq(bearer), dst)
		lastN, lastOutcome = n, outcome

		verdict := retryclassify.Classify(outcome)
		if verdict == retryclassify.VerdictOK {
			return n, nil
		}
		if verdict == retryclassify.VerdictFatal {
			return n, requestError(cfg.Op, outcome)
		}
		if attempt == cfg.maxRetries() {
			break
		}
		c.sleepBackoff(ctx, attempt, outcome)
	}

	return lastN, fmt.Errorf("%s: exhausted %d attempt(s): %w", cfg.Op, cfg.maxRetries(), requestError(cfg.Op, lastOutcome))
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int, outcome retryclassify.Outcome) {
	delay := retryclassify.Backoff(attempt, outcome.RetryAfter)
	if outcome.RetryAfter != nil {
		perf.RecordThrottle(delay.Milliseconds())
	} else {
		perf.RecordTimeout(delay.Milliseconds())
	}
	c.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("retrying request")
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func requestError(op string, outcome retryclassify.Outcome) error {
	if outcome.Err != nil {
		return fmt.Errorf("%s: %w", op, outcome.Err)
	}
	return fmt.Errorf("%s: http status %d", op, outcome.Status)
}
