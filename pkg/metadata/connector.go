// Package metadata retrieves instance identity from the EC2 instance
// metadata service (IMDS). The endpoint is only reachable from the
// instance itself and can be transiently unavailable early in the
// instance's life, so every lookup runs through a retrying connector.
package metadata

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/johnlam90/aws-eni-manager/pkg/config"
	"github.com/johnlam90/aws-eni-manager/pkg/errors"
	"github.com/johnlam90/aws-eni-manager/pkg/observability"
)

// API is the slice of the IMDS client the connector exposes to callers.
type API interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

// Connector runs metadata lookups with bounded retry. Failures that look
// like a boot race (endpoint not up yet, socket errors, non-200 replies)
// are retried with a gentle exponential backoff; anything else propagates
// immediately.
type Connector struct {
	api     API
	retries int
	base    time.Duration
	timeout time.Duration

	// Logger is used for structured logging.
	Logger logr.Logger
	// Metrics is optional; when set, request outcomes are recorded.
	Metrics *observability.Metrics
}

// NewConnector creates a connector against the real IMDS endpoint.
func NewConnector(cfg *config.Settings, logger logr.Logger) *Connector {
	return NewConnectorWithAPI(imds.New(imds.Options{}), cfg, logger)
}

// NewConnectorWithAPI creates a connector against the given metadata API.
func NewConnectorWithAPI(api API, cfg *config.Settings, logger logr.Logger) *Connector {
	return &Connector{
		api:     api,
		retries: cfg.MetadataRetries,
		base:    cfg.MetadataBackoff,
		timeout: cfg.MetadataTimeout,
		Logger:  logger.WithName("metadata"),
	}
}

// backoffSpec returns the retry schedule: attempt k (0-indexed) sleeps
// base * 1.2^k before the next attempt. The curve is deliberately gentle
// because metadata failures are usually boot races measured in hundreds
// of milliseconds, not sustained outages.
func (c *Connector) backoffSpec() wait.Backoff {
	return wait.Backoff{
		Steps:    c.retries,
		Duration: c.base,
		Factor:   1.2,
	}
}

// Session runs fn against the metadata API, retrying transient failures
// up to the configured budget. All lookups issued by fn share one session
// and one retry budget.
func (c *Connector) Session(ctx context.Context, fn func(ctx context.Context, api API) error) error {
	var lastErr error
	attempt := 0

	err := wait.ExponentialBackoff(c.backoffSpec(), func() (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		attempt++
		err := fn(ctx, c.api)
		if err == nil {
			if c.Metrics != nil {
				c.Metrics.RecordMetadataRequest("success")
			}
			return true, nil
		}

		if !transient(err) {
			if c.Metrics != nil {
				c.Metrics.RecordMetadataRequest("error")
			}
			return false, err
		}

		lastErr = err
		c.Logger.V(1).Info("Transient metadata failure, retrying",
			"attempt", attempt, "error", err.Error())
		if c.Metrics != nil {
			c.Metrics.RecordMetadataRequest("retry")
		}
		return false, nil
	})

	if err == wait.ErrWaitTimeout {
		return errors.New(errors.KindConnectionFailed,
			fmt.Sprintf("metadata endpoint unreachable after %d attempts", attempt),
			map[string]interface{}{"attempts": attempt}, lastErr)
	}
	return err
}

// get fetches a single metadata path inside an already-open session,
// applying the per-request timeout.
func (c *Connector) get(ctx context.Context, api API, path string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := api.GetMetadata(reqCtx, &imds.GetMetadataInput{Path: path})
	if err != nil {
		return "", err
	}
	defer resp.Content.Close()

	body, err := io.ReadAll(resp.Content)
	if err != nil {
		return "", fmt.Errorf("failed to read metadata response for %s: %v", path, err)
	}
	return string(body), nil
}

// transient reports whether err belongs to the fixed set of retryable
// connection-level failures: refused/unreachable sockets, resolution
// failures, I/O timeouts, and non-200 responses from the endpoint.
// Errors that already carry a domain kind, and context cancellation from
// the caller, are never transient.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.KindOf(err) != errors.KindUnknown {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}

	// Non-200 from the endpoint. During boot the service can briefly
	// answer 404/503 for paths that will exist moments later.
	var respErr *smithyhttp.ResponseError
	if stderrors.As(err, &respErr) {
		return respErr.HTTPStatusCode() != 200
	}

	// Per-request deadline. The parent context is checked separately.
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
