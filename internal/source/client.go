package source

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hyperengineering/invoicesync/internal/config"
)

// ErrUnavailable wraps transport-level failures talking to the reporting
// service. The cycle aborts before any writes when this is returned.
var ErrUnavailable = errors.New("reporting service unavailable")

// Payloads shorter than this carry no rows worth decoding and are treated
// as the empty-extract signal, not an error.
const minPayloadBytes = 10

// Extract is one fetched report payload: the raw bytes as delivered plus
// the decoded rows. Rows is nil for an empty window.
type Extract struct {
	Raw  []byte
	Rows []Row
}

// Empty reports whether the extract contains no substantive rows.
func (e *Extract) Empty() bool {
	return len(e.Rows) == 0
}

// httpDoer is the minimal http.Client surface used by Client.
// This abstraction enables testing without a live reporting service.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches incremental invoice extracts from the reporting service.
type Client struct {
	http        httpDoer
	endpoint    string
	reportPath  string
	username    string
	password    string
	maxAttempts int
}

// NewClient creates a report client from source configuration.
func NewClient(cfg config.SourceConfig) *Client {
	return &Client{
		http:        &http.Client{Timeout: time.Duration(cfg.Timeout)},
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		reportPath:  cfg.ReportPath,
		username:    cfg.Username,
		password:    cfg.Password,
		maxAttempts: cfg.MaxAttempts,
	}
}

// runReportResponse maps the subset of the SOAP response we consume.
// encoding/xml matches on local names, so the service namespace prefix
// is irrelevant here.
type runReportResponse struct {
	ReportBytes string `xml:"Body>runReportResponse>runReportReturn>reportBytes"`
	ContentType string `xml:"Body>runReportResponse>runReportReturn>reportContentType"`
}

// Fetch runs the report for the window starting at since and returns the
// decoded extract. Transport failures are retried with exponential backoff
// up to the configured attempt count, then wrapped in ErrUnavailable.
//
// A payload below the minimal content threshold, or one whose content type
// is not text, yields an empty extract rather than an error: the window is
// genuinely empty and the watermark may advance past it.
func (c *Client) Fetch(ctx context.Context, since time.Time) (*Extract, error) {
	body := reportRequestBody(c.reportPath, since, c.username, c.password)

	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var respBody []byte
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/xmlpserver/services/PublicReportService", strings.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/soap+xml")

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	payload, err := decodeReportPayload(respBody)
	if err != nil {
		return nil, err
	}

	if len(payload) < minPayloadBytes {
		return &Extract{Raw: payload}, nil
	}

	rows, err := ParseRows(payload)
	if err != nil {
		return nil, fmt.Errorf("decode extract: %w", err)
	}

	return &Extract{Raw: payload, Rows: rows}, nil
}

// decodeReportPayload extracts and base64-decodes the report bytes from the
// SOAP response. A missing reportBytes element or a non-text content type
// yields an empty payload, matching the empty-window signal.
func decodeReportPayload(respBody []byte) ([]byte, error) {
	var parsed runReportResponse
	if err := xml.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse report response: %w", err)
	}

	if parsed.ReportBytes == "" {
		return nil, nil
	}
	if !strings.Contains(parsed.ContentType, "text/plain") {
		return nil, nil
	}

	payload, err := base64.StdEncoding.DecodeString(parsed.ReportBytes)
	if err != nil {
		return nil, fmt.Errorf("decode report bytes: %w", err)
	}
	return payload, nil
}
