// File: internal/infra/adapters/smsman/client.go
package smsman

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sms-hunter/internal/domain"
	"sms-hunter/internal/domain/model"
	"sms-hunter/internal/domain/ports/adapter"
	"sms-hunter/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.NumberProvider = (*Client)(nil)

const (
	DefaultBaseURL = "https://api.sms-man.com/stubs/handler_api.php"

	actionGetNumber = "getNumber"
	actionGetStatus = "getStatus"
	actionSetStatus = "setStatus"

	statusCancel = "-1"
	maxBodyBytes = 64 << 10
)

// ErrorTokens is the closed set of provider error codes, matched in order
// against the upper-cased response body.
var ErrorTokens = []string{
	"BAD_KEY",
	"BAD_ACTION",
	"NO_ACTIVATION",
	"NO_NUMBERS",
	"STATUS_WAIT_CODE",
	"STATUS_CANCEL",
	"NO_BALANCE",
	"BAD_STATUS",
	"STATUS_WAIT_RESEND",
	"STATUS_WAIT_RETRY",
	"ERROR_SQL",
}

// Client talks to the SMS-Man handler API. Responses are plain text.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zerolog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if strings.TrimSpace(u) != "" {
			c.baseURL = strings.TrimSpace(u)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(apiKey string, opts ...Option) *Client {
	nop := zerolog.Nop()
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     &nop,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Factory returns an adapter.NumberProviderFactory sharing the given options.
func Factory(opts ...Option) adapter.NumberProviderFactory {
	return func(apiKey string) adapter.NumberProvider {
		return New(apiKey, opts...)
	}
}

// ReserveNumber buys a number. Success body: ACCESS_NUMBER:<operation>:<number>.
func (c *Client) ReserveNumber(ctx context.Context, countryID, service string) (res *model.Reservation, err error) {
	defer c.observe(actionGetNumber, time.Now(), &err)

	body, err := c.call(ctx, actionGetNumber, url.Values{
		"service": {service},
		"country": {countryID},
	})
	if err != nil {
		return nil, err
	}
	parts := strings.Split(body, ":")
	if len(parts) < 3 || strings.TrimSpace(parts[1]) == "" || strings.TrimSpace(parts[2]) == "" {
		return nil, &domain.ParseError{Op: actionGetNumber, Body: body}
	}
	return &model.Reservation{
		OperationID: strings.TrimSpace(parts[1]),
		Number:      strings.TrimSpace(parts[2]),
	}, nil
}

// PollCode returns the trailing field of STATUS_OK:<code>. A code of "0"
// means nothing arrived yet; interpreting it is up to the caller.
func (c *Client) PollCode(ctx context.Context, operationID string) (code string, err error) {
	defer c.observe(actionGetStatus, time.Now(), &err)

	body, err := c.call(ctx, actionGetStatus, url.Values{"id": {operationID}})
	if err != nil {
		return "", err
	}
	i := strings.LastIndex(body, ":")
	if i < 0 || i == len(body)-1 {
		return "", &domain.ParseError{Op: actionGetStatus, Body: body}
	}
	return strings.TrimSpace(body[i+1:]), nil
}

// CancelOperation releases the number. Any body without an error token is success.
func (c *Client) CancelOperation(ctx context.Context, operationID string) (err error) {
	defer c.observe(actionSetStatus, time.Now(), &err)

	_, err = c.call(ctx, actionSetStatus, url.Values{
		"id":     {operationID},
		"status": {statusCancel},
	})
	return err
}

// call performs one GET. The returned body is trimmed and carries no error token.
func (c *Client) call(ctx context.Context, action string, params url.Values) (string, error) {
	body, err := c.do(ctx, action, params)
	if err != nil {
		return "", err
	}
	if tok := DetectErrorToken(body); tok != "" {
		return "", &domain.UpstreamRejectedError{Op: action, Token: tok, Body: body}
	}
	return body, nil
}

func (c *Client) observe(action string, start time.Time, errp *error) {
	err := *errp
	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsTransport(err):
		outcome = "transport"
	case domain.IsParse(err):
		outcome = "parse"
	default:
		outcome = "rejected"
	}
	elapsed := time.Since(start)
	metrics.ObserveUpstream(action, outcome, elapsed.Milliseconds())
	c.log.Debug().
		Str("action", action).
		Str("outcome", outcome).
		Dur("elapsed", elapsed).
		Err(err).
		Msg("sms-man call")
}

func (c *Client) do(ctx context.Context, action string, params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", &domain.TransportError{Op: action, Err: fmt.Errorf("bad base url: %w", err)}
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("action", action)
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &domain.TransportError{Op: action, Err: err}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &domain.TransportError{Op: action, Err: stripKey(err, c.apiKey)}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &domain.TransportError{Op: action, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.TransportError{Op: action, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}
	return strings.TrimSpace(string(b)), nil
}

// DetectErrorToken returns the first known error token contained in body, or "".
func DetectErrorToken(body string) string {
	up := strings.ToUpper(body)
	for _, tok := range ErrorTokens {
		if strings.Contains(up, tok) {
			return tok
		}
	}
	return ""
}

// stripKey keeps the api key out of *url.Error messages, which embed the request URL.
func stripKey(err error, key string) error {
	var ue *url.Error
	if key == "" || !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: strings.ReplaceAll(ue.URL, url.QueryEscape(key), "***"), Err: ue.Err}
}
