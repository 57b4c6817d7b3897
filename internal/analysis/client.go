package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	analyzePath        = "/analyze"
	defaultTimeout     = 60 * time.Second
	maxResponseBytes   = 1 << 20
	headerContentType  = "Content-Type"
	headerRequestID    = "X-Request-ID"
	contentTypeJSON    = "application/json"
	connectionMessage  = "Connection failed. Check your network and tap REDO."
	noAnalysisMessage  = "No analysis returned. Tap REDO to try again."
	unknownRequestID   = "unknown"
	opRequestAnalysis  = "analysis.request"
	reasonTransport    = "transport_failed"
	reasonDecode       = "decode_failed"
	reasonServerError  = "server_error"
	reasonEmptyPayload = "empty_payload"
)

var (
	// ErrConnectionFailed covers transport failures, timeouts and undecodable responses.
	ErrConnectionFailed = errors.New("analysis: connection failed")
	// ErrNoAnalysis indicates a well-formed response without an analysis payload.
	ErrNoAnalysis = errors.New("analysis: no analysis returned")
	// ErrInvalidClientConfig indicates that the client cannot be constructed.
	ErrInvalidClientConfig = errors.New("analysis: invalid client config")

	errMissingBaseURL = errors.New("base url is required")
)

// ServerError carries the error message supplied by the analysis service.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("analysis: server error (status %d): %s", e.StatusCode, e.Message)
}

// Is reports ServerError as a kind of ErrNoAnalysis.
func (e *ServerError) Is(target error) bool {
	return target == ErrNoAnalysis
}

// DisplayMessage maps an analysis error onto a short message for the user.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) && strings.TrimSpace(serverErr.Message) != "" {
		return serverErr.Message
	}
	if errors.Is(err, ErrNoAnalysis) {
		return noAnalysisMessage
	}
	return connectionMessage
}

// RequestIDProvider issues correlation tokens for analysis requests.
type RequestIDProvider interface {
	NewRequestID() (string, error)
}

type uuidRequestIDs struct{}

// NewUUIDRequestIDs constructs a RequestIDProvider that issues UUIDv7 tokens.
func NewUUIDRequestIDs() RequestIDProvider {
	return uuidRequestIDs{}
}

func (uuidRequestIDs) NewRequestID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ClientConfig bundles configuration required to instantiate a Client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	RequestIDs RequestIDProvider
	Logger     *zap.Logger
}

// Client posts hand text to the remote analysis service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	requestIDs RequestIDProvider
	logger     *zap.Logger
}

type analyzeRequest struct {
	Hand string `json:"hand"`
}

type analyzeResponse struct {
	Analysis string `json:"analysis"`
	Error    string `json:"error"`
}

// NewClient constructs a client with validated configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingBaseURL)
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: base url %q is not absolute", ErrInvalidClientConfig, baseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	requestIDs := cfg.RequestIDs
	if requestIDs == nil {
		requestIDs = NewUUIDRequestIDs()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:   baseURL + analyzePath,
		httpClient: httpClient,
		timeout:    timeout,
		requestIDs: requestIDs,
		logger:     logger,
	}, nil
}

// RequestAnalysis sends one request for the hand text and returns the analysis.
// It never retries.
func (c *Client) RequestAnalysis(ctx context.Context, handText string) (string, error) {
	requestID, err := c.requestIDs.NewRequestID()
	if err != nil {
		requestID = unknownRequestID
	}

	payload, err := json.Marshal(analyzeRequest{Hand: handText})
	if err != nil {
		return "", fmt.Errorf("analysis: encode request: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("analysis: build request: %w", err)
	}
	request.Header.Set(headerContentType, contentTypeJSON)
	request.Header.Set(headerRequestID, requestID)

	started := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logFailure(requestID, reasonTransport, err)
		return "", fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	defer response.Body.Close()

	var body analyzeResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, maxResponseBytes)).Decode(&body); err != nil {
		c.logFailure(requestID, reasonDecode, err, zap.Int("status", response.StatusCode))
		return "", fmt.Errorf("%w: decode response: %v", ErrConnectionFailed, err)
	}

	if strings.TrimSpace(body.Analysis) != "" {
		c.logger.Info("analysis received",
			zap.String("request_id", requestID),
			zap.Int("status", response.StatusCode),
			zap.Duration("elapsed", time.Since(started)))
		return body.Analysis, nil
	}

	if message := strings.TrimSpace(body.Error); message != "" {
		serverErr := &ServerError{StatusCode: response.StatusCode, Message: message}
		c.logFailure(requestID, reasonServerError, serverErr, zap.Int("status", response.StatusCode))
		return "", serverErr
	}

	c.logFailure(requestID, reasonEmptyPayload, ErrNoAnalysis, zap.Int("status", response.StatusCode))
	return "", ErrNoAnalysis
}

func (c *Client) logFailure(requestID, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opRequestAnalysis),
		zap.String("reason", reason),
		zap.String("request_id", requestID),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	c.logger.Warn("analysis request failed", attrs...)
}
