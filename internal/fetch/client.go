package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/willowglen/reportpdf/internal/domain"
)

// ErrNotFound reports that the data API has no report for the requested
// id.
var ErrNotFound = errors.New("report not found")

type ClientConfig struct {
	BaseURL       string
	AuthEmail     string
	AuthPassword  string
	Timeout       time.Duration
	MaxRetries    int
	HTTPClient    *http.Client
	Limiter       *rate.Limiter
	ImageBasePath string
	Logger        *log.Logger
}

// Client is the authenticated reader for the report data API. It signs in
// once, caches the bearer token until expiry and re-authenticates a
// single time on 401.
type Client struct {
	baseURL       string
	authEmail     string
	authPassword  string
	timeout       time.Duration
	maxRetries    int
	httpClient    *http.Client
	limiter       *rate.Limiter
	imageBasePath string
	logger        *log.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:       strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/"),
		authEmail:     strings.TrimSpace(cfg.AuthEmail),
		authPassword:  cfg.AuthPassword,
		timeout:       cfg.Timeout,
		maxRetries:    cfg.MaxRetries,
		httpClient:    cfg.HTTPClient,
		limiter:       cfg.Limiter,
		imageBasePath: cfg.ImageBasePath,
		logger:        cfg.Logger,
	}
}

func endpointForKind(kind domain.ReportKind, reportID string) (string, error) {
	switch kind {
	case domain.ReportKindCM:
		return "/api/ReportForm/CMReportForm/" + reportID, nil
	case domain.ReportKindServerPM:
		return "/api/PMReportFormServer/" + reportID, nil
	case domain.ReportKindRTUPM:
		return "/api/ReportForm/RTUPMReportForm/" + reportID, nil
	default:
		return "", fmt.Errorf("unsupported report kind %q", kind)
	}
}

// Fetch performs one authenticated read and normalizes the response into
// the renderer envelope. Failures are terminal for the calling job; the
// pipeline does not retry beyond the bounded HTTP retries here.
func (c *Client) Fetch(ctx context.Context, kind domain.ReportKind, reportID string) (domain.ReportPayload, error) {
	endpoint, err := endpointForKind(kind, reportID)
	if err != nil {
		return domain.ReportPayload{}, err
	}

	raw, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return domain.ReportPayload{}, err
	}

	payload, err := normalize(kind, reportID, raw)
	if err != nil {
		return domain.ReportPayload{}, fmt.Errorf("normalize %s response: %w", kind, err)
	}
	return payload, nil
}

type imageRecordResponse struct {
	ImageName       string `json:"imageName"`
	StoredDirectory string `json:"storedDirectory"`
	ImageTypeName   string `json:"imageTypeName"`
	UploadedBy      string `json:"uploadedBy"`
	VerifiedAt      string `json:"verifiedAt"`
	IsDeleted       bool   `json:"isDeleted"`
}

// ListSignatureImages returns the non-deleted signature-role image
// records for a report, ordered by role name. Implements the signature
// resolver's Source seam.
func (c *Client) ListSignatureImages(ctx context.Context, reportID string) ([]domain.SignatureImageRecord, error) {
	raw, err := c.getJSON(ctx, "/api/ReportForm/ReportFormImages/"+reportID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode image metadata: %w", err)
	}
	var records []imageRecordResponse
	if err := json.Unmarshal(encoded, &records); err != nil {
		return nil, fmt.Errorf("decode image metadata: %w", err)
	}

	results := make([]domain.SignatureImageRecord, 0, 2)
	for _, record := range records {
		if record.IsDeleted {
			continue
		}
		role, ok := roleForImageType(record.ImageTypeName)
		if !ok {
			continue
		}
		verifiedAt, _ := time.Parse(time.RFC3339, record.VerifiedAt)
		results = append(results, domain.SignatureImageRecord{
			Role:       role,
			Path:       c.imagePath(reportID, record.StoredDirectory, record.ImageName),
			SignerName: record.UploadedBy,
			VerifiedAt: verifiedAt,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Role < results[j].Role })
	return results, nil
}

func roleForImageType(typeName string) (domain.SignatureRole, bool) {
	switch typeName {
	case "AttendedBySignature":
		return domain.RoleAttendedBy, true
	case "ApprovedBySignature":
		return domain.RoleApprovedBy, true
	}
	return "", false
}

func (c *Client) imagePath(reportID, storedDirectory, imageName string) string {
	if storedDirectory != "" {
		if filepath.IsAbs(storedDirectory) {
			return filepath.Join(storedDirectory, imageName)
		}
		return filepath.Join(c.imageBasePath, storedDirectory, imageName)
	}
	return filepath.Join(c.imageBasePath, reportID, "Signatures", imageName)
}

// getJSON runs an authenticated GET with bounded retries on transient
// statuses and one re-authentication on 401.
func (c *Client) getJSON(ctx context.Context, endpoint string) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	reauthed := false
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		status, body, err := c.doGet(ctx, endpoint)
		if err != nil {
			lastErr = err
		} else {
			switch {
			case status == http.StatusOK:
				var decoded any
				if err := json.Unmarshal(body, &decoded); err != nil {
					return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
				}
				return decoded, nil
			case status == http.StatusNotFound:
				return nil, fmt.Errorf("%s: %w", endpoint, ErrNotFound)
			case status == http.StatusUnauthorized && !reauthed:
				reauthed = true
				c.invalidateToken()
				attempt--
				continue
			default:
				lastErr = fmt.Errorf("%s returned status %d", endpoint, status)
				if !isRetryableStatus(status) {
					return nil, lastErr
				}
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(500*(attempt+1)) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

func (c *Client) doGet(ctx context.Context, endpoint string) (int, []byte, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request %s: %w", endpoint, err)
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 32<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	return response.StatusCode, body, nil
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

type signinResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && (c.tokenExpiry.IsZero() || time.Now().UTC().Before(c.tokenExpiry)) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"email":    c.authEmail,
		"password": c.authPassword,
	})
	if err != nil {
		return "", fmt.Errorf("marshal signin payload: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.baseURL+"/api/Auth/signin", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create signin request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("signin: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signin returned status %d", response.StatusCode)
	}

	var decoded signinResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode signin response: %w", err)
	}
	if decoded.Token == "" {
		return "", errors.New("signin response carried no token")
	}

	c.token = decoded.Token
	c.tokenExpiry = time.Time{}
	if decoded.ExpiresAt != "" {
		if expiry, err := time.Parse(time.RFC3339, decoded.ExpiresAt); err == nil {
			c.tokenExpiry = expiry.UTC()
		}
	}
	if c.logger != nil {
		c.logger.Printf("data api signin ok, token valid until %s", c.tokenExpiry)
	}
	return c.token, nil
}
