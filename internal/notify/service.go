package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hopper/internal/config"
	"hopper/internal/logging"
)

// CheckinPayload announces one accepted checkin.
type CheckinPayload struct {
	ArticlePkgRef string `json:"articlepkg_ref"`
	AttemptRef    string `json:"attempt_ref"`
	ArticleTitle  string `json:"article_title"`
	JournalTitle  string `json:"journal_title"`
	IssueLabel    string `json:"issue_label"`
	PackageName   string `json:"package_name"`
	UploadedAt    string `json:"uploaded_at"`
}

// NoticePayload mirrors one ledger notice.
type NoticePayload struct {
	Checkin    string `json:"checkin"`
	Stage      string `json:"stage"`
	Checkpoint string `json:"checkpoint"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

// Service is the outbound notification surface.
type Service interface {
	// Checkin announces an accepted attempt and returns the remote checkin
	// reference used to correlate subsequent notices.
	Checkin(ctx context.Context, payload CheckinPayload) (string, error)
	// Notice forwards one validation notice.
	Notice(ctx context.Context, payload NoticePayload) error
}

// NewService builds the configured notifier, or a no-op one when disabled.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if !cfg.Notifier.Enabled || strings.TrimSpace(cfg.Notifier.BaseURL) == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifier.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpService{
		baseURL: strings.TrimRight(cfg.Notifier.BaseURL, "/"),
		apiKey:  cfg.Notifier.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "notify"),
	}
}

type httpService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func (s *httpService) Checkin(ctx context.Context, payload CheckinPayload) (string, error) {
	body, err := s.post(ctx, "/checkins/", payload)
	if err != nil {
		return "", err
	}
	var reply struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("decode checkin reply: %w", err)
	}
	s.logger.Debug("checkin announced",
		logging.String("checkin_ref", reply.Ref),
		logging.String(logging.FieldPackage, payload.PackageName))
	return reply.Ref, nil
}

func (s *httpService) Notice(ctx context.Context, payload NoticePayload) error {
	_, err := s.post(ctx, "/notices/", payload)
	return err
}

func (s *httpService) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Token "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notification post: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("notification service returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

type noopService struct{}

func (noopService) Checkin(context.Context, CheckinPayload) (string, error) { return "", nil }
func (noopService) Notice(context.Context, NoticePayload) error             { return nil }
