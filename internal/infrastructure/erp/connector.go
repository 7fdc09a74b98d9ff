package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

// Connector pushes finalized records into an ERPNext-compatible store as
// AI_Document resources. Token auth, no sessions; retries are the caller's
// concern.
type Connector struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

func New(baseURL, apiKey, apiSecret string) *Connector {
	return &Connector{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type erpDocument struct {
	Doctype         string  `json:"doctype"`
	DocumentClass   string  `json:"document_class"`
	Filename        string  `json:"filename"`
	FileHash        string  `json:"file_hash"`
	ConfidenceScore float64 `json:"confidence_score"`
	Keywords        string  `json:"keywords"`
	Summary         string  `json:"summary"`
	OCRText         string  `json:"ocr_text"`
	UploadedBy      string  `json:"uploaded_by"`
	UploadDate      string  `json:"upload_date"`
}

// CreateRecord inserts the record and returns the remote document name.
func (c *Connector) CreateRecord(ctx context.Context, record *domain.DocumentRecord) (string, error) {
	payload := erpDocument{
		Doctype:         "AI_Document",
		DocumentClass:   string(record.Result.DocumentClass),
		Filename:        record.Filename,
		FileHash:        record.ContentHash,
		ConfidenceScore: record.Result.Confidence,
		Keywords:        strings.Join(record.Result.Keywords, ", "),
		Summary:         record.Result.Summary,
		OCRText:         record.Result.OCRText,
		UploadedBy:      record.UploadedBy,
		UploadDate:      record.CreatedAt.Format(time.RFC3339),
	}

	var response struct {
		Data struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/api/resource/AI_Document", payload, &response, "create record"); err != nil {
		return "", err
	}
	if response.Data.Name == "" {
		return "", fmt.Errorf("erp create record: empty document name in response")
	}
	return response.Data.Name, nil
}

// Ping verifies credentials against the auth endpoint.
func (c *Connector) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/method/frappe.auth.get_logged_user", nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("erp ping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return formatERPHTTPError("ping", resp)
	}
	return nil
}

func (c *Connector) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("erp %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return formatERPHTTPError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func (c *Connector) authorize(req *http.Request) {
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.apiSecret))
}

// HTTPError is a non-2xx reply from the ERP. The status code drives the
// push worker's retry decision.
type HTTPError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("erp %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("erp %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func formatERPHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
