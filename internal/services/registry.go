package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/famcare/backend/internal/config"
	"github.com/famcare/backend/pkg/logger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// PatientRecord is the biographical data the national registry holds for an
// identity key.
type PatientRecord struct {
	Name            string `json:"name"`
	PaternalSurname string `json:"paternalSurname"`
	MaternalSurname string `json:"maternalSurname"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
}

// ValidationResult is the outcome of the advisory leader check. It is a plain
// value, not an error: a failed or unreachable check and "does not exist" are
// the same thing to callers, which log and move on.
type ValidationResult struct {
	OK     bool
	Detail string
}

// PatientLookup resolves identity keys against the external registry. The
// engine depends on this interface so tests can substitute a stub.
type PatientLookup interface {
	FindPatient(ctx context.Context, identityKey string) (*PatientRecord, error)
	Validate(ctx context.Context, shortID string) ValidationResult
}

type RegistryClient struct {
	baseURL string
	client  *http.Client
}

func NewRegistryClient(cfg config.RegistryConfig) *RegistryClient {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = cc.Client(ctx)
		client.Timeout = cfg.Timeout
	}
	return &RegistryClient{baseURL: cfg.BaseURL, client: client}
}

// FindPatient is the mandatory lookup in the auto-provision flow: a missing
// record is ErrNotFound, anything else wrong with the upstream is
// ErrUnavailable so callers can tell absence from outage.
func (r *RegistryClient) FindPatient(ctx context.Context, identityKey string) (*PatientRecord, error) {
	endpoint := fmt.Sprintf("%s/patients/%s", r.baseURL, url.PathEscape(identityKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fail(ErrUnavailable, "patient registry request could not be built")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fail(ErrUnavailable, "patient registry unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fail(ErrNotFound, "identity not present in patient registry")
	case resp.StatusCode != http.StatusOK:
		return nil, fail(ErrUnavailable, fmt.Sprintf("patient registry returned status %d", resp.StatusCode))
	}

	var record PatientRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fail(ErrUnavailable, "patient registry returned an unreadable record")
	}
	return &record, nil
}

// Validate performs the advisory leader check. Network failures and non-2xx
// answers collapse into OK=false; nothing here ever blocks a caller.
func (r *RegistryClient) Validate(ctx context.Context, shortID string) ValidationResult {
	endpoint := fmt.Sprintf("%s/leaders/%s/validate", r.baseURL, url.PathEscape(shortID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ValidationResult{OK: false, Detail: "request could not be built"}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		logger.Warn("registry_validate_unreachable", map[string]interface{}{
			"short_id": shortID,
			"error":    err.Error(),
		})
		return ValidationResult{OK: false, Detail: "registry unreachable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ValidationResult{OK: false, Detail: fmt.Sprintf("registry returned status %d", resp.StatusCode)}
	}

	var payload struct {
		Exists bool   `json:"exists"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ValidationResult{OK: false, Detail: "unreadable validation response"}
	}
	return ValidationResult{OK: payload.Exists, Detail: payload.Detail}
}
