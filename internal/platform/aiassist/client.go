package aiassist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinichq/clinic/internal/platform/apperr"
)

// Intake is the patient presentation sent to the diagnosis endpoint.
type Intake struct {
	Complaint string   `json:"complaint"`
	Symptoms  []string `json:"symptoms,omitempty"`
	Age       *int     `json:"age,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	// CatalogDrugs is the ranked slice of the caller's in-stock drugs
	// the model may suggest from.
	CatalogDrugs []string `json:"catalog_drugs,omitempty"`
}

type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	topN       int
	logger     zerolog.Logger
}

func NewClient(endpoint, apiKey string, timeout time.Duration, topN int, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		topN:       topN,
		logger:     logger,
	}
}

// Suggest posts the intake to the diagnosis endpoint and normalizes the
// response. The catalog is ranked against the complaint and cut to the
// configured top N before sending.
func (c *Client) Suggest(ctx context.Context, intake Intake) (*Canonical, error) {
	intake.CatalogDrugs = RankCatalog(intake.Complaint, intake.CatalogDrugs, c.topN)

	body, err := json.Marshal(intake)
	if err != nil {
		return nil, fmt.Errorf("encode intake: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build diagnosis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diagnosis endpoint: %v: %w", err, apperr.ErrStorage)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read diagnosis response: %v: %w", err, apperr.ErrStorage)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("diagnosis endpoint returned non-200")
		return nil, fmt.Errorf("diagnosis endpoint status %d: %w", resp.StatusCode, apperr.ErrMalformedResponse)
	}

	return Normalize(string(raw))
}
