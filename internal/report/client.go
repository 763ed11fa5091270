package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/ieltsprep/internal/scores"
)

// CookieName is the auth cookie forwarded to the score and identity APIs.
const CookieName = "token"

// HTTPScoreClient posts records to an external score-save API. It makes one
// request per call and never retries.
type HTTPScoreClient struct {
	URL  string
	http *http.Client
}

type HTTPScoreConfig struct {
	URL     string
	Timeout time.Duration

	// Optional client-credentials grant for service-to-service calls.
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func NewHTTPScoreClient(cfg HTTPScoreConfig) *HTTPScoreClient {
	h := &http.Client{}
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		h = cc.Client(context.Background())
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &HTTPScoreClient{URL: cfg.URL, http: h}
}

func (c *HTTPScoreClient) SaveScore(ctx context.Context, rec scores.Record, credential string) (scores.SaveResponse, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return scores.SaveResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return scores.SaveResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: credential})
	}

	res, err := c.http.Do(req)
	if err != nil {
		return scores.SaveResponse{}, fmt.Errorf("post score: %w", err)
	}
	defer res.Body.Close()

	var out scores.SaveResponse
	decodeErr := json.NewDecoder(res.Body).Decode(&out)
	if res.StatusCode/100 != 2 {
		if decodeErr == nil && out.Message != "" {
			return out, fmt.Errorf("post score: %s: %s", res.Status, out.Message)
		}
		return scores.SaveResponse{}, fmt.Errorf("post score: %s", res.Status)
	}
	if decodeErr != nil {
		return scores.SaveResponse{}, fmt.Errorf("decode score response: %w", decodeErr)
	}
	return out, nil
}

// StoreScoreClient writes records straight to the local score store.
type StoreScoreClient struct {
	Store scores.Store
}

func (c StoreScoreClient) SaveScore(ctx context.Context, rec scores.Record, _ string) (scores.SaveResponse, error) {
	if _, err := c.Store.Insert(ctx, rec); err != nil {
		return scores.SaveResponse{}, err
	}
	return scores.SaveResponse{Success: true, Message: "Score saved"}, nil
}
