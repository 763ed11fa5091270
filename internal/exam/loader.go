package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LoadState is what the front end renders while a session's test is resolved.
type LoadState string

const (
	LoadLoading LoadState = "loading"
	LoadError   LoadState = "error"
	LoadSuccess LoadState = "success"
)

// Loader resolves a test definition by slug. Implementations perform exactly
// one fetch per call and never retry.
type Loader interface {
	Load(ctx context.Context, slug string) (*Test, error)
}

// StoreLoader reads from the local catalog.
type StoreLoader struct {
	Store Store
}

func (l StoreLoader) Load(ctx context.Context, slug string) (*Test, error) {
	t, err := l.Store.GetTest(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	return t, nil
}

// HTTPLoader fetches GET {BaseURL}/tests/by-slug/{slug}. The route serves
// answer keys, so Token is sent as a bearer credential.
type HTTPLoader struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPLoader(baseURL string, timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

func (l *HTTPLoader) Load(ctx context.Context, slug string) (*Test, error) {
	u := l.BaseURL + "/tests/by-slug/" + url.PathEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if l.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.Token)
	}
	res, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch test %s: %w", slug, err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrTestNotFound
	}
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch test %s: %s", slug, res.Status)
	}
	var t Test
	if err := json.NewDecoder(res.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode test %s: %w", slug, err)
	}
	if err := Validate(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Cache is an optional shared cache in front of a Loader.
type Cache interface {
	Get(ctx context.Context, slug string) (*Test, bool, error)
	Set(ctx context.Context, t *Test, ttl time.Duration) error
}

// CachingLoader collapses concurrent loads of one slug into a single fetch and
// optionally keeps results in a Cache until the TTL lapses. The shared fetch
// is detached from any one caller and bounded by timeout instead.
type CachingLoader struct {
	next    Loader
	cache   Cache
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	logger  *zap.Logger
}

func NewCachingLoader(next Loader, cache Cache, ttl, timeout time.Duration, logger *zap.Logger) *CachingLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CachingLoader{next: next, cache: cache, ttl: ttl, timeout: timeout, logger: logger}
}

func (l *CachingLoader) Load(ctx context.Context, slug string) (*Test, error) {
	if l.cache != nil {
		t, ok, err := l.cache.Get(ctx, slug)
		if err != nil {
			l.logger.Warn("test cache read failed", zap.String("slug", slug), zap.Error(err))
		} else if ok {
			return t, nil
		}
	}

	ch := l.group.DoChan(slug, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		t, err := l.next.Load(fctx, slug)
		if err != nil {
			return nil, err
		}
		if l.cache != nil {
			if err := l.cache.Set(fctx, t, l.ttl); err != nil {
				l.logger.Warn("test cache write failed", zap.String("slug", slug), zap.Error(err))
			}
		}
		return t, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		l.logger.Debug("test load deduplicated", zap.String("slug", slug))
	}
	// Each caller gets its own Test value; the passage slices are read-only.
	t := *res.Val.(*Test)
	return &t, nil
}
