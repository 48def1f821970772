package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	cacheKey     = "response"
	fetchTimeout = 15 * time.Second
	maxFeedBytes = 5 << 20
	defaultTTL   = time.Hour
)

var ErrUpstream = errors.New("feed: upstream request failed")

// Store: хранилище закэшированного ответа
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Fetcher ходит во внешний webhook
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Cache: ответ webhook с TTL; одновременные промахи делают один запрос наверх
type Cache struct {
	store Store
	fetch Fetcher
	ttl   time.Duration
	group singleflight.Group
}

func NewCache(store Store, fetch Fetcher, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{store: store, fetch: fetch, ttl: ttl}
}

// Get отдаёт кэш или идёт за свежим ответом
func (c *Cache) Get(ctx context.Context) ([]byte, error) {
	if v, ok, err := c.store.Get(ctx, cacheKey); err != nil {
		log.Printf("feed: cache read failed: %v", err)
	} else if ok {
		return v, nil
	}

	v, err, _ := c.group.Do(cacheKey, func() (any, error) {
		// запрос наверх не должен обрываться, если первый клиент ушёл
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		// пока ждали, кто-то мог уже положить ответ
		if v, ok, err := c.store.Get(fctx, cacheKey); err == nil && ok {
			return v, nil
		}
		body, err := c.fetch.Fetch(fctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(fctx, cacheKey, body, c.ttl); err != nil {
			log.Printf("feed: cache write failed: %v", err)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// HTTPFetcher: GET на адрес webhook, ответ должен быть JSON
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: response is not JSON", ErrUpstream)
	}
	return body, nil
}
