package services

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"esg-go-api/internal/models"
)

const forecastCollection = "forecast_cache"

// Generic in-memory cache with type safety
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]*cacheItem[V]
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

type cacheItem[V any] struct {
	value      V
	expiration time.Time
}

func NewCache[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	c := &Cache[K, V]{
		items: make(map[K]*cacheItem[V]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}

	// Start cleanup goroutine
	go c.cleanup(5 * time.Minute)

	return c
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || c.now().After(item.expiration) {
		var zero V
		return zero, false
	}

	return item.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &cacheItem[V]{
		value:      value,
		expiration: c.now().Add(c.ttl),
	}
}

// Len counts entries, expired ones included until the next sweep
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the cleanup goroutine
func (c *Cache[K, V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache[K, V]) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[K, V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}

// cachedForecast is the Firestore document shape
type cachedForecast struct {
	Result   models.ForecastResult `firestore:"result"`
	StoredAt time.Time             `firestore:"storedAt"`
}

// CacheService keeps external forecast results in memory and, when a
// Firestore client is configured, in a shared second tier. Keys are content
// hashes of the input series so an entry can never outlive its input.
type CacheService struct {
	firestoreClient *firestore.Client
	forecastCache   *Cache[string, models.ForecastResult]
	ttl             time.Duration
}

// NewCacheService creates a CacheService. client may be nil.
func NewCacheService(client *firestore.Client, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CacheService{
		firestoreClient: client,
		forecastCache:   NewCache[string, models.ForecastResult](ttl),
		ttl:             ttl,
	}
}

// OpenFirestore connects to project. Failure is logged and yields a nil
// client; the cache then runs in memory only.
func OpenFirestore(ctx context.Context, project string) *firestore.Client {
	if project == "" {
		return nil
	}
	client, err := firestore.NewClient(ctx, project)
	if err != nil {
		zap.L().Warn("firestore unavailable, forecast cache is in-memory only",
			zap.String("project", project),
			zap.Error(err),
		)
		return nil
	}
	return client
}

// GetForecast retrieves a forecast from cache
func (s *CacheService) GetForecast(ctx context.Context, cacheKey string) (models.ForecastResult, bool) {
	// Try in-memory cache
	if forecast, found := s.forecastCache.Get(cacheKey); found {
		return forecast, true
	}

	// Try Firestore
	if s.firestoreClient != nil {
		doc, err := s.firestoreClient.Collection(forecastCollection).Doc(cacheKey).Get(ctx)
		if err == nil {
			var cached cachedForecast
			if err := doc.DataTo(&cached); err == nil && time.Since(cached.StoredAt) < s.ttl {
				s.forecastCache.Set(cacheKey, cached.Result)
				return cached.Result, true
			}
		}
	}

	return models.ForecastResult{}, false
}

// SetForecast stores a forecast in cache
func (s *CacheService) SetForecast(ctx context.Context, cacheKey string, forecast models.ForecastResult) error {
	// Store in memory
	s.forecastCache.Set(cacheKey, forecast)

	// Store in Firestore
	if s.firestoreClient != nil {
		_, err := s.firestoreClient.Collection(forecastCollection).Doc(cacheKey).Set(ctx, cachedForecast{
			Result:   forecast,
			StoredAt: time.Now().UTC(),
		})
		if err != nil {
			return eris.Wrap(err, "cache: firestore set")
		}
	}

	return nil
}

// Close closes the Firestore client
func (s *CacheService) Close() error {
	s.forecastCache.Close()
	if s.firestoreClient != nil {
		return s.firestoreClient.Close()
	}
	return nil
}
