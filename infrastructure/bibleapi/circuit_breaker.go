package bibleapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bible-study/domain/bible"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold" json:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		MaxRequests:      3,
	}
}

// CircuitBreakerClient wraps the API client with circuit breaker protection.
// It maintains separate breakers per operation so a failing search endpoint
// cannot take reference-data lookups down with it.
type CircuitBreakerClient struct {
	client   *Client
	config   CircuitBreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

func NewCircuitBreakerClient(client *Client, config CircuitBreakerConfig) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		client:   client,
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *CircuitBreakerClient) execute(op string, fn func() (any, error)) (any, error) {
	if !c.config.Enabled {
		return fn()
	}

	breaker := c.getOrCreateBreaker(op)
	result, err := breaker.Execute(fn)
	if err != nil {
		if err == gobreaker.ErrOpenState {
			logrus.WithFields(logrus.Fields{
				"operation": op,
				"state":     breaker.State(),
			}).Warn("Circuit breaker is open, failing fast")
			return nil, fmt.Errorf("circuit breaker open for %s: requests are being rejected to prevent cascade failures", op)
		}
		return nil, err
	}
	return result, nil
}

func (c *CircuitBreakerClient) Search(ctx context.Context, req *bible.SearchRequest) (*bible.SearchResponse, error) {
	result, err := c.execute("search", func() (any, error) {
		return c.client.Search(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*bible.SearchResponse), nil
}

func (c *CircuitBreakerClient) StreamSearch(ctx context.Context, req *bible.SearchRequest, onEvent bible.StreamHandler[bible.StreamEvent]) error {
	_, err := c.execute("search_stream", func() (any, error) {
		return nil, c.client.StreamSearch(ctx, req, onEvent)
	})
	return err
}

func (c *CircuitBreakerClient) GetVerse(ctx context.Context, book string, chapter, verse int, translations []string, includeOriginal bool) (*bible.VerseDetail, error) {
	result, err := c.execute("verse", func() (any, error) {
		return c.client.GetVerse(ctx, book, chapter, verse, translations, includeOriginal)
	})
	if err != nil {
		return nil, err
	}
	return result.(*bible.VerseDetail), nil
}

func (c *CircuitBreakerClient) GetChapter(ctx context.Context, book string, chapter int, translations []string) (*bible.ChapterResponse, error) {
	result, err := c.execute("chapter", func() (any, error) {
		return c.client.GetChapter(ctx, book, chapter, translations)
	})
	if err != nil {
		return nil, err
	}
	return result.(*bible.ChapterResponse), nil
}

func (c *CircuitBreakerClient) ListTranslations(ctx context.Context, language string) (*bible.TranslationsResponse, error) {
	result, err := c.execute("translations", func() (any, error) {
		return c.client.ListTranslations(ctx, language)
	})
	if err != nil {
		return nil, err
	}
	return result.(*bible.TranslationsResponse), nil
}

func (c *CircuitBreakerClient) ListBooks(ctx context.Context, testament, genre string) (*bible.BooksResponse, error) {
	result, err := c.execute("books", func() (any, error) {
		return c.client.ListBooks(ctx, testament, genre)
	})
	if err != nil {
		return nil, err
	}
	return result.(*bible.BooksResponse), nil
}

func (c *CircuitBreakerClient) SearchThemes(ctx context.Context, req *bible.ThemeRequest) (*bible.ThemeResponse, error) {
	result, err := c.execute("themes", func() (any, error) {
		return c.client.SearchThemes(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*bible.ThemeResponse), nil
}

func (c *CircuitBreakerClient) Health(ctx context.Context) (*bible.HealthResponse, error) {
	// Health checks bypass the breaker so monitoring keeps observing the
	// upstream while the circuit is open.
	return c.client.Health(ctx)
}

// GetCircuitStates returns the current state of all circuit breakers for monitoring
func (c *CircuitBreakerClient) GetCircuitStates() map[string]gobreaker.State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	states := make(map[string]gobreaker.State)
	for op, breaker := range c.breakers {
		states[op] = breaker.State()
	}
	return states
}

func (c *CircuitBreakerClient) getOrCreateBreaker(op string) *gobreaker.CircuitBreaker {
	c.mutex.RLock()
	if breaker, exists := c.breakers[op]; exists {
		c.mutex.RUnlock()
		return breaker
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check pattern: another goroutine might have created it while we waited
	if breaker, exists := c.breakers[op]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("bible-api-%s", op),
		MaxRequests: c.config.MaxRequests,
		Interval:    0,
		Timeout:     c.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= c.config.FailureThreshold &&
				counts.TotalFailures >= c.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"operation":  op,
				"from_state": from,
				"to_state":   to,
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	c.breakers[op] = breaker
	return breaker
}
