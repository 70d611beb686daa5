package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bible-study/domain/bible"
	domainhistory "bible-study/domain/history"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxQueryLength   = 500
	maxHistoryTurns  = 50
	maxContentLength = 50000
)

// ResultCache caches complete search responses.
type ResultCache interface {
	Get(req *bible.SearchRequest) (*bible.SearchResponse, bool)
	Add(req *bible.SearchRequest, resp *bible.SearchResponse)
}

// TranslationsSource serves the memoized translations list.
type TranslationsSource interface {
	Get(ctx context.Context) (*bible.TranslationsResponse, error)
}

// StreamCallbacks is the callback set for a streaming search. All fields are
// optional. Exactly one of OnComplete or a terminal OnError fires per call;
// server-embedded error messages arrive through OnError mid-stream without
// ending it.
type StreamCallbacks struct {
	OnResults  func(*bible.SearchResponse)
	OnToken    func(string)
	OnError    func(string)
	OnComplete func()
}

// Service orchestrates Bible study use cases on top of the API client.
type Service struct {
	provider      bible.SearchProvider
	stream        bible.StreamProvider[bible.StreamEvent]
	translations  TranslationsSource
	results       ResultCache
	recorder      domainhistory.Recorder
	maxResultsCap int
}

func NewService(
	provider bible.SearchProvider,
	stream bible.StreamProvider[bible.StreamEvent],
	translations TranslationsSource,
	results ResultCache,
	recorder domainhistory.Recorder,
	maxResultsCap int,
) *Service {
	if maxResultsCap <= 0 || maxResultsCap > 100 {
		maxResultsCap = 100
	}
	return &Service{
		provider:      provider,
		stream:        stream,
		translations:  translations,
		results:       results,
		recorder:      recorder,
		maxResultsCap: maxResultsCap,
	}
}

func (s *Service) validateSearch(req *bible.SearchRequest) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return errors.New("query cannot be empty")
	}
	if len(req.Query) > maxQueryLength {
		return fmt.Errorf("query too long (%d chars, max %d)", len(req.Query), maxQueryLength)
	}
	if len(req.Translations) == 0 {
		return errors.New("at least one translation is required")
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 10
	}
	if req.MaxResults > s.maxResultsCap {
		req.MaxResults = s.maxResultsCap
	}

	if len(req.ConversationHistory) > maxHistoryTurns {
		return fmt.Errorf("too many conversation turns: %d (max %d)", len(req.ConversationHistory), maxHistoryTurns)
	}
	for i, msg := range req.ConversationHistory {
		if msg.Role != "user" && msg.Role != "assistant" {
			return fmt.Errorf("conversation turn %d: invalid role %q (must be user or assistant)", i, msg.Role)
		}
		if msg.Content == "" {
			return fmt.Errorf("conversation turn %d: content cannot be empty", i)
		}
		if len(msg.Content) > maxContentLength {
			return fmt.Errorf("conversation turn %d: content too long (%d chars, max %d)", i, len(msg.Content), maxContentLength)
		}
	}
	return nil
}

// Search is the non-streaming path: cache first, then a single API call.
func (s *Service) Search(ctx context.Context, req *bible.SearchRequest) (*bible.SearchResponse, error) {
	if err := s.validateSearch(req); err != nil {
		return nil, err
	}

	if s.results != nil {
		if cached, ok := s.results.Get(req); ok {
			logrus.WithField("query", req.Query).Debug("Search cache hit")
			s.record(req, cached)
			return cached, nil
		}
	}

	resp, err := s.provider.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.results != nil {
		s.results.Add(req, resp)
	}
	s.record(req, resp)
	return resp, nil
}

// StreamSearch runs a streaming search and fans decoded events out to the
// callback set, accumulating the last-seen results and the in-order token
// concatenation into one response for caching and history.
func (s *Service) StreamSearch(ctx context.Context, req *bible.SearchRequest, cb StreamCallbacks) {
	if err := s.validateSearch(req); err != nil {
		if cb.OnError != nil {
			cb.OnError(err.Error())
		}
		return
	}

	// A cached response replays as a single results callback: the commentary
	// text was already assembled on the original pass.
	if s.results != nil {
		if cached, ok := s.results.Get(req); ok {
			logrus.WithField("query", req.Query).Debug("Search cache hit")
			if cb.OnResults != nil {
				cb.OnResults(cached)
			}
			s.record(req, cached)
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
			return
		}
	}

	var lastResults *bible.SearchResponse
	var commentary strings.Builder

	err := s.stream.StreamSearch(ctx, req, func(event bible.StreamEvent) error {
		switch event.Type {
		case bible.StreamTypeResults:
			lastResults = event.Results
			if cb.OnResults != nil {
				cb.OnResults(event.Results)
			}
		case bible.StreamTypeToken:
			commentary.WriteString(event.Token)
			if cb.OnToken != nil {
				cb.OnToken(event.Token)
			}
		case bible.StreamTypeError:
			// Server-reported problem: surfaced, but the stream goes on.
			if cb.OnError != nil {
				cb.OnError(event.Err)
			}
		}
		return nil
	})
	if err != nil {
		// Terminal failure: error and completion are strict alternatives.
		if cb.OnError != nil {
			cb.OnError(err.Error())
		}
		return
	}

	if lastResults != nil {
		accumulated := *lastResults
		accumulated.AIResponse = commentary.String()
		if s.results != nil {
			s.results.Add(req, &accumulated)
		}
		s.record(req, &accumulated)
	}

	if cb.OnComplete != nil {
		cb.OnComplete()
	}
}

// StreamSearchRaw exposes the event stream without accumulation, for callers
// that relay the wire protocol unchanged.
func (s *Service) StreamSearchRaw(ctx context.Context, req *bible.SearchRequest, onEvent bible.StreamHandler[bible.StreamEvent]) error {
	if err := s.validateSearch(req); err != nil {
		return err
	}
	return s.stream.StreamSearch(ctx, req, onEvent)
}

func (s *Service) record(req *bible.SearchRequest, resp *bible.SearchResponse) {
	if s.recorder == nil || resp == nil {
		return
	}
	rec := domainhistory.SearchRecord{
		ID:           uuid.New(),
		Query:        req.Query,
		Languages:    req.Languages,
		Translations: req.Translations,
		ResultCount:  resp.SearchMetadata.TotalResults,
		QueryTimeMs:  resp.QueryTimeMs,
		Cached:       resp.SearchMetadata.Cached,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.recorder.Record(rec); err != nil {
		logrus.WithError(err).Debug("Search history record dropped")
	}
}

// Translations returns the memoized translations list.
func (s *Service) Translations(ctx context.Context) (*bible.TranslationsResponse, error) {
	if s.translations != nil {
		return s.translations.Get(ctx)
	}
	return s.provider.ListTranslations(ctx, "")
}

func (s *Service) GetVerse(ctx context.Context, book string, chapter, verse int, translations []string, includeOriginal bool) (*bible.VerseDetail, error) {
	if book == "" || chapter < 1 || verse < 1 {
		return nil, errors.New("invalid verse reference")
	}
	return s.provider.GetVerse(ctx, book, chapter, verse, translations, includeOriginal)
}

func (s *Service) GetChapter(ctx context.Context, book string, chapter int, translations []string) (*bible.ChapterResponse, error) {
	if book == "" || chapter < 1 {
		return nil, errors.New("invalid chapter reference")
	}
	return s.provider.GetChapter(ctx, book, chapter, translations)
}

func (s *Service) ListBooks(ctx context.Context, testament, genre string) (*bible.BooksResponse, error) {
	return s.provider.ListBooks(ctx, testament, genre)
}

func (s *Service) SearchThemes(ctx context.Context, req *bible.ThemeRequest) (*bible.ThemeResponse, error) {
	if req == nil || strings.TrimSpace(req.Theme) == "" {
		return nil, errors.New("theme cannot be empty")
	}
	if len(req.Translations) == 0 {
		return nil, errors.New("at least one translation is required")
	}
	if req.MaxResults <= 0 {
		req.MaxResults = 20
	}
	if req.MaxResults > s.maxResultsCap {
		req.MaxResults = s.maxResultsCap
	}
	return s.provider.SearchThemes(ctx, req)
}

func (s *Service) Health(ctx context.Context) (*bible.HealthResponse, error) {
	return s.provider.Health(ctx)
}

// RecentHistory lists recent searches, newest first. Empty when history is
// disabled.
func (s *Service) RecentHistory(ctx context.Context, limit int) ([]domainhistory.SearchRecord, error) {
	if s.recorder == nil {
		return nil, nil
	}
	return s.recorder.Recent(ctx, limit)
}
