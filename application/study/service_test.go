package study

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bible-study/domain/bible"
	domainhistory "bible-study/domain/history"
	"bible-study/infrastructure/refcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSearchProvider struct {
	mock.Mock
}

func (m *MockSearchProvider) Search(ctx context.Context, req *bible.SearchRequest) (*bible.SearchResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*bible.SearchResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSearchProvider) GetVerse(ctx context.Context, book string, chapter, verse int, translations []string, includeOriginal bool) (*bible.VerseDetail, error) {
	args := m.Called(ctx, book, chapter, verse, translations, includeOriginal)
	if resp := args.Get(0); resp != nil {
		return resp.(*bible.VerseDetail), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSearchProvider) GetChapter(ctx context.Context, book string, chapter int, translations []string) (*bible.ChapterResponse, error) {
	args := m.Called(ctx, book, chapter, translations)
	if resp := args.Get(0); resp != nil {
		return resp.(*bible.ChapterResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSearchProvider) ListTranslations(ctx context.Context, language string) (*bible.TranslationsResponse, error) {
	args := m.Called(ctx, language)
	if resp := args.Get(0); resp != nil {
		return resp.(*bible.TranslationsResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSearchProvider) ListBooks(ctx context.Context, testament, genre string) (*bible.BooksResponse, error) {
	args := m.Called(ctx, testament, genre)
	if resp := args.Get(0); resp != nil {
		return resp.(*bible.BooksResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSearchProvider) SearchThemes(ctx context.Context, req *bible.ThemeRequest) (*bible.ThemeResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*bible.ThemeResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSearchProvider) Health(ctx context.Context) (*bible.HealthResponse, error) {
	args := m.Called(ctx)
	if resp := args.Get(0); resp != nil {
		return resp.(*bible.HealthResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockStreamProvider replays a scripted event sequence and then returns the
// configured terminal error.
type MockStreamProvider struct {
	events   []bible.StreamEvent
	err      error
	calls    int
	lastReq  *bible.SearchRequest
	handlers []error
}

func (m *MockStreamProvider) StreamSearch(ctx context.Context, req *bible.SearchRequest, onEvent bible.StreamHandler[bible.StreamEvent]) error {
	m.calls++
	m.lastReq = req
	for _, event := range m.events {
		if err := onEvent(event); err != nil {
			m.handlers = append(m.handlers, err)
			return err
		}
	}
	return m.err
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(rec domainhistory.SearchRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockRecorder) Recent(ctx context.Context, limit int) ([]domainhistory.SearchRecord, error) {
	args := m.Called(ctx, limit)
	if recs := args.Get(0); recs != nil {
		return recs.([]domainhistory.SearchRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func newCache(t *testing.T) *refcache.SearchResultCache {
	t.Helper()
	cache, err := refcache.NewSearchResultCache(16)
	require.NoError(t, err)
	return cache
}

func validRequest() *bible.SearchRequest {
	return &bible.SearchRequest{
		Query:        "love",
		Languages:    []string{"en"},
		Translations: []string{"NIV"},
		MaxResults:   10,
	}
}

func sampleResponse() *bible.SearchResponse {
	return &bible.SearchResponse{
		QueryTimeMs:    55,
		SearchMetadata: bible.SearchMetadata{TotalResults: 2},
		Results: []bible.SearchResult{
			{Reference: bible.VerseReference{Book: "John", Chapter: 3, Verse: 16}},
			{Reference: bible.VerseReference{Book: "1 Corinthians", Chapter: 13, Verse: 4}},
		},
	}
}

func TestSearch_Validation(t *testing.T) {
	service := NewService(new(MockSearchProvider), &MockStreamProvider{}, nil, nil, nil, 100)

	tests := []struct {
		name    string
		req     *bible.SearchRequest
		wantErr string
	}{
		{"nil request", nil, "request cannot be nil"},
		{"empty query", &bible.SearchRequest{Translations: []string{"NIV"}}, "query cannot be empty"},
		{"whitespace query", &bible.SearchRequest{Query: "   ", Translations: []string{"NIV"}}, "query cannot be empty"},
		{"query too long", &bible.SearchRequest{Query: strings.Repeat("x", 501), Translations: []string{"NIV"}}, "query too long"},
		{"no translations", &bible.SearchRequest{Query: "love"}, "at least one translation"},
		{
			"invalid history role",
			&bible.SearchRequest{
				Query:               "love",
				Translations:        []string{"NIV"},
				ConversationHistory: []bible.Message{{Role: "system", Content: "hi"}},
			},
			"invalid role",
		},
		{
			"empty history content",
			&bible.SearchRequest{
				Query:               "love",
				Translations:        []string{"NIV"},
				ConversationHistory: []bible.Message{{Role: "user", Content: ""}},
			},
			"content cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Search(context.Background(), tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSearch_ClampsMaxResults(t *testing.T) {
	provider := new(MockSearchProvider)
	service := NewService(provider, &MockStreamProvider{}, nil, nil, nil, 20)

	provider.On("Search", mock.Anything, mock.MatchedBy(func(req *bible.SearchRequest) bool {
		return req.MaxResults == 20
	})).Return(sampleResponse(), nil)

	req := validRequest()
	req.MaxResults = 500
	_, err := service.Search(context.Background(), req)
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestSearch_DefaultsMaxResults(t *testing.T) {
	provider := new(MockSearchProvider)
	service := NewService(provider, &MockStreamProvider{}, nil, nil, nil, 100)

	provider.On("Search", mock.Anything, mock.MatchedBy(func(req *bible.SearchRequest) bool {
		return req.MaxResults == 10
	})).Return(sampleResponse(), nil)

	req := validRequest()
	req.MaxResults = 0
	_, err := service.Search(context.Background(), req)
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func TestSearch_CacheRoundTrip(t *testing.T) {
	provider := new(MockSearchProvider)
	cache := newCache(t)
	service := NewService(provider, &MockStreamProvider{}, nil, cache, nil, 100)

	provider.On("Search", mock.Anything, mock.Anything).Return(sampleResponse(), nil).Once()

	first, err := service.Search(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, first.SearchMetadata.Cached)

	second, err := service.Search(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, second.SearchMetadata.Cached)
	assert.Equal(t, first.SearchMetadata.TotalResults, second.SearchMetadata.TotalResults)

	provider.AssertExpectations(t)
}

func TestSearch_ProviderError(t *testing.T) {
	provider := new(MockSearchProvider)
	service := NewService(provider, &MockStreamProvider{}, nil, nil, nil, 100)

	provider.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("upstream down"))

	_, err := service.Search(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

type callbackLog struct {
	results  []*bible.SearchResponse
	tokens   []string
	errs     []string
	complete int
}

func (l *callbackLog) callbacks() StreamCallbacks {
	return StreamCallbacks{
		OnResults:  func(r *bible.SearchResponse) { l.results = append(l.results, r) },
		OnToken:    func(tok string) { l.tokens = append(l.tokens, tok) },
		OnError:    func(msg string) { l.errs = append(l.errs, msg) },
		OnComplete: func() { l.complete++ },
	}
}

func TestStreamSearch_AccumulatesAndCompletes(t *testing.T) {
	stream := &MockStreamProvider{events: []bible.StreamEvent{
		{Type: bible.StreamTypeResults, Results: sampleResponse()},
		{Type: bible.StreamTypeToken, Token: "The "},
		{Type: bible.StreamTypeToken, Token: "Bible says..."},
	}}
	cache := newCache(t)
	service := NewService(new(MockSearchProvider), stream, nil, cache, nil, 100)

	var log callbackLog
	service.StreamSearch(context.Background(), validRequest(), log.callbacks())

	require.Len(t, log.results, 1)
	assert.Equal(t, []string{"The ", "Bible says..."}, log.tokens)
	assert.Empty(t, log.errs)
	assert.Equal(t, 1, log.complete, "completion fires exactly once")

	// The accumulated response, commentary included, landed in the cache.
	cached, ok := cache.Get(validRequest())
	require.True(t, ok)
	assert.Equal(t, "The Bible says...", cached.AIResponse)
}

func TestStreamSearch_TerminalErrorExcludesCompletion(t *testing.T) {
	stream := &MockStreamProvider{
		events: []bible.StreamEvent{{Type: bible.StreamTypeToken, Token: "partial"}},
		err:    errors.New("connection reset"),
	}
	cache := newCache(t)
	service := NewService(new(MockSearchProvider), stream, nil, cache, nil, 100)

	var log callbackLog
	service.StreamSearch(context.Background(), validRequest(), log.callbacks())

	require.Len(t, log.errs, 1)
	assert.Contains(t, log.errs[0], "connection reset")
	assert.Zero(t, log.complete, "error and completion are mutually exclusive")

	_, ok := cache.Get(validRequest())
	assert.False(t, ok, "a failed stream must not populate the cache")
}

func TestStreamSearch_ServerErrorEventDoesNotEndStream(t *testing.T) {
	stream := &MockStreamProvider{events: []bible.StreamEvent{
		{Type: bible.StreamTypeError, Err: "rate limit exceeded"},
		{Type: bible.StreamTypeToken, Token: "still going"},
	}}
	service := NewService(new(MockSearchProvider), stream, nil, nil, nil, 100)

	var log callbackLog
	service.StreamSearch(context.Background(), validRequest(), log.callbacks())

	assert.Equal(t, []string{"rate limit exceeded"}, log.errs)
	assert.Equal(t, []string{"still going"}, log.tokens)
	assert.Equal(t, 1, log.complete)
}

func TestStreamSearch_ValidationErrorSkipsStream(t *testing.T) {
	stream := &MockStreamProvider{}
	service := NewService(new(MockSearchProvider), stream, nil, nil, nil, 100)

	var log callbackLog
	service.StreamSearch(context.Background(), &bible.SearchRequest{Query: ""}, log.callbacks())

	require.Len(t, log.errs, 1)
	assert.Zero(t, log.complete)
	assert.Zero(t, stream.calls, "invalid requests never reach the wire")
}

func TestStreamSearch_CacheHitReplaysWithoutStreaming(t *testing.T) {
	stream := &MockStreamProvider{events: []bible.StreamEvent{
		{Type: bible.StreamTypeResults, Results: sampleResponse()},
		{Type: bible.StreamTypeToken, Token: "commentary"},
	}}
	cache := newCache(t)
	service := NewService(new(MockSearchProvider), stream, nil, cache, nil, 100)

	var first callbackLog
	service.StreamSearch(context.Background(), validRequest(), first.callbacks())
	require.Equal(t, 1, stream.calls)

	var second callbackLog
	service.StreamSearch(context.Background(), validRequest(), second.callbacks())

	assert.Equal(t, 1, stream.calls, "cache hit must not open a stream")
	require.Len(t, second.results, 1)
	assert.True(t, second.results[0].SearchMetadata.Cached)
	assert.Equal(t, "commentary", second.results[0].AIResponse)
	assert.Empty(t, second.tokens)
	assert.Equal(t, 1, second.complete)
}

func TestStreamSearch_RecordsHistory(t *testing.T) {
	stream := &MockStreamProvider{events: []bible.StreamEvent{
		{Type: bible.StreamTypeResults, Results: sampleResponse()},
	}}
	recorder := new(MockRecorder)
	service := NewService(new(MockSearchProvider), stream, nil, nil, recorder, 100)

	recorder.On("Record", mock.MatchedBy(func(rec domainhistory.SearchRecord) bool {
		return rec.Query == "love" && rec.ResultCount == 2
	})).Return(nil)

	var log callbackLog
	service.StreamSearch(context.Background(), validRequest(), log.callbacks())

	assert.Equal(t, 1, log.complete)
	recorder.AssertExpectations(t)
}

func TestSearchThemes_Validation(t *testing.T) {
	provider := new(MockSearchProvider)
	service := NewService(provider, &MockStreamProvider{}, nil, nil, nil, 100)

	_, err := service.SearchThemes(context.Background(), &bible.ThemeRequest{Theme: " "})
	require.Error(t, err)

	_, err = service.SearchThemes(context.Background(), &bible.ThemeRequest{Theme: "forgiveness"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "translation")

	provider.On("SearchThemes", mock.Anything, mock.MatchedBy(func(req *bible.ThemeRequest) bool {
		return req.MaxResults == 20
	})).Return(&bible.ThemeResponse{Theme: "forgiveness"}, nil)

	resp, err := service.SearchThemes(context.Background(), &bible.ThemeRequest{Theme: "forgiveness", Translations: []string{"NIV"}})
	require.NoError(t, err)
	assert.Equal(t, "forgiveness", resp.Theme)
	provider.AssertExpectations(t)
}

func TestGetVerse_Validation(t *testing.T) {
	service := NewService(new(MockSearchProvider), &MockStreamProvider{}, nil, nil, nil, 100)

	_, err := service.GetVerse(context.Background(), "", 3, 16, []string{"NIV"}, false)
	require.Error(t, err)

	_, err = service.GetVerse(context.Background(), "John", 0, 16, []string{"NIV"}, false)
	require.Error(t, err)
}

func TestTranslations_FallsBackToProvider(t *testing.T) {
	provider := new(MockSearchProvider)
	service := NewService(provider, &MockStreamProvider{}, nil, nil, nil, 100)

	provider.On("ListTranslations", mock.Anything, "").Return(&bible.TranslationsResponse{TotalCount: 5}, nil)

	resp, err := service.Translations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, resp.TotalCount)
}

func TestRecentHistory_DisabledReturnsEmpty(t *testing.T) {
	service := NewService(new(MockSearchProvider), &MockStreamProvider{}, nil, nil, nil, 100)

	records, err := service.RecentHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
