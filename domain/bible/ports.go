package bible

import "context"

// SearchProvider abstracts the remote Bible study API for plain
// request/response calls.
type SearchProvider interface {
	Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	GetVerse(ctx context.Context, book string, chapter, verse int, translations []string, includeOriginal bool) (*VerseDetail, error)
	GetChapter(ctx context.Context, book string, chapter int, translations []string) (*ChapterResponse, error)
	ListTranslations(ctx context.Context, language string) (*TranslationsResponse, error)
	ListBooks(ctx context.Context, testament, genre string) (*BooksResponse, error)
	SearchThemes(ctx context.Context, req *ThemeRequest) (*ThemeResponse, error)
	Health(ctx context.Context) (*HealthResponse, error)
}

// StreamHandler is a generic callback for decoded stream events.
type StreamHandler[T any] func(event T) error

// StreamProvider supports incremental delivery of search results and
// generated commentary tokens.
type StreamProvider[T any] interface {
	StreamSearch(ctx context.Context, req *SearchRequest, onEvent StreamHandler[T]) error
}

// CredentialSource supplies per-provider API key headers for outgoing
// requests. An empty map is a valid, common state.
type CredentialSource interface {
	Headers() map[string]string
}
