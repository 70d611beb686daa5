package bible

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Core Bible study entities independent of transports and vendors

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchFilters narrows a search to a testament, genre, or set of books.
type SearchFilters struct {
	Testament string   `json:"testament,omitempty"`
	Genre     string   `json:"genre,omitempty"`
	Books     []string `json:"books,omitempty"`
}

type SearchRequest struct {
	Query               string         `json:"query"`
	Languages           []string       `json:"languages,omitempty"`
	Translations        []string       `json:"translations"`
	IncludeOriginal     bool           `json:"include_original"`
	MaxResults          int            `json:"max_results,omitempty"`
	SearchType          string         `json:"search_type,omitempty"`
	Filters             *SearchFilters `json:"filters,omitempty"`
	ConversationHistory []Message      `json:"conversation_history,omitempty"`
}

type VerseReference struct {
	Book       string `json:"book"`
	BookKorean string `json:"book_korean,omitempty"`
	BookAbbrev string `json:"book_abbrev,omitempty"`
	Chapter    int    `json:"chapter"`
	Verse      int    `json:"verse"`
	Testament  string `json:"testament,omitempty"`
	Genre      string `json:"genre,omitempty"`
}

type OriginalWord struct {
	Word            string `json:"word"`
	Transliteration string `json:"transliteration,omitempty"`
	Strongs         string `json:"strongs,omitempty"`
	Morphology      string `json:"morphology,omitempty"`
	Definition      string `json:"definition,omitempty"`
}

type OriginalLanguageData struct {
	Language string         `json:"language"`
	Words    []OriginalWord `json:"words"`
}

type CrossReference struct {
	Book       string   `json:"book"`
	BookKorean string   `json:"book_korean,omitempty"`
	Chapter    int      `json:"chapter"`
	Verse      int      `json:"verse"`
	Relation   string   `json:"relationship"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type SearchResult struct {
	Reference       VerseReference        `json:"reference"`
	Translations    map[string]string     `json:"translations"`
	RelevanceScore  float64               `json:"relevance_score"`
	CrossReferences []CrossReference      `json:"cross_references,omitempty"`
	Original        *OriginalLanguageData `json:"original,omitempty"`
}

type SearchMetadata struct {
	TotalResults    int    `json:"total_results"`
	EmbeddingModel  string `json:"embedding_model,omitempty"`
	GenerationModel string `json:"generation_model,omitempty"`
	Cached          bool   `json:"cached"`
	Error           string `json:"error,omitempty"`
}

type SearchResponse struct {
	QueryTimeMs    int64          `json:"query_time_ms"`
	Results        []SearchResult `json:"results"`
	AIResponse     string         `json:"ai_response,omitempty"`
	SearchMetadata SearchMetadata `json:"search_metadata"`
}

type VerseContext struct {
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

type VerseDetail struct {
	Reference       VerseReference           `json:"reference"`
	Translations    map[string]string        `json:"translations"`
	Original        *OriginalLanguageData    `json:"original,omitempty"`
	CrossReferences []CrossReference         `json:"cross_references,omitempty"`
	Context         map[string]*VerseContext `json:"context,omitempty"`
}

type ChapterVerse struct {
	Verse        int               `json:"verse"`
	Translations map[string]string `json:"translations"`
}

type ChapterResponse struct {
	Book          string         `json:"book"`
	Chapter       int            `json:"chapter"`
	TotalChapters int            `json:"total_chapters,omitempty"`
	Verses        []ChapterVerse `json:"verses"`
}

type TranslationInfo struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Abbreviation       string    `json:"abbreviation"`
	LanguageCode       string    `json:"language_code"`
	LanguageName       string    `json:"language_name,omitempty"`
	Description        string    `json:"description,omitempty"`
	IsOriginalLanguage bool      `json:"is_original_language"`
	VerseCount         int       `json:"verse_count,omitempty"`
}

type TranslationsResponse struct {
	Translations []TranslationInfo `json:"translations"`
	TotalCount   int               `json:"total_count"`
}

type BookInfo struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	NameKorean    string    `json:"name_korean,omitempty"`
	Abbreviation  string    `json:"abbreviation"`
	Testament     string    `json:"testament"`
	Genre         string    `json:"genre,omitempty"`
	BookNumber    int       `json:"book_number"`
	TotalChapters int       `json:"total_chapters"`
	TotalVerses   int       `json:"total_verses,omitempty"`
}

type BooksResponse struct {
	Books      []BookInfo `json:"books"`
	TotalCount int        `json:"total_count"`
}

type ThemeRequest struct {
	Theme        string   `json:"theme"`
	Testament    string   `json:"testament,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	Translations []string `json:"translations"`
	MaxResults   int      `json:"max_results,omitempty"`
}

type ThemeResponse struct {
	Theme           string         `json:"theme"`
	TestamentFilter string         `json:"testament_filter,omitempty"`
	QueryTimeMs     int64          `json:"query_time_ms"`
	Results         []SearchResult `json:"results"`
	RelatedThemes   []string       `json:"related_themes,omitempty"`
	TotalResults    int            `json:"total_results"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Services  map[string]string `json:"services,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Stream envelope types (NDJSON: one envelope per line)

const (
	StreamTypeResults = "results"
	StreamTypeToken   = "token"
	StreamTypeError   = "error"
)

// StreamMessage is the wire envelope multiplexing result, token, and error
// notifications over one connection. Exactly one payload field is populated,
// selected by Type.
type StreamMessage struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StreamEvent is the decoded, tagged form handed to stream consumers.
type StreamEvent struct {
	Type    string
	Results *SearchResponse
	Token   string
	Err     string
}
