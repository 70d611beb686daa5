package httpiface

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bible-study/domain/bible"
	domainhistory "bible-study/domain/history"
	"bible-study/infrastructure/credentials"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StudyService is the application surface the gateway exposes to browsers.
type StudyService interface {
	Search(ctx context.Context, req *bible.SearchRequest) (*bible.SearchResponse, error)
	StreamSearchRaw(ctx context.Context, req *bible.SearchRequest, onEvent bible.StreamHandler[bible.StreamEvent]) error
	Translations(ctx context.Context) (*bible.TranslationsResponse, error)
	GetVerse(ctx context.Context, book string, chapter, verse int, translations []string, includeOriginal bool) (*bible.VerseDetail, error)
	GetChapter(ctx context.Context, book string, chapter int, translations []string) (*bible.ChapterResponse, error)
	ListBooks(ctx context.Context, testament, genre string) (*bible.BooksResponse, error)
	SearchThemes(ctx context.Context, req *bible.ThemeRequest) (*bible.ThemeResponse, error)
	Health(ctx context.Context) (*bible.HealthResponse, error)
	RecentHistory(ctx context.Context, limit int) ([]domainhistory.SearchRecord, error)
}

// KeyStore manages the stored provider API keys.
type KeyStore interface {
	Set(provider, key string) error
	Remove(provider string) error
	Get(provider string) string
}

// RecorderHealth reports the history recorder's state for health checks.
type RecorderHealth interface {
	Health() domainhistory.HealthStatus
}

type Router struct {
	service     StudyService
	keys        KeyStore
	recorder    RecorderHealth
	corsOrigins []string
}

func NewRouter(service StudyService, keys KeyStore, recorder RecorderHealth, corsOrigins []string) *Router {
	return &Router{
		service:     service,
		keys:        keys,
		recorder:    recorder,
		corsOrigins: corsOrigins,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Health endpoints - no request ID required for monitoring tools
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	api := router.Group("/api")
	api.Use(r.requestIDMiddleware())
	api.POST("/search", r.search)
	api.POST("/search/stream", r.searchStream)
	api.GET("/verse/:book/:chapter/:verse", r.getVerse)
	api.GET("/chapter/:book/:chapter", r.getChapter)
	api.GET("/translations", r.listTranslations)
	api.GET("/books", r.listBooks)
	api.POST("/themes", r.searchThemes)
	api.GET("/history", r.recentHistory)

	if r.keys != nil {
		api.GET("/keys", r.listKeys)
		api.PUT("/keys/:provider", r.setKey)
		api.DELETE("/keys/:provider", r.removeKey)
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Gemini-API-Key, X-Groq-API-Key")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware echoes a client-provided X-Request-ID or assigns one.
func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		} else if _, err := uuid.Parse(requestID); err != nil {
			c.Header("X-Client-Request-ID", requestID)
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func (r *Router) healthCheck(c *gin.Context) {
	checks := gin.H{
		"gateway": "ok",
	}
	overallOK := true

	upstream, err := r.service.Health(c.Request.Context())
	if err != nil {
		checks["upstream"] = gin.H{"ok": false, "error": err.Error()}
		overallOK = false
	} else {
		checks["upstream"] = gin.H{"ok": upstream.Status == "healthy", "status": upstream.Status}
		if upstream.Status == "unhealthy" {
			overallOK = false
		}
	}

	if r.recorder != nil {
		rh := r.recorder.Health()
		checks["history"] = rh
		if !rh.IsRunning {
			overallOK = false
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "bible-study-gateway",
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// liveness probe: process is up and serving HTTP
func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readiness probe: upstream reachable and ready to serve traffic
func (r *Router) readiness(c *gin.Context) {
	if _, err := r.service.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"error":     err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) search(c *gin.Context) {
	var req bible.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Error("Failed to bind search request")
		c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: "Invalid request format"})
		return
	}

	resp, err := r.service.Search(c.Request.Context(), &req)
	if err != nil {
		logrus.WithError(err).Error("Search failed")
		c.JSON(http.StatusBadGateway, bible.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// searchStream relays the upstream NDJSON stream to the browser, one envelope
// per line, flushed per event.
func (r *Router) searchStream(c *gin.Context) {
	var req bible.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Error("Failed to bind search request")
		c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: "Invalid request format"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, bible.ErrorResponse{Error: "Streaming not supported by server"})
		return
	}

	headerSent := false
	sendHeader := func() {
		if !headerSent {
			c.Header("Content-Type", "application/x-ndjson")
			c.Header("Cache-Control", "no-cache")
			c.Status(http.StatusOK)
			headerSent = true
		}
	}

	writeLine := func(msg bible.StreamMessage) error {
		sendHeader()
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write(data); err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err := r.service.StreamSearchRaw(c.Request.Context(), &req, func(event bible.StreamEvent) error {
		switch event.Type {
		case bible.StreamTypeResults:
			data, err := json.Marshal(event.Results)
			if err != nil {
				return err
			}
			return writeLine(bible.StreamMessage{Type: bible.StreamTypeResults, Data: data})
		case bible.StreamTypeToken:
			return writeLine(bible.StreamMessage{Type: bible.StreamTypeToken, Content: event.Token})
		case bible.StreamTypeError:
			return writeLine(bible.StreamMessage{Type: bible.StreamTypeError, Error: event.Err})
		}
		return nil
	})
	if err != nil {
		logrus.WithError(err).Error("Search stream failed")
		if headerSent {
			// Too late for a status code; report in-band.
			writeLine(bible.StreamMessage{Type: bible.StreamTypeError, Error: err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, bible.ErrorResponse{Error: err.Error()})
	}
}

func (r *Router) getVerse(c *gin.Context) {
	chapter, err := strconv.Atoi(c.Param("chapter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: "Invalid chapter number"})
		return
	}
	verse, err := strconv.Atoi(c.Param("verse"))
	if err != nil {
		c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: "Invalid verse number"})
		return
	}

	translations := splitParam(c.Query("translations"))
	includeOriginal := c.Query("include_original") == "true"

	detail, err := r.service.GetVerse(c.Request.Context(), c.Param("book"), chapter, verse, translations, includeOriginal)
	if err != nil {
		logrus.WithError(err).Error("Verse lookup failed")
		c.JSON(http.StatusBadGateway, bible.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (r *Router) getChapter(c *gin.Context) {
	chapter, err := strconv.Atoi(c.Param("chapter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: "Invalid chapter number"})
		return
	}

	resp, err := r.service.GetChapter(c.Request.Context(), c.Param("book"), chapter, splitParam(c.Query("translations")))
	if err != nil {
		logrus.WithError(err).Error("Chapter lookup failed")
		c.JSON(http.StatusBadGateway, bible.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) listTranslations(c *gin.Context) {
	resp, err := r.service.Translations(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Translations lookup failed")
		c.JSON(http.StatusBadGateway, bible.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) listBooks(c *gin.Context) {
	resp, err := r.service.ListBooks(c.Request.Context(), c.Query("testament"), c.Query("genre"))
	if err != nil {
		logrus.WithError(err).Error("Books lookup failed")
		c.JSON(http.StatusBadGateway, bible.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) searchThemes(c *gin.Context) {
	var req bible.ThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Error("Failed to bind theme request")
		c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: "Invalid request format"})
		return
	}

	resp, err := r.service.SearchThemes(c.Request.Context(), &req)
	if err != nil {
		logrus.WithError(err).Error("Theme search failed")
		c.JSON(http.StatusBadGateway, bible.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) recentHistory(c *gin.Context) {
	limit := 20
	if val := c.Query("limit"); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	records, err := r.service.RecentHistory(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("History lookup failed")
		c.JSON(http.StatusInternalServerError, bible.ErrorResponse{Error: "Failed to read search history"})
		return
	}
	if records == nil {
		records = []domainhistory.SearchRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"searches": records, "total_count": len(records)})
}

// KeyRequest carries an API key to store for a provider.
type KeyRequest struct {
	Key string `json:"key" binding:"required"`
}

// listKeys reports which providers have a stored key, never the key itself.
func (r *Router) listKeys(c *gin.Context) {
	stored := gin.H{}
	for _, provider := range credentials.Providers() {
		stored[provider] = r.keys.Get(provider) != ""
	}
	c.JSON(http.StatusOK, gin.H{"providers": stored})
}

func (r *Router) setKey(c *gin.Context) {
	var req KeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: "Invalid request format"})
		return
	}

	provider := c.Param("provider")
	if err := r.keys.Set(provider, req.Key); err != nil {
		c.JSON(http.StatusBadRequest, bible.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider, "stored": true})
}

func (r *Router) removeKey(c *gin.Context) {
	provider := c.Param("provider")
	if err := r.keys.Remove(provider); err != nil {
		c.JSON(http.StatusInternalServerError, bible.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": provider, "stored": false})
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
