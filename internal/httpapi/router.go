package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/agent-backend/internal/common"
	"github.com/suPer8Hu/agent-backend/internal/httpapi/handlers"
	"github.com/suPer8Hu/agent-backend/internal/httpapi/middleware"
)

func corsConfig(origins []string) cors.Config {
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func NewRouter(h *handlers.Handler, verifier middleware.SessionVerifier, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	if len(h.Cfg.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(h.Cfg.CORSOrigins)))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/", h.Root)
	r.GET("/ping", h.Ping)
	r.GET("/health", h.Health)
	r.POST("/auth/login", h.Login)

	// everything below resolves an optional bearer token
	api := r.Group("/")
	api.Use(middleware.OptionalAuth(verifier, logger))

	chatGroup := api.Group("/chat")
	chatGroup.POST("/ask", h.Ask)
	chatGroup.POST("/ask/stream", h.AskStream)
	chatGroup.POST("/ask/async", h.AskAsync)
	chatGroup.GET("/jobs/:job_id", h.GetJob)
	chatGroup.POST("/switch", h.Switch)
	chatGroup.POST("/new", h.NewConversation)
	chatGroup.GET("/current/:id", h.Current)

	mem := api.Group("/memory")
	mem.GET("/conversations", middleware.AdminRequired(), h.ListConversations)
	mem.GET("/messages/:id", h.Messages)
	mem.GET("/statistics/:id", h.Statistics)
	mem.GET("/search/:id", h.Search)
	mem.GET("/types", h.MemoryTypes)
	mem.DELETE("/clear/:id", h.Clear)
	mem.DELETE("/clear-all", middleware.AdminRequired(), h.ClearAll)

	sys := api.Group("/system-memory")
	sys.GET("/all", h.ListSystem)
	sys.GET("/summary", h.SystemSummary)
	sys.GET("/:key", h.GetSystem)
	sys.POST("/save", h.SaveSystem)
	sys.PUT("/update/:key", h.UpdateSystem)
	sys.DELETE("/:key", h.DeleteSystem)

	mdl := api.Group("/models")
	mdl.GET("/list", h.ListModels)
	mdl.POST("/select", h.SelectModel)
	mdl.GET("/current", h.CurrentModel)

	cfg := api.Group("/config")
	cfg.GET("/agent-settings", h.AgentSettings)
	cfg.GET("/memory-types", h.MemoryTypeConfig)

	files := api.Group("/files")
	files.POST("/upload", h.UploadFile)
	files.GET("/conversation/:id", h.ListFiles)
	files.DELETE("/:id/:filename", h.DeleteFile)

	authGroup := api.Group("/auth")
	signedIn := authGroup.Group("/")
	signedIn.Use(middleware.AuthRequired())
	signedIn.POST("/logout", h.Logout)
	signedIn.GET("/me", h.Me)
	signedIn.GET("/conversations", h.MyConversations)
	signedIn.GET("/messages/:id", h.ConversationTranscript)

	admin := authGroup.Group("/users")
	admin.Use(middleware.AdminRequired())
	admin.POST("", h.CreateUser)
	admin.GET("", h.ListUsers)
	admin.PATCH("/:id/active", h.SetUserActive)

	return r
}
