package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Options struct {
	Token          string
	JWTSecret      string
	AllowOrigins   []string
	MaxUploadSize  int64
	RequestTimeout time.Duration
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(p Pipeline, opts Options, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(logger.Named("http")))
	if len(opts.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.AllowOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
			ExposeHeaders:    []string{"Content-Length", requestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	if opts.MaxUploadSize > 0 {
		r.MaxMultipartMemory = opts.MaxUploadSize
	}
	RegisterRoutes(r, p, opts, logger)
	return r
}

func RegisterRoutes(r *gin.Engine, p Pipeline, opts Options, logger *zap.Logger) {
	h := &handler{pipeline: p, maxUploadSize: opts.MaxUploadSize, logger: logger.Named("handler")}

	r.GET("/", h.root)
	r.GET("/health", h.health)
	r.GET("/models/info", h.modelsInfo)
	r.GET("/enhanced-image/:filename", h.enhancedImage)

	inference := r.Group("/", authMiddleware(opts.Token, opts.JWTSecret), deadline(opts.RequestTimeout))
	inference.POST("/rate/image", h.rateImage)
	inference.POST("/enhance/image", h.enhanceImage)
	inference.POST("/process/complete", h.processComplete)
}
