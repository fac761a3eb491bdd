// Package devserver is a local stand-in for the remote prediction service.
// It honors the same multipart contract and response shapes, scoring images
// deterministically instead of running a model.
package devserver

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/leaf-check/internal/predict"
)

// MaxUploadSize caps the accepted image size.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers around a
// maximum-size image.
const multipartOverhead = 1 << 10

// Options holds the two acceptance gates applied to every verdict.
type Options struct {
	ConfidenceThreshold float64
	PlantThreshold      float64
}

// RegisterRoutes wires /health and /predict to the Gin router.
func RegisterRoutes(router *gin.Engine, scorer Scorer, opts Options, logger *zap.Logger) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/predict", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

		file, err := c.FormFile(predict.FieldName)
		if err != nil {
			if isTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "file is required"})
			return
		}
		if file.Size > MaxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "image exceeds upload limit"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to read image"})
			return
		}

		contentType := file.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		if !strings.HasPrefix(contentType, "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"detail": fmt.Sprintf("unsupported content type %q", contentType)})
			return
		}
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "unable to decode image"})
			return
		}

		verdict, err := scorer.Score(c.Request.Context(), data)
		if err != nil {
			logger.Error("scoring failed", zap.Error(err), zap.String("filename", file.Filename))
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "model unavailable"})
			return
		}

		c.JSON(http.StatusOK, gate(verdict, opts))
	})
}

func gate(v Verdict, opts Options) gin.H {
	if v.PlantConfidence < opts.PlantThreshold {
		return gin.H{
			"accepted":         false,
			"class":            nil,
			"confidence":       nil,
			"plant_confidence": v.PlantConfidence,
			"message": fmt.Sprintf("Invalid image. Please upload a plant/leaf image (potato leaf preferred). Plant confidence: %.2f%%.",
				v.PlantConfidence*100),
		}
	}
	if v.Confidence < opts.ConfidenceThreshold {
		return gin.H{
			"accepted":         false,
			"class":            nil,
			"confidence":       v.Confidence,
			"plant_confidence": v.PlantConfidence,
			"message": fmt.Sprintf("Low confidence (%.2f%%). Please upload a clear potato leaf image (good lighting, leaf in focus).",
				v.Confidence*100),
		}
	}
	return gin.H{
		"accepted":         true,
		"class":            v.Class,
		"confidence":       v.Confidence,
		"plant_confidence": v.PlantConfidence,
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// RequestLogger logs one line per request, the way gin.Logger does, through zap.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// NewRouter builds the stub's Gin engine with recovery and request logging.
func NewRouter(scorer Scorer, opts Options, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	router.Use(gin.Recovery(), RequestLogger(logger))
	RegisterRoutes(router, scorer, opts, logger)
	return router
}
