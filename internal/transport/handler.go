package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go-background-remover/internal/config"
	apperrors "go-background-remover/internal/errors"
	"go-background-remover/internal/inference"
	"go-background-remover/internal/logger"
	"go-background-remover/internal/observer"
	"go-background-remover/internal/service"
	"go-background-remover/pkg/models"
	"go-background-remover/pkg/validation"
)

const (
	serviceName      = "Background Removal API"
	serviceVersion   = "1.0.0"
	documentationURL = "https://github.com/danielgatis/rembg#models"
	imageField       = "image"
)

// NewHandler builds the HTTP surface of the service.
func NewHandler(svc service.BackgroundRemovalService, metrics *observer.MetricsObserver, cfg *config.Config) http.Handler {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(
		requestID(),
		accessLog(),
		recoveryBoundary(),
	)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, models.ErrorResponse{Error: "Method not allowed"})
	})

	r.GET("/", home(svc.Validator()))
	r.GET("/health", healthCheck(svc))
	r.GET("/stats", stats(svc, metrics))

	api := r.Group("/api", cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          12 * time.Hour,
	}))
	api.OPTIONS("/remove-bg", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	api.POST("/remove-bg",
		workerLimiter(int64(cfg.Workers), cfg.QueueTimeout),
		requestSizeLimiter(cfg.MaxRequestBodySize),
		removeBackground(svc),
	)

	return r
}

func removeBackground(svc service.BackgroundRemovalService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		req := svc.Begin(ctx, c.GetString(requestIDKey))
		c.Set(trackedRequestKey, req)

		// Readiness is checked before the body is touched.
		if !svc.Ready() {
			respondError(c, req.Fail(apperrors.NewNotReadyError(inference.ErrNotReady)))
			return
		}

		upload, release, appErr := formUpload(c, svc.Validator())
		if appErr != nil {
			respondError(c, req.Fail(appErr))
			return
		}
		defer release()

		output, appErr := svc.Process(ctx, req, upload)
		if appErr != nil {
			respondError(c, appErr)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", output.Filename))
		c.Data(http.StatusOK, output.ContentType, output.Data)

		if err := req.Advance(observer.StageResponded, nil); err != nil {
			logger.WithError(err).WithField("request_id", req.ID).Error("Request state out of sync")
		}
	}
}

// formUpload opens the image part of a multipart body. A file input
// submitted with nothing selected arrives as a part with an empty filename,
// which mime/multipart stores as a plain value; it is passed on with no name
// so validation rejects it as an unselected file.
func formUpload(c *gin.Context, v *validation.UploadValidator) (*validation.UploadedFile, func(), *apperrors.AppError) {
	header, err := c.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) && c.Request.MultipartForm != nil {
		if values := c.Request.MultipartForm.Value[imageField]; len(values) > 0 {
			upload := &validation.UploadedFile{
				Size:    int64(len(values[0])),
				Content: strings.NewReader(values[0]),
			}
			return upload, func() {}, nil
		}
	}
	if err != nil {
		return nil, nil, formFileError(err, v)
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, apperrors.NewInternalError("Could not read uploaded file", err)
	}
	upload := &validation.UploadedFile{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	}
	return upload, func() { file.Close() }, nil
}

// formFileError classifies a failure to read the image form field.
func formFileError(err error, v *validation.UploadValidator) *apperrors.AppError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		return apperrors.NewPayloadTooLargeError("Maximum file size is "+v.LimitLabel(), err)
	}
	return apperrors.NewBadRequestError("No image file provided in request", err)
}

func stats(svc service.BackgroundRemovalService, metrics *observer.MetricsObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"model":    svc.ModelName(),
			"ready":    svc.Ready(),
			"requests": metrics.Snapshot(),
			"time":     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func home(v *validation.UploadValidator) gin.HandlerFunc {
	types := strings.ToUpper(strings.Join(v.AllowedExtensions(), ", "))

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.ServiceInfo{
			Service: serviceName,
			Version: serviceVersion,
			Status:  "running",
			Endpoints: map[string]models.EndpointInfo{
				"POST /api/remove-bg": {
					Description: "Remove background from image",
					Accepts:     "multipart/form-data",
					Parameters: map[string]string{
						imageField: fmt.Sprintf("Image file (%s) - Max %s", types, v.LimitLabel()),
					},
					Returns: "PNG image with transparent background",
				},
				"GET /health": {
					Description: "Health check endpoint",
					Returns:     "Service health status",
				},
				"GET /stats": {
					Description: "Request counters",
					Returns:     "Processed, failed and in-flight request counts",
				},
			},
			Documentation: documentationURL,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// respondError writes the client facing part of appErr. Logging already
// happened through the request's stage events.
func respondError(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.StatusCode, models.ErrorResponse{
		Error:   appErr.Code,
		Message: appErr.Message,
	})
}

// respondUntracked is respondError for failures outside a request pipeline.
func respondUntracked(c *gin.Context, appErr *apperrors.AppError) {
	entry := logger.WithError(appErr).WithFields(logrus.Fields{
		"request_id":  c.GetString(requestIDKey),
		"status_code": appErr.StatusCode,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if appErr.ClientError() {
		entry.Warn("Request rejected")
	} else {
		entry.Error("Request failed")
	}
	respondError(c, appErr)
}
