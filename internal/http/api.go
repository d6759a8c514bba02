package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fakemyrun/internal/domain"
	"fakemyrun/internal/gpx"
	"fakemyrun/internal/service"
	"fakemyrun/internal/storage"
)

const (
	gpxContentType = "application/gpx+xml"
	maxUploadBytes = 10 << 20

	// DeliveryAttachment streams generated GPX as a download; DeliveryJSON
	// wraps it in a JSON envelope. Which one runs is a deployment choice.
	DeliveryAttachment = "attachment"
	DeliveryJSON       = "json"
)

const userContextKey = "user"

// Handler wires HTTP routes to domain services.
type Handler struct {
	auth        service.AuthService
	routes      service.RouteService
	status      service.StatusService
	storage     storage.Service
	bucket      string
	keyPrefix   string
	gpxDelivery string
	log         *logrus.Logger
}

func NewHandler(auth service.AuthService, routes service.RouteService, status service.StatusService, store storage.Service, bucket, keyPrefix, gpxDelivery string, log *logrus.Logger) *Handler {
	if gpxDelivery != DeliveryJSON {
		gpxDelivery = DeliveryAttachment
	}
	return &Handler{
		auth:        auth,
		routes:      routes,
		status:      status,
		storage:     store,
		bucket:      bucket,
		keyPrefix:   keyPrefix,
		gpxDelivery: gpxDelivery,
		log:         log,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "Hello World"})
		})
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		api.POST("/status", h.createStatusCheck)
		api.GET("/status", h.listStatusChecks)

		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
		api.GET("/auth/me", h.requireUser, h.currentUser)

		api.POST("/routes", h.requireUser, h.saveRoute)
		api.GET("/routes", h.requireUser, h.listRoutes)
		api.GET("/routes/:id", h.requireUser, h.getRoute)
		api.DELETE("/routes/:id", h.requireUser, h.deleteRoute)

		api.POST("/generate-gpx", h.generateGPX)
		api.POST("/upload-gpx", h.uploadGPX)
		api.GET("/gpx/archive", h.requireUser, h.listArchive)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requireUser validates the bearer token and resolves it to a live user
// before the wrapped handler runs.
func (h *Handler) requireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing bearer token"})
		return
	}

	user, err := h.auth.Authenticate(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired token"})
			return
		}
		h.log.WithError(err).Error("authenticate request")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
		return
	}

	c.Set(userContextKey, user)
	c.Next()
}

func (h *Handler) currentUserFromContext(c *gin.Context) *domain.User {
	user, _ := c.Get(userContextKey)
	u, _ := user.(*domain.User)
	return u
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	case errors.Is(err, service.ErrUnauthorized):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "route not found"})
	default:
		h.log.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	user, token, err := h.auth.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         userToResponse(user),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         userToResponse(user),
	})
}

func (h *Handler) currentUser(c *gin.Context) {
	c.JSON(http.StatusOK, userToResponse(h.currentUserFromContext(c)))
}

type saveRouteRequest struct {
	Coordinates []domain.Coordinate `json:"coordinates"`
	RunDetails  domain.RunDetails   `json:"runDetails"`
}

func (h *Handler) saveRoute(c *gin.Context) {
	var req saveRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	overwrite, _ := strconv.ParseBool(c.DefaultQuery("overwrite", "false"))
	user := h.currentUserFromContext(c)

	route, err := h.routes.Save(c.Request.Context(), user.ID, req.Coordinates, req.RunDetails, overwrite)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, routeToResponse(*route))
}

func (h *Handler) listRoutes(c *gin.Context) {
	user := h.currentUserFromContext(c)

	routes, err := h.routes.List(c.Request.Context(), user.ID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp := make([]RouteResponse, len(routes))
	for i := range routes {
		resp[i] = routeToResponse(routes[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getRoute(c *gin.Context) {
	user := h.currentUserFromContext(c)

	route, err := h.routes.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, routeToResponse(*route))
}

func (h *Handler) deleteRoute(c *gin.Context) {
	user := h.currentUserFromContext(c)
	id := c.Param("id")

	if err := h.routes.Delete(c.Request.Context(), user.ID, id); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

type generateGPXRequest struct {
	Route      []domain.Coordinate  `json:"route"`
	RunDetails gpxRunDetailsRequest `json:"runDetails"`
}

// gpxRunDetailsRequest mirrors the camelCase shape the route editor sends
// for GPX generation; stored run details use snake_case keys instead.
type gpxRunDetailsRequest struct {
	Name          string  `json:"name"`
	Date          string  `json:"date"`
	StartTime     string  `json:"startTime"`
	Description   string  `json:"description"`
	AvgPace       float64 `json:"avgPace"`
	Distance      float64 `json:"distance"`
	Duration      int     `json:"duration"`
	ElevationGain float64 `json:"elevationGain"`
	ActivityType  string  `json:"activityType"`
}

func (r gpxRunDetailsRequest) toDomain() domain.RunDetails {
	details := domain.RunDetails{
		Name:          r.Name,
		Date:          r.Date,
		StartTime:     r.StartTime,
		Description:   r.Description,
		Distance:      r.Distance,
		Duration:      r.Duration,
		ElevationGain: r.ElevationGain,
		ActivityType:  r.ActivityType,
	}
	if r.AvgPace > 0 {
		details.Pace = strconv.FormatFloat(r.AvgPace, 'f', -1, 64)
	}
	details.ApplyDefaults()
	return details
}

func (h *Handler) generateGPX(c *gin.Context) {
	var req generateGPXRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	details := req.RunDetails.toDomain()
	content, err := gpx.Encode(req.Route, details)
	if err != nil {
		if errors.Is(err, gpx.ErrTooFewPoints) || errors.Is(err, gpx.ErrBadSchedule) {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		h.log.WithError(err).Error("generate gpx")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "error generating GPX file"})
		return
	}

	filename := gpx.Filename(details.Name, details.Date)
	h.archiveGPX(c, filename, content)

	if h.gpxDelivery == DeliveryJSON {
		c.JSON(http.StatusOK, gin.H{"filename": filename, "gpx": content})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, gpxContentType, []byte(content))
}

// archiveGPX mirrors the generated document to object storage when an
// archive bucket is configured. Failures are logged, never surfaced.
func (h *Handler) archiveGPX(c *gin.Context, filename, content string) {
	if h.storage == nil || h.bucket == "" {
		return
	}
	key := path.Join(h.keyPrefix, filename)
	if _, err := h.storage.PutDocument(c.Request.Context(), h.bucket, key, gpxContentType, []byte(content)); err != nil {
		h.log.WithError(err).Warnf("archive gpx %s", key)
	}
}

func (h *Handler) uploadGPX(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "a GPX file upload is required"})
		return
	}
	if !strings.HasSuffix(file.Filename, ".gpx") {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "file must have a .gpx extension"})
		return
	}

	src, err := file.Open()
	if err != nil {
		h.log.WithError(err).Error("open gpx upload")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		h.log.WithError(err).Error("read gpx upload")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
		return
	}

	coords, name, diag := gpx.Decode(data)
	if diag != nil {
		// Best-effort decode: the failure reason is diagnostics only.
		h.log.WithError(diag).Debugf("decode gpx upload %s", file.Filename)
	}
	if len(coords) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "no track points found in GPX file"})
		return
	}

	resp := gin.H{"coordinates": coords}
	if name != "" {
		resp["name"] = name
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listArchive(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "storage service not configured"})
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, h.keyPrefix)
	if err != nil {
		h.log.WithError(err).Error("list gpx archive")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
		return
	}

	resp := make([]ArchiveObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) createStatusCheck(c *gin.Context) {
	var req struct {
		ClientName string `json:"client_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	check, err := h.status.Record(c.Request.Context(), req.ClientName)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusToResponse(*check))
}

func (h *Handler) listStatusChecks(c *gin.Context) {
	checks, err := h.status.List(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp := make([]StatusCheckResponse, len(checks))
	for i := range checks {
		resp[i] = statusToResponse(checks[i])
	}
	c.JSON(http.StatusOK, resp)
}

type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
	IsActive  bool   `json:"is_active"`
}

type RouteResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Coordinates []domain.Coordinate `json:"coordinates"`
	RunDetails  domain.RunDetails   `json:"run_details"`
	CreatedAt   string              `json:"created_at"`
}

type StatusCheckResponse struct {
	ID         string `json:"id"`
	ClientName string `json:"client_name"`
	Timestamp  string `json:"timestamp"`
}

type ArchiveObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func userToResponse(user *domain.User) UserResponse {
	if user == nil {
		return UserResponse{}
	}
	return UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		IsActive:  user.IsActive,
	}
}

func routeToResponse(route domain.SavedRoute) RouteResponse {
	return RouteResponse{
		ID:          route.ID,
		Name:        route.Name,
		Coordinates: route.Coordinates,
		RunDetails:  route.RunDetails,
		CreatedAt:   route.CreatedAt.Format(time.RFC3339),
	}
}

func statusToResponse(check domain.StatusCheck) StatusCheckResponse {
	return StatusCheckResponse{
		ID:         check.ID,
		ClientName: check.ClientName,
		Timestamp:  check.Timestamp.Format(time.RFC3339),
	}
}

func objectToResponse(obj storage.ObjectInfo) ArchiveObjectResponse {
	resp := ArchiveObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
