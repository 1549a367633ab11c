package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arvoredolab/arvoredo/backend/internal/auth"
	"github.com/arvoredolab/arvoredo/backend/internal/trees"
	"github.com/arvoredolab/arvoredo/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const actorContextKey = "arvoredo_actor"

var (
	errMissingTokenManager = errors.New("token manager dependency required")
	errMissingUserService  = errors.New("user service dependency required")
	errMissingTreeService  = errors.New("tree service dependency required")
)

// TokenManager validates bearer credentials for protected routes.
type TokenManager interface {
	ValidateAccessToken(token string) (auth.ActorClaims, error)
}

// Dependencies wires the HTTP layer to the application services.
type Dependencies struct {
	TokenManager TokenManager
	UserService  *users.Service
	TreeService  *trees.Service
	Logger       *zap.Logger
	CORSOrigins  []string
}

// NewHTTPHandler assembles the gin router with CORS and auth middleware.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UserService == nil {
		return nil, errMissingUserService
	}
	if deps.TreeService == nil {
		return nil, errMissingTreeService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:      deps.TokenManager,
		userService: deps.UserService,
		treeService: deps.TreeService,
		logger:      logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/reset-password", handler.handleResetPassword)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.POST("/trees", handler.handleCreateTree)
	protected.PUT("/trees/:uniqueId", handler.handleUpdateTree)
	protected.DELETE("/trees/:uniqueId", handler.handleDeleteTree)
	protected.GET("/trees", handler.handleListTrees)
	protected.POST("/trees/sync", handler.handleSyncTrees)
	protected.GET("/dashboard", handler.handleDashboard)
	protected.GET("/users", handler.handleListUsers)
	protected.PUT("/users/:id", handler.handleUpdateUser)
	protected.DELETE("/users/:id", handler.handleDeleteUser)
	protected.GET("/users/:id/trees", handler.handleUserTrees)

	return router, nil
}

type httpHandler struct {
	tokens      TokenManager
	userService *users.Service
	treeService *trees.Service
	logger      *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, failureBody("Authentication required"))
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, failureBody("Authentication required"))
		return
	}
	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, failureBody("Authentication required"))
		return
	}
	c.Set(actorContextKey, trees.Actor{
		ID:       claims.ActorID,
		Username: claims.Username,
		Email:    claims.Email,
		FullName: claims.FullName,
		IsAdmin:  claims.IsAdmin,
	})
	c.Next()
}

func requestActor(c *gin.Context) (trees.Actor, bool) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return trees.Actor{}, false
	}
	actor, ok := value.(trees.Actor)
	return actor, ok
}

func failureBody(message string) gin.H {
	return gin.H{"success": false, "message": message}
}

type registerPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var payload registerPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, failureBody("Invalid request body"))
		return
	}

	account, err := h.userService.Register(c.Request.Context(), users.RegisterRequest{
		Username: payload.Username,
		Password: payload.Password,
		Email:    payload.Email,
		FullName: payload.FullName,
		IsAdmin:  payload.IsAdmin,
	})
	if err != nil {
		switch {
		case errors.Is(err, users.ErrMissingFields):
			c.JSON(http.StatusBadRequest, failureBody("Username, password, name and email are required"))
		case errors.Is(err, users.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, failureBody("Username already exists"))
		case errors.Is(err, users.ErrEmailTaken):
			c.JSON(http.StatusBadRequest, failureBody("Email already exists"))
		default:
			h.logger.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, failureBody("Registration failed. Please try again"))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User registered successfully",
		"user":    account,
	})
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var payload loginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, failureBody("Invalid request body"))
		return
	}

	result, err := h.userService.Login(c.Request.Context(), payload.Username, payload.Password)
	if err != nil {
		var blocked *users.BlockedError
		switch {
		case errors.As(err, &blocked):
			c.JSON(http.StatusUnauthorized, failureBody(
				"Account is temporarily blocked. Try again in "+strconv.Itoa(blocked.Minutes())+" minutes."))
		case errors.Is(err, users.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, failureBody("Invalid username or password"))
		default:
			h.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, failureBody("Login failed. Please try again"))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Login successful",
		"token":        result.Token,
		"refreshToken": result.RefreshToken,
		"user":         result.User,
	})
}

type resetPasswordPayload struct {
	Username           string `json:"username"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

func (h *httpHandler) handleResetPassword(c *gin.Context) {
	var payload resetPasswordPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, failureBody("Invalid request body"))
		return
	}

	err := h.userService.ResetPassword(c.Request.Context(), payload.Username, payload.NewPassword, payload.ConfirmNewPassword)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrPasswordMismatch):
			c.JSON(http.StatusBadRequest, failureBody("Passwords do not match"))
		case errors.Is(err, users.ErrUserNotFound):
			c.JSON(http.StatusBadRequest, failureBody("User not found"))
		default:
			h.logger.Error("password reset failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, failureBody("Password reset failed"))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password reset successfully"})
}

func (h *httpHandler) handleCreateTree(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, failureBody("Authentication required"))
		return
	}

	var submission trees.TreeSubmission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, failureBody("Invalid request body"))
		return
	}

	record, err := h.treeService.CreateTree(c.Request.Context(), submission, actor)
	if err != nil {
		var validationErr *trees.ValidationError
		switch {
		case errors.As(err, &validationErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Validation failed",
				"data":    gin.H{"errors": validationErr.Fields},
			})
		case errors.Is(err, trees.ErrDuplicateTree):
			c.JSON(http.StatusBadRequest, failureBody("Tree with this ID already exists"))
		default:
			h.logger.Error("tree creation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, failureBody("Failed to register tree"))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Tree registered successfully",
		"data":    record,
	})
}

func (h *httpHandler) handleUpdateTree(c *gin.Context) {
	uniqueID := c.Param("uniqueId")

	var update trees.TreeSubmission
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, failureBody("Invalid request body"))
		return
	}

	record, err := h.treeService.UpdateTree(c.Request.Context(), uniqueID, update)
	if err != nil {
		if errors.Is(err, trees.ErrTreeNotFound) {
			c.JSON(http.StatusNotFound, failureBody("Tree not found"))
			return
		}
		h.logger.Error("tree update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("Failed to update tree"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Tree updated successfully",
		"data":    record,
	})
}

func (h *httpHandler) handleDeleteTree(c *gin.Context) {
	uniqueID := c.Param("uniqueId")

	if err := h.treeService.DeleteTree(c.Request.Context(), uniqueID); err != nil {
		if errors.Is(err, trees.ErrTreeNotFound) {
			c.JSON(http.StatusNotFound, failureBody("Tree not found"))
			return
		}
		h.logger.Error("tree deletion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("Failed to delete tree"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Tree deleted successfully"})
}

func (h *httpHandler) handleListTrees(c *gin.Context) {
	criteria := trees.ListCriteria{
		UserID: c.Query("userId"),
		Cidade: c.Query("cidade"),
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}
	h.respondWithListing(c, criteria)
}

func (h *httpHandler) handleUserTrees(c *gin.Context) {
	criteria := trees.ListCriteria{
		UserID: c.Param("id"),
		Cidade: c.Query("cidade"),
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}
	h.respondWithListing(c, criteria)
}

func (h *httpHandler) respondWithListing(c *gin.Context, criteria trees.ListCriteria) {
	result, err := h.treeService.ListTrees(c.Request.Context(), criteria)
	if err != nil {
		h.logger.Error("tree listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("Failed to retrieve trees"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Trees retrieved successfully",
		"data":    result.Records,
		"total":   result.Total,
		"page":    result.Page,
		"limit":   result.Limit,
	})
}

func (h *httpHandler) handleSyncTrees(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, failureBody("Authentication required"))
		return
	}

	var batch trees.SyncBatch
	if err := c.ShouldBindJSON(&batch); err != nil || batch.Trees == nil || batch.DeviceID == "" {
		c.JSON(http.StatusBadRequest, failureBody("Invalid sync request"))
		return
	}

	result, err := h.treeService.SyncTrees(c.Request.Context(), batch, actor)
	if err != nil {
		h.logger.Error("tree sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("Internal server error during sync"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": gin.H{
			"success":   result.Succeeded,
			"errors":    result.Errored,
			"conflicts": result.Conflicted,
		},
		"serverTimestamp": result.ServerTimestamp,
	})
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	data, err := h.treeService.DashboardData(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("Failed to load dashboard"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Dashboard data retrieved",
		"data":    data,
	})
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}

	listed, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		h.logger.Error("user listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("Failed to retrieve users"))
		return
	}
	c.JSON(http.StatusOK, listed)
}

type updateUserPayload struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
	Password string `json:"password"`
}

func (h *httpHandler) handleUpdateUser(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, failureBody("Invalid user id"))
		return
	}

	var payload updateUserPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, failureBody("Invalid request body"))
		return
	}

	err = h.userService.UpdateUser(c.Request.Context(), id, users.UpdateRequest{
		FullName: payload.FullName,
		Email:    payload.Email,
		Username: payload.Username,
		IsAdmin:  payload.IsAdmin,
		Password: payload.Password,
	})
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, failureBody("User not found"))
			return
		}
		h.logger.Error("user update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("Failed to update user"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User updated successfully"})
}

func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	if !requireAdmin(c) {
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, failureBody("Invalid user id"))
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, failureBody("User not found"))
			return
		}
		h.logger.Error("user deletion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, failureBody("Failed to delete user"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User removed"})
}

func requireAdmin(c *gin.Context) bool {
	actor, ok := requestActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, failureBody("Authentication required"))
		return false
	}
	if !actor.IsAdmin {
		c.JSON(http.StatusForbidden, failureBody("Admin privileges required"))
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
