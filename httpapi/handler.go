package httpapi

import (
	"net/http"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type revokeRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type meResponse struct {
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Options configures NewRouter.
type Options struct {
	Logger zerolog.Logger
	// AuthLimiter throttles the unauthenticated auth endpoints per client IP.
	// Nil disables it.
	AuthLimiter *IPLimiter
	// Extra is registered on the root router after the API routes.
	Extra func(r *gin.Engine)
}

type Handler struct {
	engine *goToken.Engine
}

func NewHandler(engine *goToken.Engine) *Handler {
	return &Handler{engine: engine}
}

func NewRouter(engine *goToken.Engine, opts Options) *gin.Engine {
	h := NewHandler(engine)

	r := gin.New()
	r.Use(gin.Recovery(), RequestContext(), RequestLogger(opts.Logger))

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	h.RegisterRoutes(v1, opts.AuthLimiter)

	if opts.Extra != nil {
		opts.Extra(r)
	}
	return r
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limiter *IPLimiter) {
	var validator middleware.Validator = h.engine

	auth := rg.Group("/auth")
	{
		public := auth.Group("", RateLimit(limiter))
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
		public.POST("/refresh", h.Refresh)

		auth.POST("/logout", h.Logout)
		auth.GET("/me", RequireAuth(validator), h.Me)
	}

	admin := rg.Group("/admin", RequireAuth(validator), RequireRole("admin"))
	{
		admin.POST("/revoke", h.AdminRevoke)
	}
}

func (h *Handler) tokens(pair goToken.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.engine.AccessTTL() / time.Second),
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	e := errorFor(err)
	Error(c, e.status, e.code, e.message)
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required")
		return
	}

	pair, err := h.engine.Register(c.Request.Context(), goToken.RegistrationInfo{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, http.StatusCreated, h.tokens(pair))
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required")
		return
	}

	pair, err := h.engine.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, http.StatusOK, h.tokens(pair))
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "refresh_token is required")
		return
	}

	pair, err := h.engine.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, http.StatusOK, h.tokens(pair))
}

// Logout is fail-soft in the engine; a false result is reported as 401
// without detail.
func (h *Handler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}
	if !h.engine.Logout(c.Request.Context(), token) {
		Error(c, http.StatusUnauthorized, "LOGOUT_FAILED", "logout failed")
		return
	}
	Success(c, http.StatusOK, gin.H{"logged_out": true})
}

func (h *Handler) Me(c *gin.Context) {
	res, ok := authResult(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "not authenticated")
		return
	}
	Success(c, http.StatusOK, meResponse{
		Subject:   res.Subject,
		Role:      res.Role,
		TokenID:   res.TokenID,
		ExpiresAt: res.ExpiresAt,
	})
}

func (h *Handler) AdminRevoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "access_token is required")
		return
	}
	if err := h.engine.AdminRevokeAccess(c.Request.Context(), req.AccessToken); err != nil {
		h.fail(c, err)
		return
	}
	Success(c, http.StatusOK, gin.H{"revoked": true})
}

func (h *Handler) Health(c *gin.Context) {
	st := h.engine.Health(c.Request.Context())
	body := gin.H{
		"store":      "up",
		"latency_ms": float64(st.Latency.Microseconds()) / 1000,
	}
	if !st.Available {
		body["store"] = "down"
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "data": body})
		return
	}
	Success(c, http.StatusOK, body)
}
