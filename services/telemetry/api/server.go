package api

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iulianpascalau/gpu-rack-telemetry/services/telemetry/core"
	"github.com/multiversx/mx-chain-core-go/core/check"
	logger "github.com/multiversx/mx-chain-logger-go"
)

var log = logger.GetOrCreate("api")

const defaultListLimit = 100

type server struct {
	router         *gin.Engine
	httpServer     *http.Server
	ingestor       Ingestor
	storage        Storage
	serviceKey     string
	username       string
	password       string
	listenAddr     string
	jwtSecret      []byte
	generalHandler func(http.Handler) http.Handler
	wg             sync.WaitGroup
}

// TelemetrySubmission represents the incoming JSON body on /api/telemetry
type TelemetrySubmission struct {
	Readings []core.TelemetryReading `json:"readings"`
}

// ReadingRejection describes why one reading of a submission was rejected
type ReadingRejection struct {
	Index    int    `json:"index"`
	DeviceID string `json:"deviceId"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
}

// ArgsWebServer defines the web server arguments
type ArgsWebServer struct {
	ServiceKeyApi  string
	AuthUsername   string
	AuthPassword   string
	ListenAddress  string
	Ingestor       Ingestor
	Storage        Storage
	GeneralHandler func(http.Handler) http.Handler
}

// NewServer initializes the Gin engine and mounts all routes
func NewServer(args ArgsWebServer) (*server, error) {
	if check.IfNil(args.Ingestor) {
		return nil, errors.New("ingestor is required")
	}
	if check.IfNil(args.Storage) {
		return nil, errors.New("storage is required")
	}
	if args.GeneralHandler == nil {
		return nil, errors.New("nil http handler")
	}

	// Derive JWT secret from ServiceApiKey + random salt
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	h := hmac.New(sha256.New, []byte(args.ServiceKeyApi))
	h.Write(salt)
	jwtSecret := h.Sum(nil)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Recovery())

	s := &server{
		router:         router,
		ingestor:       args.Ingestor,
		storage:        args.Storage,
		serviceKey:     args.ServiceKeyApi,
		username:       args.AuthUsername,
		password:       args.AuthPassword,
		listenAddr:     args.ListenAddress,
		generalHandler: args.GeneralHandler,
		jwtSecret:      jwtSecret,
	}

	s.setupRoutes()
	return s, nil
}

func (s *server) setupRoutes() {
	api := s.router.Group("/api")

	// Agent telemetry submission endpoint
	api.POST("/telemetry", s.authAPIKey(), s.handleSubmitTelemetry)

	// Operator authentication
	api.POST("/auth/login", s.handleLogin)

	// Protected operator endpoints
	protected := api.Group("/")
	protected.Use(s.authJWT())
	{
		protected.GET("/racks", s.handleGetRacks)
		protected.GET("/racks/:rackId/summary", s.handleGetRackSummary)
		protected.GET("/events", s.handleGetEvents)
		protected.GET("/publishes/failed", s.handleGetFailedPublishes)
	}
}

// Start listens and serves connections
func (s *server) Start() {
	handler := s.generalHandler(s.router)

	s.httpServer = &http.Server{
		Addr:    s.listenAddr,
		Handler: handler,
	}

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		log.Error("failed to listen", "error", err)
		return
	}
	s.listenAddr = ln.Addr().String()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info("starting HTTP server", "address", s.listenAddr)

		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
		}
	}()
}

// Address returns the actual listen address
func (s *server) Address() string {
	return s.listenAddr
}

// Close gracefully stops the server
func (s *server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.wg.Wait()
	return nil
}

// --- Middlewares ---

// CORSMiddleware allows cross-origin calls to the operator endpoints
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Api-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *server) authAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-Api-Key")
		if key != s.serviceKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// VERY basic JWT implementation for operator sessions based on HS256
func (s *server) authJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		parts := strings.Split(tokenStr, ".")
		if len(parts) != 3 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		// Verify signature
		message := parts[0] + "." + parts[1]
		sig, err := base64.RawURLEncoding.DecodeString(parts[2])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token sign"})
			c.Abort()
			return
		}

		macd := hmac.New(sha256.New, s.jwtSecret)
		macd.Write([]byte(message))
		expectedSig := macd.Sum(nil)

		if !hmac.Equal(sig, expectedSig) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		// Verify expiration
		var claims struct {
			Exp int64 `json:"exp"`
		}
		payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err == nil {
			_ = json.Unmarshal(payloadBytes, &claims)
		}

		if time.Now().Unix() > claims.Exp {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// --- Handlers ---

func (s *server) handleSubmitTelemetry(c *gin.Context) {
	var submission TelemetrySubmission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(submission.Readings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty submission"})
		return
	}

	ctx := c.Request.Context()

	log.Debug("received telemetry submission", "sender", c.Request.RemoteAddr, "num readings", len(submission.Readings))

	accepted := 0
	rejections := make([]ReadingRejection, 0)
	storeFailed := false
	for idx, reading := range submission.Readings {
		err := s.ingestor.Submit(ctx, reading)
		if err == nil {
			accepted++
			continue
		}

		if errors.Is(err, core.ErrStoreUnavailable) {
			storeFailed = true
		}

		rejections = append(rejections, ReadingRejection{
			Index:    idx,
			DeviceID: reading.DeviceID,
			Kind:     rejectionKind(err),
			Error:    err.Error(),
		})
	}

	status := http.StatusOK
	if storeFailed {
		status = http.StatusServiceUnavailable
	} else if len(rejections) > 0 {
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{
		"accepted": accepted,
		"rejected": rejections,
	})
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, core.ErrClockSkew):
		return "clockSkew"
	case errors.Is(err, core.ErrStaleOrDuplicate):
		return "staleOrDuplicate"
	case errors.Is(err, core.ErrInvalidPayload):
		return "invalidPayload"
	case errors.Is(err, core.ErrStoreUnavailable):
		return "storeUnavailable"
	}

	return "internal"
}

func (s *server) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if req.Username != s.username || req.Password != s.password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	// Generate basic JWT (Header.Payload.Signature)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims := fmt.Sprintf(`{"sub":"%s","exp":%d}`, req.Username, time.Now().Add(24*time.Hour).Unix())
	payload := base64.RawURLEncoding.EncodeToString([]byte(claims))

	msg := header + "." + payload
	macd := hmac.New(sha256.New, s.jwtSecret)
	macd.Write([]byte(msg))
	sig := base64.RawURLEncoding.EncodeToString(macd.Sum(nil))

	token := msg + "." + sig
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *server) handleGetRacks(c *gin.Context) {
	summaries, err := s.storage.GetAllRackSummaries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"racks": summaries})
}

func (s *server) handleGetRackSummary(c *gin.Context) {
	rackID := c.Param("rackId")
	summary, err := s.storage.GetRackSummary(c.Request.Context(), rackID)
	if errors.Is(err, core.ErrSummaryNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rack summary not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *server) handleGetEvents(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	events, err := s.storage.GetRecentEvents(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *server) handleGetFailedPublishes(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	failed, err := s.storage.GetFailedPublishes(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"failedPublishes": failed})
}

func parseLimit(raw string) int {
	if len(raw) == 0 {
		return defaultListLimit
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}

	return limit
}
