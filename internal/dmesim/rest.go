package dmesim

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// TokenServerPath is the REST route of the built-in token server.
const TokenServerPath = "/its"

// errorBody is the JSON body of every failed REST call.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError renders a gRPC status error with its mapped HTTP status.
func writeError(c *gin.Context, err error) {
	st := status.Convert(err)
	c.AbortWithStatusJSON(runtime.HTTPStatusFromCode(st.Code()), errorBody{
		Code:    int(st.Code()),
		Message: st.Message(),
	})
}

// handle adapts an Engine operation to a JSON POST handler.
func handle[Req, Reply any](fn func(context.Context, *Req) (*Reply, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, status.Error(codes.InvalidArgument, "invalid request body: "+err.Error()))
			return
		}
		reply, err := fn(WithPeer(c.Request.Context(), c.ClientIP()), &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, reply)
	}
}

// RouterOptions tunes the REST surface.
type RouterOptions struct {
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter builds the REST surface: every matching engine API under its
// /v1 path, the token server, /healthz and /metrics. ctx bounds the rate
// limiter's background cleanup.
func NewRouter(ctx context.Context, e *Engine, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(e.logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Location"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(e.metrics.PrometheusMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "dme-sim"})
	})
	r.GET("/metrics", e.metrics.MetricsHandler())

	api := r.Group("", e.rateLimit(ctx, opts.RateLimitRPS, opts.RateLimitBurst))
	api.GET(TokenServerPath, func(c *gin.Context) {
		c.Redirect(http.StatusSeeOther, e.IssueVerifyToken(c.Query("followURL")))
	})
	api.POST(dme.RegisterClientAPI.Path, handle(e.RegisterClient))
	api.POST(dme.VerifyLocationAPI.Path, handle(e.VerifyLocation))
	api.POST(dme.FindCloudletAPI.Path, handle(e.FindCloudlet))
	api.POST(dme.GetLocationAPI.Path, handle(e.GetLocation))
	api.POST(dme.GetAppInstListAPI.Path, handle(e.GetAppInstList))
	api.POST(dme.DynamicLocGroupAPI.Path, handle(e.AddUserToGroup))
	api.POST(dme.GetFqdnListAPI.Path, handle(e.GetFqdnList))
	api.POST(dme.QosPositionKpiAPI.Path, handle(e.GetQosPositionKpi))

	r.NoRoute(func(c *gin.Context) {
		writeError(c, status.Errorf(codes.Unimplemented, "no route %s %s", c.Request.Method, c.Request.URL.Path))
	})
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
