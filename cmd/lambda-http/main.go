package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"coursedocs-backend/internal/bootstrap"
	"coursedocs-backend/internal/shared/config"
	"coursedocs-backend/internal/shared/server/respond"
	"coursedocs-backend/internal/shared/telemetry"
)

type proxyFunc func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// lazyHandler builds the router on the first invocation and reuses it for
// the life of the execution environment. A failed build is answered with a
// 503 envelope on every call instead of crashing the runtime.
type lazyHandler struct {
	once  sync.Once
	build func() (*gin.Engine, error)
	proxy proxyFunc
	err   error
}

func (h *lazyHandler) init() {
	router, err := h.build()
	if err != nil {
		h.err = err
		telemetry.Error("lambda_http.bootstrap_failed", map[string]any{"error": err.Error()})
		return
	}
	h.proxy = ginadapter.NewV2(router).ProxyWithContext
}

func (h *lazyHandler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	h.once.Do(h.init)
	if h.err != nil {
		body, _ := json.Marshal(respond.NewErrorResponse("unavailable", "service failed to start", nil))
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusServiceUnavailable,
			Body:       string(body),
			Headers:    map[string]string{"Content-Type": "application/json"},
		}, nil
	}
	return h.proxy(ctx, req)
}

func buildRouter() (*gin.Engine, error) {
	cfg := config.Load()
	telemetry.Setup(cfg.LogLevel, "")
	// Lambda has no in-process consumers; a memory queue would never drain.
	if cfg.QueueBackend == "memory" {
		return nil, errors.New("lambda-http requires QUEUE_BACKEND=sqs, redis or kafka")
	}
	app, err := bootstrap.Build(context.Background(), cfg, bootstrap.RoleAPI)
	if err != nil {
		return nil, err
	}
	return app.Router, nil
}

func main() {
	h := &lazyHandler{build: buildRouter}
	lambda.Start(h.Handle)
}
