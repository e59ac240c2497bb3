// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api serves the component tree of a Model over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/decl"
	"github.com/united-manufacturing-hub/component-manager/pkg/moniker"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
	"github.com/united-manufacturing-hub/component-manager/pkg/sentry"
)

// DefaultRequestTimeout bounds how long a request waits on an action. The
// action itself keeps running when the wait gives up.
const DefaultRequestTimeout = 30 * time.Second

// Tree is the part of component.Model the API drives.
type Tree interface {
	Snapshot() component.InstanceSnapshot
	Find(target moniker.Moniker) (*component.ComponentInstance, error)
	StartInstance(ctx context.Context, target moniker.Moniker, reason component.StartReason) error
	StopInstance(ctx context.Context, target moniker.Moniker) error
	ShutdownInstance(ctx context.Context, target moniker.Moniker) error
	DestroyInstance(ctx context.Context, target moniker.Moniker) error
	CreateChild(ctx context.Context, parent moniker.Moniker, collection string, child decl.Child, args component.CreateChildArgs) (moniker.ChildMoniker, error)
}

// ActionRequest names the instance an action applies to.
type ActionRequest struct {
	Moniker string `json:"moniker"`
}

// CreateChildRequest describes a dynamic child to add below Parent.
type CreateChildRequest struct {
	Parent          string                  `json:"parent"`
	Collection      string                  `json:"collection"`
	Name            string                  `json:"name"`
	URL             string                  `json:"url"`
	Environment     string                  `json:"environment,omitempty"`
	OnTerminate     decl.OnTerminate        `json:"onTerminate,omitempty"`
	NumberedHandles []runner.NumberedHandle `json:"numberedHandles,omitempty"`
	DynamicOffers   []decl.Offer            `json:"dynamicOffers,omitempty"`
}

type CreateChildResponse struct {
	Moniker string `json:"moniker"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	tree           Tree
	router         *gin.Engine
	logger         *zap.SugaredLogger
	requestTimeout time.Duration
}

// NewServer registers the routes on a fresh gin engine. A zero timeout
// means DefaultRequestTimeout.
func NewServer(tree Tree, requestTimeout time.Duration, logger *zap.SugaredLogger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		tree:           tree,
		router:         gin.New(),
		logger:         logger,
		requestTimeout: requestTimeout,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/healthz", s.handleHealth)

	v1 := s.router.Group("/v1")
	v1.GET("/tree", s.handleTree)
	v1.GET("/instances", s.handleInstance)
	v1.POST("/instances/:action", s.handleAction)
	v1.POST("/children", s.handleCreateChild)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr in the background. The caller owns shutdown
// of the returned server.
func (s *Server) ListenAndServe(addr string) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Infow("api_listening", "addr", addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeError, s.logger)
		}
	}()

	return server
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.logger.Debugw("api_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// writeJSON encodes with go-json instead of gin's default encoder.
func (s *Server) writeJSON(c *gin.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Errorw("api_encode_failed", "error", err)
		c.Status(http.StatusInternalServerError)

		return
	}

	c.Data(status, "application/json; charset=utf-8", data)
}

func (s *Server) writeError(c *gin.Context, err error) {
	s.writeJSON(c, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var structural *component.StructuralError

	switch {
	case errors.Is(err, component.ErrInstanceNotFound):
		return http.StatusNotFound
	case errors.Is(err, moniker.ErrInvalidName), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, component.ErrInstanceAlreadyExists),
		errors.Is(err, component.ErrInstanceShutDown),
		errors.Is(err, component.ErrInstanceDestroyed):
		return http.StatusConflict
	case errors.As(err, &structural):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func (s *Server) decode(c *gin.Context, v any) error {
	body, err := c.GetRawData()
	if err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTree(c *gin.Context) {
	s.writeJSON(c, http.StatusOK, s.tree.Snapshot())
}

func (s *Server) handleInstance(c *gin.Context) {
	target, err := moniker.Parse(c.DefaultQuery("moniker", "/"))
	if err != nil {
		s.writeError(c, err)

		return
	}

	inst, err := s.tree.Find(target)
	if err != nil {
		s.writeError(c, err)

		return
	}

	s.writeJSON(c, http.StatusOK, inst.Snapshot())
}

func (s *Server) handleAction(c *gin.Context) {
	var req ActionRequest
	if err := s.decode(c, &req); err != nil {
		s.writeError(c, err)

		return
	}

	target, err := moniker.Parse(req.Moniker)
	if err != nil {
		s.writeError(c, err)

		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	action := c.Param("action")

	switch action {
	case "start":
		err = s.tree.StartInstance(ctx, target, component.StartReasonDebug)
	case "stop":
		err = s.tree.StopInstance(ctx, target)
	case "shutdown":
		err = s.tree.ShutdownInstance(ctx, target)
	case "destroy":
		err = s.tree.DestroyInstance(ctx, target)
	default:
		s.writeJSON(c, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("unknown action %q", action)})

		return
	}

	if err != nil {
		s.logger.Infow("api_action_failed", "action", action, "moniker", req.Moniker, "error", err)
		s.writeError(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleCreateChild(c *gin.Context) {
	var req CreateChildRequest
	if err := s.decode(c, &req); err != nil {
		s.writeError(c, err)

		return
	}

	if req.Parent == "" {
		req.Parent = "/"
	}

	parent, err := moniker.Parse(req.Parent)
	if err != nil {
		s.writeError(c, err)

		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	child := decl.Child{
		Name:        req.Name,
		URL:         req.URL,
		Startup:     decl.StartupLazy,
		Environment: req.Environment,
		OnTerminate: req.OnTerminate,
	}

	cm, err := s.tree.CreateChild(ctx, parent, req.Collection, child, component.CreateChildArgs{
		NumberedHandles: req.NumberedHandles,
		DynamicOffers:   req.DynamicOffers,
	})
	if err != nil {
		s.writeError(c, err)

		return
	}

	s.writeJSON(c, http.StatusCreated, CreateChildResponse{Moniker: parent.Child(cm).InstancedString()})
}
