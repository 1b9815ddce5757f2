package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"miner-api/admission"
	"miner-api/apiconfig"
	"miner-api/chain"
	"miner-api/inference"
	"miner-api/internal/server/middleware"
	"miner-api/logging"
	"miner-api/miner"
	"miner-api/types"
)

// CallerHotkeyHeader carries the authenticated sender identity set by the
// transport's signature-verifying reverse proxy. It is available before the
// request body has been read, which is what lets the blacklist run
// pre-deserialization.
const CallerHotkeyHeader = "X-Caller-Hotkey"

// PriorityHeader reports the computed scheduling priority back to the caller.
const PriorityHeader = "X-Priority"

// Server is the echo-based axon implementation. The miner core installs its
// blacklist, priority and forward functions via Attach.
type Server struct {
	e             *echo.Echo
	configManager *apiconfig.ConfigManager

	forward     miner.ForwardFunc
	blacklistFn miner.BlacklistFunc
	priorityFn  miner.PriorityFunc
}

func NewServer(configManager *apiconfig.ConfigManager) *Server {
	e := echo.New()
	e.HideBanner = true

	s := &Server{
		e:             e,
		configManager: configManager,
	}

	e.Use(middleware.LoggingMiddleware)
	g := e.Group("/v1/", s.blacklistMiddleware)

	g.GET("status", s.getStatus)
	g.POST("inference", s.postInference)

	return s
}

// Attach installs the miner's handlers. Must be called before Start.
func (s *Server) Attach(forward miner.ForwardFunc, blacklistFn miner.BlacklistFunc, priorityFn miner.PriorityFunc) {
	s.forward = forward
	s.blacklistFn = blacklistFn
	s.priorityFn = priorityFn
}

// Serve announces the endpoint and verifies the chain node is reachable.
func (s *Server) Serve(ctx context.Context, netuid uint32, client chain.Client) error {
	block, err := client.CurrentBlock(ctx)
	if err != nil {
		return errors.Wrap(err, "chain node unreachable while announcing axon")
	}
	logging.Info("Serving axon on network", types.Server,
		"netuid", netuid,
		"externalIp", s.configManager.GetApiConfig().ExternalIp,
		"port", s.configManager.GetApiConfig().Port,
		"block", block)
	return nil
}

func (s *Server) Start() error {
	if s.forward == nil || s.blacklistFn == nil || s.priorityFn == nil {
		return errors.New("axon handlers not attached")
	}
	addr := fmt.Sprintf(":%v", s.configManager.GetApiConfig().Port)
	go func() {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			logging.Error("Axon server terminated", types.Server, "error", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// Echo returns the underlying echo instance, used by transport tests.
func (s *Server) Echo() *echo.Echo {
	return s.e
}

// blacklistMiddleware evaluates the rule chain from headers only, before any
// of the body has been deserialized. Rejected callers get the decision's
// reason; admitted callers continue with their hotkey stored in the context.
func (s *Server) blacklistMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		headerReq := &inference.Request{
			CallerHotkey: c.Request().Header.Get(CallerHotkeyHeader),
		}
		decision := s.blacklistFn(headerReq)
		if decision.Blacklist {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":  "blacklisted",
				"reason": decision.Reason,
			})
		}

		c.Response().Header().Set(PriorityHeader, fmt.Sprintf("%g", s.priorityFn(headerReq)))
		c.Set("caller_hotkey", headerReq.CallerHotkey)
		return next(c)
	}
}

func (s *Server) postInference(c echo.Context) error {
	req := new(inference.Request)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	req.CallerHotkey, _ = c.Get("caller_hotkey").(string)
	if req.Id == "" {
		req.Id = uuid.NewString()
	}

	if err := s.forward(c.Request().Context(), req); err != nil {
		if errors.Is(err, admission.ErrDuplicateRequest) {
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error":  "duplicate",
				"reason": err.Error(),
			})
		}
		logging.Error("Forward handler failed", types.Server, "error", err, "requestId", req.Id)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, req)
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, struct {
		Status string `json:"status"`
		Height int64  `json:"height"`
	}{Status: "ok", Height: s.configManager.GetHeight()})
}
