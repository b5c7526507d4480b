// Package api exposes the voice session over HTTP for headless use.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/logger"
	"tutorvoice/internal/usecase"
)

var log = logger.With("api")

// Controller is the subset of the session controller the API drives.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	SetVoice(ctx context.Context, voice string) error
	ClearError(ctx context.Context) error
	Status() domain.Status
	Capability() domain.CapabilityReport
}

// API handles HTTP control endpoints.
type API struct {
	controller Controller
	events     *Broadcaster
}

func NewAPI(controller Controller, events *Broadcaster) *API {
	return &API{controller: controller, events: events}
}

// TextRequest is the body of POST /session/text.
type TextRequest struct {
	Text string `json:"text" binding:"required"`
}

// VoiceRequest is the body of POST /session/voice.
type VoiceRequest struct {
	Voice string `json:"voice" binding:"required"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Error   *domain.VoiceError `json:"error,omitempty"`
}

// StatusResponse pairs the session snapshot with the capability report.
type StatusResponse struct {
	domain.Status
	Capability domain.CapabilityReport `json:"capability"`
}

func (a *API) Connect(c *gin.Context) {
	a.respond(c, a.controller.Connect(c.Request.Context()))
}

func (a *API) Disconnect(c *gin.Context) {
	a.respond(c, a.controller.Disconnect(c.Request.Context()))
}

func (a *API) StartListening(c *gin.Context) {
	a.respond(c, a.controller.StartListening(c.Request.Context()))
}

func (a *API) StopListening(c *gin.Context) {
	a.respond(c, a.controller.StopListening(c.Request.Context()))
}

func (a *API) ClearError(c *gin.Context) {
	a.respond(c, a.controller.ClearError(c.Request.Context()))
}

func (a *API) SendText(c *gin.Context) {
	var req TextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Status: "error", Message: "invalid request: " + err.Error()})
		return
	}
	a.respond(c, a.controller.SendText(c.Request.Context(), req.Text))
}

func (a *API) SetVoice(c *gin.Context) {
	var req VoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Status: "error", Message: "invalid request: " + err.Error()})
		return
	}
	a.respond(c, a.controller.SetVoice(c.Request.Context(), req.Voice))
}

func (a *API) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:     a.controller.Status(),
		Capability: a.controller.Capability(),
	})
}

// Events streams session events as server-sent events until the client
// goes away.
func (a *API) Events(c *gin.Context) {
	events, cancel := a.events.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Current state first so the client never starts blind.
	c.SSEvent(string(domain.EventState), domain.Event{Type: domain.EventState, State: a.controller.Status().State})
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(event.Type), event)
			c.Writer.Flush()
		}
	}
}

func (a *API) respond(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, StatusResponse{
			Status:     a.controller.Status(),
			Capability: a.controller.Capability(),
		})
		return
	}

	status := http.StatusInternalServerError
	resp := ErrorResponse{Status: "error", Message: err.Error()}

	var verr *domain.VoiceError
	switch {
	case errors.Is(err, usecase.ErrEmptyText), errors.Is(err, usecase.ErrEmptyVoice):
		status = http.StatusBadRequest
	case errors.Is(err, usecase.ErrControllerClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	case errors.As(err, &verr):
		resp.Error = verr
		status = http.StatusConflict
		if verr.Kind == domain.ErrorKindUnsupported {
			status = http.StatusNotImplemented
		}
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, resp)
}
