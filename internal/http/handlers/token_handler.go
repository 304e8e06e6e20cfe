// Device token HTTP handlers.
//
// This file exposes REST endpoints for the push-token registry:
//   - POST /fcm/token        (register a device token)
//   - GET  /fcm/token/stats  (registry totals)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RegisterTokenRequest is the JSON payload for registering a device token.
type RegisterTokenRequest struct {
	// Token is the FCM device registration token.
	Token string `json:"token" binding:"required,min=1,max=4096" example:"fcm-registration-token"`
}

// RegisterTokenResponse acknowledges a token registration.
type RegisterTokenResponse struct {
	Status string `json:"status" example:"registered"`
}

// RegisterToken godoc
// @ID          registerToken
// @Summary     Register a device token
// @Description Stores an FCM device token and subscribes it to the broadcast topic. Registering the same token again is a no-op.
// @Tags        Tokens
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterTokenRequest  true  "Token payload"
//
// @Success     200  {object}  handlers.RegisterTokenResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /fcm/token [post]
func (h *Handlers) RegisterToken(c *gin.Context) {
	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token must not be blank")
		return
	}

	if err := h.tokenSvc.Register(c.Request.Context(), token); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeRegisterFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, RegisterTokenResponse{Status: "registered"})
}

// TokenStats godoc
// @ID          tokenStats
// @Summary     Token registry totals
// @Tags        Tokens
// @Produce     json
//
// @Success     200  {object}  services.TokenStats
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /fcm/token/stats [get]
func (h *Handlers) TokenStats(c *gin.Context) {
	st, err := h.tokenSvc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, st)
}
