package handler

import (
	"net/http"

	"github.com/Gandorini/S-T-Station/middleware"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// GetCurrentUser returns the id the bearer token was issued to
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id": middleware.GetUserID(c),
	})
}
