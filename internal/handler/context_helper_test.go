package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PixlGalaxy/EagleDocs/internal/middleware"
	"github.com/PixlGalaxy/EagleDocs/internal/models"
)

func TestRequireCaller(t *testing.T) {
	c, w := newChatContext(http.MethodGet, "/chats", nil, studentClaims())
	claims, ok := requireCaller(c)
	require.True(t, ok)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name  string
		value interface{}
	}{
		{name: "missing"},
		{name: "wrong type", value: "user-1"},
		{name: "blank subject", value: &models.JWTClaims{Role: models.RoleStudent}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, w := newChatContext(http.MethodGet, "/chats", nil, nil)
			if tc.value != nil {
				c.Set(middleware.ContextUserKey, tc.value)
			}
			_, ok := requireCaller(c)
			assert.False(t, ok)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.True(t, c.IsAborted())
		})
	}
}
