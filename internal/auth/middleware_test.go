package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/easildur24/investorcenter.ai-sub015/internal/domain"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func init() {
	gin.SetMode(gin.TestMode)
}

func testManager() *Manager {
	return NewManager(testSecret, time.Hour)
}

func makeValidToken(t *testing.T, m *Manager, userID, email string, isAdmin bool) string {
	t.Helper()
	token, _, err := m.Issue(&domain.UserAuth{ID: userID, Email: email, IsAdmin: isAdmin})
	assert.NoError(t, err)
	return token
}

func TestAuthMiddleware_NoAuthorizationHeader(t *testing.T) {
	m := testManager()

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.GET("/test", m.AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "Authorization header required", resp["error"])
}

func TestAuthMiddleware_InvalidFormat_NoBearerPrefix(t *testing.T) {
	m := testManager()

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.GET("/test", m.AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Token abc123")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Contains(t, resp["error"], "Invalid authorization header format")
}

func TestAuthMiddleware_InvalidFormat_NoSpace(t *testing.T) {
	m := testManager()

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.GET("/test", m.AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "BearerNoSpace")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	m := testManager()

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.GET("/test", m.AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "Invalid or expired token", resp["error"])
}

func TestAuthMiddleware_TokenSignedWithDifferentSecret(t *testing.T) {
	m := testManager()
	other := NewManager("another-secret-that-is-32-chars-long!!", time.Hour)

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.GET("/test", m.AuthMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	token := makeValidToken(t, other, "user-123", "test@example.com", false)
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	m := testManager()

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	var capturedUserID, capturedEmail string
	var capturedIsAdmin bool

	r.GET("/test", m.AuthMiddleware(), func(c *gin.Context) {
		uid, _ := c.Get(ContextUserID)
		capturedUserID = uid.(string)
		em, _ := c.Get(ContextEmail)
		capturedEmail = em.(string)
		isAdmin, _ := c.Get(ContextIsAdmin)
		capturedIsAdmin = isAdmin.(bool)
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	token := makeValidToken(t, m, "user-123", "test@example.com", false)
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-123", capturedUserID)
	assert.Equal(t, "test@example.com", capturedEmail)
	assert.False(t, capturedIsAdmin)
}

func TestAuthMiddleware_ValidAdminToken(t *testing.T) {
	m := testManager()

	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	var capturedIsAdmin bool

	r.GET("/test", m.AuthMiddleware(), func(c *gin.Context) {
		isAdmin, _ := c.Get(ContextIsAdmin)
		capturedIsAdmin = isAdmin.(bool)
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	token := makeValidToken(t, m, "admin-456", "admin@example.com", true)
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, capturedIsAdmin)
}

// ==================== AdminMiddleware Tests ====================

func TestAdminMiddleware_NoUserID(t *testing.T) {
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	// No auth middleware — user_id not set
	r.GET("/test", AdminMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminMiddleware_NotAdmin(t *testing.T) {
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.GET("/test", func(c *gin.Context) {
		c.Set(ContextUserID, "user-123")
		c.Set(ContextIsAdmin, false)
		c.Next()
	}, AdminMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminMiddleware_IsAdmin(t *testing.T) {
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.GET("/test", func(c *gin.Context) {
		c.Set(ContextUserID, "admin-456")
		c.Set(ContextIsAdmin, true)
		c.Next()
	}, AdminMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminMiddleware_IsAdminNotBool(t *testing.T) {
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)

	r.GET("/test", func(c *gin.Context) {
		c.Set(ContextUserID, "user-123")
		c.Set(ContextIsAdmin, "yes")
		c.Next()
	}, AdminMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

// ==================== GetUserIDFromContext Tests ====================

func TestGetUserIDFromContext_Exists(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(ContextUserID, "user-123")

	userID, ok := GetUserIDFromContext(c)
	assert.True(t, ok)
	assert.Equal(t, "user-123", userID)
}

func TestGetUserIDFromContext_NotExists(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	userID, ok := GetUserIDFromContext(c)
	assert.False(t, ok)
	assert.Equal(t, "", userID)
}
