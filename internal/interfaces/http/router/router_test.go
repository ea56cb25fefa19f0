package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/erp/invoicing/docs"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func serve(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	guard := func(c *gin.Context) {
		if c.GetHeader("X-Tenant-ID") == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}

	NewRouter(engine).
		Use(guard).
		Public(RegistrarFunc(func(rg *gin.RouterGroup) {
			rg.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		})).
		Register(RegistrarFunc(func(rg *gin.RouterGroup) {
			rg.GET("/invoices", func(c *gin.Context) { c.String(http.StatusOK, "list") })
		})).
		Setup()

	w := serve(engine, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = serve(engine, "/api/v1/invoices")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	req.Header.Set("X-Tenant-ID", "t")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "list", w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(engine, "/api/v1/health").Code)
}

func TestSwagger(t *testing.T) {
	engine := gin.New()
	NewRouter(engine).
		Public(Swagger(func(c *gin.Context) { c.Next() })).
		Setup()

	w := serve(engine, "/swagger/doc.json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"/invoices/{id}/payments"`)
	assert.Contains(t, w.Body.String(), `"basePath": "/api/v1"`)

	w = serve(engine, "/swagger/index.html")
	assert.Equal(t, http.StatusOK, w.Code)

	closed := gin.New()
	NewRouter(closed).
		Public(Swagger(func(c *gin.Context) { c.AbortWithStatus(http.StatusNotFound) })).
		Setup()
	assert.Equal(t, http.StatusNotFound, serve(closed, "/swagger/doc.json").Code)
}
