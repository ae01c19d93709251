package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type orderedMod struct {
	name  string
	prio  int
	order *[]string
}

func (m orderedMod) Priority() int { return m.prio }

func (m orderedMod) MountAPI(g *gin.RouterGroup) {
	*m.order = append(*m.order, m.name)
	g.GET("/"+m.name, func(c *gin.Context) { c.String(http.StatusOK, m.name) })
}

func TestRegistry_MountsByPriority(t *testing.T) {
	var order []string
	reg := NewRegistry(
		orderedMod{name: "late", prio: 50, order: &order},
		nil,
		orderedMod{name: "early", prio: 5, order: &order},
	)
	r := NewAPIEngine(zap.NewNop(), reg, Options{Mode: gin.TestMode})
	assert.Equal(t, []string{"early", "late"}, order)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/late", nil))
	assert.Equal(t, "late", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
