package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewClamps(t *testing.T) {
	assert.Equal(t, Params{Page: 1, Limit: 20, Offset: 0}, New(0, 0))
	assert.Equal(t, Params{Page: 3, Limit: 100, Offset: 200}, New(3, 500))
	assert.Equal(t, Params{Page: 2, Limit: 10, Offset: 10}, New(2, 10))
}

func TestParseQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/api/clients?page=4&limit=abc", nil)

	p := Parse(c)
	assert.Equal(t, 4, p.Page)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, 60, p.Offset)
}
