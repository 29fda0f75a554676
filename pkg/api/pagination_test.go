package api

import (
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryContext(query string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/batches"+query, nil)
	return c
}

func TestBindQueryAndValidate_PageRequest(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected PageRequest
	}{
		{"defaults", "", PageRequest{Page: 1, PageSize: 20}},
		{"explicit", "?page=3&pageSize=5", PageRequest{Page: 3, PageSize: 5}},
		{"clamped size", "?pageSize=1000", PageRequest{Page: 1, PageSize: 100}},
		{"negative page", "?page=-2", PageRequest{Page: 1, PageSize: 20}},
		{"huge page", "?page=9223372036854775807", PageRequest{Page: MaxPage, PageSize: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var page PageRequest
			require.Nil(t, BindQueryAndValidate(queryContext(tt.query), &page))
			assert.Equal(t, tt.expected, page.Normalize())
		})
	}
}

func TestBindQueryAndValidate_Rejects(t *testing.T) {
	t.Run("non numeric page", func(t *testing.T) {
		var page PageRequest
		appErr := BindQueryAndValidate(queryContext("?page=abc"), &page)
		require.NotNil(t, appErr)
		assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	})

	t.Run("search too long", func(t *testing.T) {
		var filter FilterRequest
		appErr := BindQueryAndValidate(queryContext("?search="+strings.Repeat("a", 101)), &filter)
		require.NotNil(t, appErr)
		assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
		assert.Contains(t, appErr.Details, "search")
	})

	t.Run("filter", func(t *testing.T) {
		var filter FilterRequest
		require.Nil(t, BindQueryAndValidate(queryContext("?search=budi&status=DELIVERED"), &filter))
		assert.Equal(t, FilterRequest{Search: "budi", Status: "DELIVERED"}, filter)
	})
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, Slice(items, PageRequest{Page: 1, PageSize: 2}))
	assert.Equal(t, []int{5}, Slice(items, PageRequest{Page: 3, PageSize: 2}))
	assert.Empty(t, Slice(items, PageRequest{Page: 4, PageSize: 2}))
}

func TestSlice_PageFarBeyondTheEnd(t *testing.T) {
	items := []int{1, 2, 3}

	assert.NotPanics(t, func() {
		assert.Empty(t, Slice(items, PageRequest{Page: math.MaxInt64, PageSize: 20}))
		assert.Empty(t, Slice(items, PageRequest{Page: MaxPage, PageSize: MaxPageSize}))
		assert.Empty(t, Slice(items, PageRequest{Page: 1, PageSize: 0}))
	})
}

func TestNewPageResponse(t *testing.T) {
	resp := NewPageResponse([]string{"a", "b"}, 2, 2, 5)

	assert.Equal(t, int64(3), resp.TotalPages)
	assert.True(t, resp.HasNext)
	assert.True(t, resp.HasPrev)

	empty := NewPageResponse[string](nil, 1, 20, 0)
	assert.Equal(t, int64(1), empty.TotalPages)
	assert.NotNil(t, empty.Data)
	assert.False(t, empty.HasNext)
}
