package utils

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func GetPaginationParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	return page, pageSize
}

// GetSortParam parses a "-prefixed" sort query into column and direction,
// restricted to the allowed column names.
func GetSortParam(c *gin.Context, defaultColumn string, allowed ...string) (string, bool) {
	raw := c.DefaultQuery("sort", defaultColumn)
	desc := strings.HasPrefix(raw, "-")
	column := strings.TrimPrefix(raw, "-")

	for _, a := range allowed {
		if column == a {
			return column, desc
		}
	}
	return defaultColumn, false
}
