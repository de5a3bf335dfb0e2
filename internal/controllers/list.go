package controllers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// listParams is the shared page/limit/sort query contract of list endpoints.
type listParams struct {
	All   bool
	Page  int
	Limit int
	Order string
}

func parseList(c *gin.Context, allowedSorts map[string]string, defaultSort string) listParams {
	p := listParams{
		All:   strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1",
		Page:  1,
		Limit: 20,
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Page = n
		}
	}
	sortBy := strings.ToLower(c.DefaultQuery("sort_by", defaultSort))
	sortDir := strings.ToUpper(c.DefaultQuery("sort_dir", "ASC"))
	if sortDir != "ASC" && sortDir != "DESC" {
		sortDir = "ASC"
	}
	sortCol, ok := allowedSorts[sortBy]
	if !ok {
		sortCol = allowedSorts[defaultSort]
	}
	p.Order = fmt.Sprintf("%s %s", sortCol, sortDir)
	return p
}

func (p listParams) meta(total int64) gin.H {
	meta := gin.H{"total": total, "all": p.All}
	if !p.All {
		meta["page"] = p.Page
		meta["limit"] = p.Limit
	}
	return meta
}

func parseID(c *gin.Context, name string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
