package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize    = 20
	MaxPageSize        = 100
	DefaultMessageSize = 50
	MaxMessageSize     = 200
)

type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
}

// GetPaginationParams extracts page/limit for offset-paged lists.
func GetPaginationParams(c echo.Context) PaginationParams {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("limit"))

	if page <= 0 {
		page = 1
	}

	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
	}
}

type CursorParams struct {
	// After is exclusive; zero means start of the room.
	After int64
	Limit int
}

// GetCursorParams extracts cursor/limit for the message log.
func GetCursorParams(c echo.Context) CursorParams {
	after, _ := strconv.ParseInt(c.QueryParam("cursor"), 10, 64)
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	if after < 0 {
		after = 0
	}
	return CursorParams{After: after, Limit: ClampMessageLimit(limit)}
}

func ClampMessageLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageSize
	}
	if limit > MaxMessageSize {
		return MaxMessageSize
	}
	return limit
}
