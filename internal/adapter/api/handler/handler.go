package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

func getUserIDFromContext(c echo.Context) string {
	if uid, ok := c.Get("uid").(string); ok {
		return uid
	}
	return ""
}

func queryBool(c echo.Context, key string) bool {
	v, _ := strconv.ParseBool(c.QueryParam(key))
	return v
}
