package transporthttp

import (
	"github.com/gin-gonic/gin"
)

type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

func writeProblem(c *gin.Context, status int, title, detail string, errs map[string][]string) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(status, Problem{
		Title:  title,
		Status: status,
		Detail: detail,
		Errors: errs,
	})
}
