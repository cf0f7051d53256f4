package restexecutor

import "github.com/gin-gonic/gin"

// Register registers the handler on a gin engine
type Register interface {
	Register(*gin.Engine)
}
