package restexecutor

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/guestbox/guestbox/cmd/guestbox/model"
	"github.com/guestbox/guestbox/worker"
)

type cmdHandle struct {
	worker worker.Worker
	logger *zap.Logger
}

// NewCmdHandle creates a new command handle
func NewCmdHandle(worker worker.Worker, logger *zap.Logger) Register {
	return &cmdHandle{
		worker: worker,
		logger: logger,
	}
}

func (c *cmdHandle) Register(r *gin.Engine) {
	// Run handle
	r.POST("/run", c.handleRun)
}

func (c *cmdHandle) handleRun(ctx *gin.Context) {
	var req model.Request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.Error(err)
		ctx.AbortWithStatusJSON(http.StatusBadRequest, err.Error())
		return
	}

	if len(req.Cmd) == 0 {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, "no cmd provided")
		return
	}
	r := model.ConvertRequest(&req)
	c.logger.Sugar().Debugf("request: %+v", r)
	rt := <-c.worker.Submit(ctx.Request.Context(), r)
	c.logger.Sugar().Debugf("response: %+v", rt)
	if rt.Error != nil {
		ctx.Error(rt.Error)
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, rt.Error.Error())
		return
	}

	ctx.JSON(http.StatusOK, model.ConvertResponse(rt).Results)
}
