package reconciliation

import "github.com/gin-gonic/gin"

type IHandler interface {
	RunSweep(c *gin.Context)
	ListRecords(c *gin.Context)
}
