package tenant

import "github.com/gin-gonic/gin"

type IHandler interface {
	Onboard(c *gin.Context)
	CreatePartition(c *gin.Context)
	GetPartition(c *gin.Context)
	GetRule(c *gin.Context)
	ReplaceRule(c *gin.Context)
	TriggerScheduledConversion(c *gin.Context)
}
