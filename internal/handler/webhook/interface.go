package webhook

import "github.com/gin-gonic/gin"

type IHandler interface {
	Receive(c *gin.Context)
	ReceiveDetected(c *gin.Context)
}
