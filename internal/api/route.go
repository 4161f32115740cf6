package api

import (
	"Ripple/internal/api/middleware"
	"Ripple/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		imGroup := apiGroup.Group("/im")
		{
			// 实时网关走 token 查询参数鉴权，见 WsHandler.Connect
			imGroup.GET("", group.WSHandler.Connect)

			authGroup := imGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.GET("/conversations/:user_id", group.IMHandler.GetConversationList)
				authGroup.POST("/conversations", group.IMHandler.GetOrCreateConversation)
				authGroup.GET("/messages/:conversation_id", group.IMHandler.GetChatHistory)
				authGroup.POST("/messages", group.IMHandler.SendMessage)
				authGroup.POST("/messages/read", group.IMHandler.MarkViewed)
			}
		}
	}

	return r
}
