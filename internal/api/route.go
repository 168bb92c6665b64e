package api

import (
	"Sproutline/internal/api/middleware"
	"Sproutline/internal/pkg/logger"
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

		chatGroup := apiGroup.Group("/chat")
		{
			// WS 在握手参数里自行鉴权
			chatGroup.GET("/ws", group.WSHandler.Connect)

			authGroup := chatGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.POST("/conversations", group.ChatHandler.CreateConversation)
				authGroup.GET("/conversations", group.ChatHandler.GetConversationList)
				authGroup.DELETE("/conversations", group.ChatHandler.DeleteConversation)
				authGroup.POST("/send", group.ChatHandler.SendMessage)
				authGroup.GET("/messages", group.ChatHandler.GetMessages)
				authGroup.POST("/read", group.ChatHandler.MarkRead)
				authGroup.GET("/unread", group.ChatHandler.GetUnreadTotal)
			}
		}
	}

	return r
}
