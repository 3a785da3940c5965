package main

import (
	"log"

	"github.com/matheus-sup/CRM-sub000/internal/ai"
	"github.com/matheus-sup/CRM-sub000/internal/api"
	"github.com/matheus-sup/CRM-sub000/internal/bot"
	"github.com/matheus-sup/CRM-sub000/internal/config"
	"github.com/matheus-sup/CRM-sub000/internal/database"
	"github.com/matheus-sup/CRM-sub000/internal/store"
	"github.com/matheus-sup/CRM-sub000/internal/webhook"
	"github.com/matheus-sup/CRM-sub000/internal/whatsapp"
	"github.com/matheus-sup/CRM-sub000/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()

	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	st := store.NewStore(db)
	waClient := whatsapp.NewClient(cfg)
	hub := ws.NewHub()
	go hub.Run()

	engine := bot.NewEngine(st, waClient, ai.DefaultRegistry(), waClient, hub)

	webhookHandler := webhook.NewHandler(engine)
	chatHandler := api.NewChatHandler(st, engine)
	ruleHandler := api.NewRuleHandler(st)
	conversationHandler := api.NewConversationHandler(st, engine)

	// Webhook Routes
	r.POST("/webhook", webhookHandler.HandleEvent)

	// Dashboard API Routes
	apiGroup := r.Group("/api")
	{
		chatGroup := apiGroup.Group("/chat")
		{
			chatGroup.GET("/config", chatHandler.GetConfig)
			chatGroup.PUT("/config", chatHandler.SaveConfig)
			chatGroup.POST("/toggle", chatHandler.ToggleBot)
			chatGroup.POST("/simulate", chatHandler.Simulate)
			chatGroup.POST("/sync", chatHandler.SyncChats)

			chatGroup.GET("/rules", ruleHandler.GetRules)
			chatGroup.POST("/rules", ruleHandler.CreateRule)
			chatGroup.PUT("/rules/:id", ruleHandler.UpdateRule)
			chatGroup.DELETE("/rules/:id", ruleHandler.DeleteRule)
			chatGroup.POST("/rules/:id/toggle", ruleHandler.ToggleRule)

			chatGroup.GET("/conversations", conversationHandler.GetConversations)
			chatGroup.GET("/conversations/:phone/messages", conversationHandler.GetMessages)
			chatGroup.POST("/conversations/:phone/resume", conversationHandler.ResumeBot)
			chatGroup.POST("/conversations/:phone/send", conversationHandler.SendMessage)
		}
	}

	// WebSocket endpoint for live dashboard updates
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
