package main

import (
	"context"
	"log"

	"github.com/matheus-sup/CRM-sub000/internal/ai"
	"github.com/matheus-sup/CRM-sub000/internal/bot"
	"github.com/matheus-sup/CRM-sub000/internal/config"
	"github.com/matheus-sup/CRM-sub000/internal/database"
	"github.com/matheus-sup/CRM-sub000/internal/store"
	"github.com/matheus-sup/CRM-sub000/internal/whatsapp"
)

// One-off import of the Evolution instance's chat history, e.g. after
// pointing the server at an instance that was already live.
func main() {
	cfg := config.LoadConfig()

	db, err := database.Init(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	st := store.NewStore(db)
	waClient := whatsapp.NewClient(cfg)
	engine := bot.NewEngine(st, waClient, ai.DefaultRegistry(), waClient, nil)

	log.Println("Syncing Evolution chats...")

	result, err := engine.SyncEvolutionChats(context.Background())
	if err != nil {
		log.Fatalf("Sync failed: %v", err)
	}

	log.Printf("Imported %d chats and %d messages", result.ImportedChats, result.ImportedMessages)
	log.Println("DONE!")
}
