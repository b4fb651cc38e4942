package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/health-chat-api/cmd/mainconfig"
	"github.com/wolfman30/health-chat-api/internal/app/bootstrap"
	"github.com/wolfman30/health-chat-api/internal/chat"
	appconfig "github.com/wolfman30/health-chat-api/internal/config"
	"github.com/wolfman30/health-chat-api/internal/conversation"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

// llmtest sends one or more messages through the full chat pipeline using the
// configured LLM provider and an in-memory store. Each argument is a turn in
// the same conversation.
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	messages := os.Args[1:]
	if len(messages) == 0 {
		messages = []string{"I've had a sore throat and a mild fever since yesterday."}
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	chain, err := bootstrap.BuildLLMChain(ctx, cfg, mainconfig.Loader(cfg), logger)
	if err != nil {
		log.Fatalf("failed to build LLM chain: %v", err)
	}
	defer chain.Close()

	svc, err := bootstrap.BuildChatService(cfg, bootstrap.ChatDeps{
		Store:  conversation.NewMemoryStore(),
		LLM:    chain.Client,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to build chat service: %v", err)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("LLM Provider Test (%s)\n", cfg.LLMProvider)
	fmt.Println(strings.Repeat("=", 60))

	var conversationID *int64
	for i, message := range messages {
		fmt.Printf("\n[%d] > %s\n", i+1, message)
		start := time.Now()
		res, err := svc.Handle(ctx, chat.Request{Message: message, ConversationID: conversationID})
		if err != nil {
			fmt.Printf("    ❌ error: %v\n", err)
			os.Exit(1)
		}
		conversationID = res.ConversationID

		fmt.Printf("    risk=%s degraded=%t elapsed=%v\n", res.RiskLevel, res.Degraded, time.Since(start).Round(time.Millisecond))
		fmt.Println(strings.Repeat("-", 60))
		fmt.Println(res.FinalMarkdown)
		for _, q := range res.FollowUpQuestions {
			fmt.Printf("  ? %s\n", q)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("Done!")
}
