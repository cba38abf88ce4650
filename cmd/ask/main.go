// Command ask sends a single prompt through the configured chat endpoint and
// prints the reply. It uses the same configuration as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/RichardoC/chatpad/internal/config"
	"github.com/RichardoC/chatpad/internal/llm"
	"github.com/RichardoC/chatpad/internal/models"
	"go.uber.org/zap"
)

func main() {
	model := flag.String("model", "", "model id (defaults to LLM_DEFAULT_MODEL)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	prompt := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: ask [-model id] <prompt>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		logger.Fatal("failed to initialize LLM client", zap.Error(err))
	}

	res := client.Complete(context.Background(), []models.ChatMessage{
		{Role: models.RoleUser, Content: prompt},
	}, *model)
	fmt.Println(res.Text())
	if !res.OK() {
		logger.Error("completion failed", zap.Error(res.Err))
		os.Exit(1)
	}
}
