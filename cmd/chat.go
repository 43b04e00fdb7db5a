package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"sitechat/internal/llm"
	"sitechat/internal/pipeline"
	"sitechat/internal/rag"
	"sitechat/internal/store"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive console chat over the indexed website",
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		fmt.Printf("%s not found in environment.\nEnter your API key: ", cfg.LLM.APIKeyEnv)
		if !scanner.Scan() {
			return fmt.Errorf("no API key provided")
		}
		apiKey = strings.TrimSpace(scanner.Text())
		if apiKey == "" {
			return fmt.Errorf("no API key provided")
		}
	}

	ctx := cmd.Context()
	emb := newEmbedder(cfg)

	// Build the index when missing; offer to rebuild when present.
	if _, err := os.Stat(cfg.IndexPath); err == nil {
		fmt.Print("Index found. Re-scrape the website? (y/n): ")
		if scanner.Scan() && strings.EqualFold(strings.TrimSpace(scanner.Text()), "y") {
			if _, err := pipeline.Build(ctx, cfg, emb); err != nil {
				return err
			}
		}
	} else {
		fmt.Println("No existing index found. Scraping website...")
		if _, err := pipeline.Build(ctx, cfg, emb); err != nil {
			return err
		}
	}

	ix, err := store.Open(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer ix.Close()

	engine := &rag.Engine{
		Index:    ix,
		Embedder: emb,
		LLM:      newLLM(cfg, apiKey),
		SiteName: cfg.SiteName,
		TopK:     cfg.Retrieval.TopK,
	}

	count, _ := ix.Count()
	fmt.Println()
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s chatbot ready!", cfg.SiteName)))
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d chunks indexed. Type 'quit', 'exit', or 'bye' to end.", count)))
	fmt.Println()

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)

	var history []llm.Message
	for {
		fmt.Print(promptStyle.Render("You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(input) {
		case "quit", "exit", "bye":
			fmt.Println("Chatbot: Goodbye! Have a great day!")
			return nil
		}
		if input == "" {
			continue
		}

		answer, sources, err := engine.Respond(ctx, input, history)
		if err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
			continue
		}

		fmt.Println("Chatbot:")
		printAnswer(renderer, answer)
		if len(sources) > 0 {
			fmt.Println(dimStyle.Render("Sources: " + strings.Join(sources, ", ")))
		}
		fmt.Println()

		history = append(history, llm.Message{Role: llm.RoleUser, Content: input})
		history = append(history, llm.Message{Role: llm.RoleAssistant, Content: answer})
	}
	return scanner.Err()
}

// printAnswer renders the model's markdown when a renderer is available and
// falls back to plain text otherwise.
func printAnswer(renderer *glamour.TermRenderer, answer string) {
	if renderer != nil {
		if out, err := renderer.Render(answer); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(answer)
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
