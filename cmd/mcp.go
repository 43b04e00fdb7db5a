package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"sitechat/internal/embedder"
	"sitechat/internal/rag"
	"sitechat/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing site search and Q&A tools",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ix, err := store.Open(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("open index: %w\nRun 'sitechat scrape' first to build the index", err)
	}
	defer ix.Close()

	emb := newEmbedder(cfg)

	s := mcpserver.NewMCPServer("sitechat", "1.0.0", mcpserver.WithToolCapabilities(false))
	s.AddTool(searchSiteTool(), makeSearchHandler(ix, emb))

	// The ask tool needs the chat model, so it is only registered when a
	// credential is available. Search works without one.
	if apiKey := os.Getenv(cfg.LLM.APIKeyEnv); apiKey != "" {
		engine := &rag.Engine{
			Index:    ix,
			Embedder: emb,
			LLM:      newLLM(cfg, apiKey),
			SiteName: cfg.SiteName,
			TopK:     cfg.Retrieval.TopK,
		}
		s.AddTool(askSiteTool(), makeAskHandler(engine))
	}

	return mcpserver.ServeStdio(s)
}

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func searchSiteTool() mcp.Tool {
	return mcp.NewTool("search_site",
		mcp.WithDescription("Semantically search the indexed website. Returns the most relevant text passages with their source URLs."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language query to search the site content"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of passages to return (default 3)"),
		),
	)
}

func askSiteTool() mcp.Tool {
	return mcp.NewTool("ask_site",
		mcp.WithDescription("Ask a question about the website and get an answer grounded in its indexed content, with cited source URLs."),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{
			ReadOnlyHint:    mcp.ToBoolPtr(true),
			DestructiveHint: mcp.ToBoolPtr(false),
			IdempotentHint:  mcp.ToBoolPtr(false),
			OpenWorldHint:   mcp.ToBoolPtr(true),
		}),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question to answer from the site's indexed content"),
		),
	)
}

func makeSearchHandler(ix *store.Index, emb embedder.Embedder) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		if query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		k := req.GetInt("k", rag.DefaultTopK)
		if k <= 0 {
			k = rag.DefaultTopK
		}

		vec, err := emb.EmbedSingle(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("embed query failed: %v", err)), nil
		}
		results, err := ix.Search(vec, k)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcp.NewToolResultText("No matching passages found."), nil
		}

		contextBlock, _ := rag.FormatContext(results)
		return mcp.NewToolResultText(contextBlock), nil
	}
}

func makeAskHandler(engine *rag.Engine) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question := req.GetString("question", "")

		answer, sources, err := engine.Respond(ctx, question, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		var sb strings.Builder
		sb.WriteString(answer)
		if len(sources) > 0 {
			sb.WriteString("\n\nSources:\n")
			for _, src := range sources {
				fmt.Fprintf(&sb, "- %s\n", src)
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
