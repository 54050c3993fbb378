// Package main provides the kbbot CLI for the document Q&A knowledge base.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/timeless-residents/handson-line-works/internal/bot"
	"github.com/timeless-residents/handson-line-works/internal/config"
	"github.com/timeless-residents/handson-line-works/internal/conversation"
	"github.com/timeless-residents/handson-line-works/internal/document"
	"github.com/timeless-residents/handson-line-works/internal/embedding"
	"github.com/timeless-residents/handson-line-works/internal/generation"
	ghclient "github.com/timeless-residents/handson-line-works/internal/github"
	"github.com/timeless-residents/handson-line-works/internal/indexer"
	"github.com/timeless-residents/handson-line-works/internal/rag"
	"github.com/timeless-residents/handson-line-works/internal/vectorstore"
)

const qdrantCollection = "kb_documents"

// Dimension of text-embedding-3-small vectors; a server-backed collection
// needs it up front, the flat index learns it from the first add.
const embeddingDimension = 1536

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kbbot",
	Short: "Document knowledge base Q&A bot",
	Long: `CLI for a RAG question-answering bot over a local document knowledge base.

Documents are chunked, embedded with OpenAI and stored in a file-backed
vector index (or Qdrant). Questions are answered with citations, grounded
in the retrieved chunks, with per-user conversation sessions.

Environment variables:
  OPENAI_API_KEY   OpenAI API key (required for index/ask/search)
  DOCUMENT_DIR     Directory of source documents (default: docs)
  INDEX_PATH       Vector index artifact path (default: data/index.json)
  VECTOR_BACKEND   "flat" or "qdrant" (default: flat)
  QDRANT_HOST      Qdrant hostname (default: localhost)
  QDRANT_PORT      Qdrant gRPC port (default: 6334)
  GITHUB_TOKEN     GitHub token for higher rate limits (optional)`,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index all documents from a directory or a GitHub repository",
	RunE:  runIndex,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Re-index a single document, replacing its previous chunks",
	RunE:  runUpdate,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the index without generating an answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a user's conversation history",
	RunE:  runReset,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete conversation sessions older than the retention period",
	RunE:  runCleanup,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	RunE:  runStats,
}

var (
	flagDir        string
	flagGitHub     string
	flagGitHubPath string
	flagFile       string
	flagUser       string
	flagTopK       int
	flagDays       int
)

func init() {
	indexCmd.Flags().StringVar(&flagDir, "dir", "", "document directory (default: DOCUMENT_DIR)")
	indexCmd.Flags().StringVar(&flagGitHub, "github", "", "GitHub repository as owner/repo")
	indexCmd.Flags().StringVar(&flagGitHubPath, "path", "", "path within the GitHub repository")

	updateCmd.Flags().StringVar(&flagFile, "file", "", "document to re-index")
	_ = updateCmd.MarkFlagRequired("file")

	askCmd.Flags().StringVar(&flagUser, "user", "local", "user ID for the conversation session")
	searchCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, "number of results (default: TOP_K)")

	resetCmd.Flags().StringVar(&flagUser, "user", "local", "user ID")

	cleanupCmd.Flags().IntVar(&flagDays, "days", 0, "retention in days (default: RETENTION_DAYS)")

	rootCmd.AddCommand(indexCmd, updateCmd, askCmd, searchCmd, resetCmd, cleanupCmd, statsCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	cfg = config.Load()
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newEmbedder() (*embedding.Embedder, error) {
	client, err := embedding.NewClient()
	if err != nil {
		return nil, err
	}
	return embedding.NewEmbedder(client, cfg.EmbeddingModel, 0), nil
}

// openBackend returns the vector backend for querying. The flat index must
// already exist on disk; asking before indexing is an error worth a clear
// message.
func openBackend() (vectorstore.Backend, error) {
	if cfg.VectorBackend == "qdrant" {
		return vectorstore.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort, qdrantCollection, embeddingDimension)
	}
	ix, err := vectorstore.Load(cfg.IndexPath)
	if errors.Is(err, vectorstore.ErrIndexNotFound) {
		return nil, fmt.Errorf("no index at %s; run 'kbbot index' first", cfg.IndexPath)
	}
	if err != nil {
		return nil, err
	}
	return ix, nil
}

// indexingBackend returns the backend for ingestion. The flat index is
// loaded if present so repeated runs append rather than start over.
func indexingBackend() (vectorstore.Backend, error) {
	if cfg.VectorBackend == "qdrant" {
		return vectorstore.NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort, qdrantCollection, embeddingDimension)
	}
	ix, err := vectorstore.Load(cfg.IndexPath)
	if errors.Is(err, vectorstore.ErrIndexNotFound) {
		return vectorstore.NewFlatIndex(0), nil
	}
	if err != nil {
		return nil, err
	}
	return ix, nil
}

func newService() (*bot.Service, error) {
	backend, err := openBackend()
	if err != nil {
		return nil, err
	}
	client, err := embedding.NewClient()
	if err != nil {
		return nil, err
	}
	// One OpenAI client serves both embeddings and chat completion.
	embedder := embedding.NewEmbedder(client, cfg.EmbeddingModel, 0)
	generator := generation.NewGenerator(client, cfg.ChatModel, int64(cfg.MaxTokens), cfg.Temperature)

	sessions, err := conversation.NewStore(cfg.MaxTurns, cfg.SessionTimeout, cfg.ConversationDir, logger)
	if err != nil {
		return nil, err
	}

	engine := rag.NewEngine(embedder, generator, backend, cfg.TopK, logger)
	return bot.NewService(engine, sessions, logger), nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	backend, err := indexingBackend()
	if err != nil {
		return err
	}
	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	processor := document.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap, logger)
	pipeline := indexer.NewPipeline(processor, embedder, backend, cfg.IndexPath, logger)

	var result *indexer.IndexResult
	if flagGitHub != "" {
		owner, repo, ok := strings.Cut(flagGitHub, "/")
		if !ok {
			return fmt.Errorf("--github expects owner/repo, got %q", flagGitHub)
		}
		gh, err := ghclient.NewClient()
		if err != nil {
			return err
		}
		fetcher := ghclient.NewFetcher(gh, owner, repo, flagGitHubPath)
		fmt.Printf("Indexing documents from github.com/%s/%s...\n", owner, repo)
		result, err = pipeline.IndexGitHub(ctx, fetcher)
		if err != nil {
			return err
		}
	} else {
		dir := flagDir
		if dir == "" {
			dir = cfg.DocumentDir
		}
		fmt.Printf("Indexing documents from %s...\n", dir)
		result, err = pipeline.IndexDirectory(ctx, dir)
		if err != nil {
			return err
		}
	}

	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Files: %d/%d\n", result.IndexedFiles, result.TotalFiles)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed files:")
		for _, failed := range result.Failed {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}

	fmt.Println()
	fmt.Printf("Total time: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	backend, err := indexingBackend()
	if err != nil {
		return err
	}
	embedder, err := newEmbedder()
	if err != nil {
		return err
	}
	processor := document.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap, logger)
	pipeline := indexer.NewPipeline(processor, embedder, backend, cfg.IndexPath, logger)

	result, err := pipeline.UpdateFile(ctx, flagFile)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %s (%d chunks)\n", flagFile, result.TotalChunks)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	service, err := newService()
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	reply, err := service.Answer(ctx, flagUser, question)
	if err != nil {
		return err
	}

	fmt.Println(reply.Text)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	service, err := newService()
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	citations, err := service.Search(ctx, query, flagTopK)
	if err != nil {
		return err
	}
	if len(citations) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, c := range citations {
		fmt.Printf("%d. %s (score %.3f, updated %s)\n", i+1, c.FileName, c.Score, c.UpdatedAt.Format("2006-01-02"))
		fmt.Printf("   %s\n", c.Preview)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	sessions, err := conversation.NewStore(cfg.MaxTurns, cfg.SessionTimeout, cfg.ConversationDir, logger)
	if err != nil {
		return err
	}
	sessions.Reset(flagUser)
	fmt.Printf("Conversation history cleared for %s\n", flagUser)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	days := flagDays
	if days <= 0 {
		days = cfg.RetentionDays
	}
	sessions, err := conversation.NewStore(cfg.MaxTurns, cfg.SessionTimeout, cfg.ConversationDir, logger)
	if err != nil {
		return err
	}
	removed := sessions.Cleanup(time.Duration(days) * 24 * time.Hour)
	fmt.Printf("Removed %d session(s) older than %d day(s)\n", removed, days)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ix, err := vectorstore.Load(cfg.IndexPath)
	if errors.Is(err, vectorstore.ErrIndexNotFound) {
		fmt.Printf("No index at %s\n", cfg.IndexPath)
		return nil
	}
	if err != nil {
		return err
	}

	stats := ix.Stats()
	fmt.Printf("Index: %s\n", cfg.IndexPath)
	fmt.Printf("  Chunks: %d\n", stats.DocumentCount)
	fmt.Printf("  Dimension: %d\n", stats.Dimension)
	if len(stats.DocumentTypes) > 0 {
		fmt.Println("  By type:")
		for fileType, count := range stats.DocumentTypes {
			fmt.Printf("    %s: %d\n", fileType, count)
		}
	}
	return nil
}
