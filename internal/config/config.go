// Package config loads the bot's runtime configuration from environment
// variables, with sensible defaults for local development.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds every runtime setting of the bot and its indexing tools.
type Config struct {
	// Document ingestion
	DocumentDir  string
	IndexPath    string
	ChunkSize    int
	ChunkOverlap int

	// Retrieval
	TopK          int
	VectorBackend string // "flat" or "qdrant"
	QdrantHost    string
	QdrantPort    int

	// Conversation sessions
	ConversationDir string
	MaxTurns        int
	SessionTimeout  time.Duration
	RetentionDays   int

	// OpenAI
	EmbeddingModel string
	ChatModel      string
	MaxTokens      int
	Temperature    float64
}

// Load reads configuration from the environment. Missing variables fall
// back to defaults; OPENAI_API_KEY is checked by the embedding client, not
// here, so commands that never call the API work without it.
func Load() *Config {
	return &Config{
		DocumentDir:  getEnv("DOCUMENT_DIR", "docs"),
		IndexPath:    getEnv("INDEX_PATH", "data/index.json"),
		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		TopK:          getEnvInt("TOP_K", 5),
		VectorBackend: getEnv("VECTOR_BACKEND", "flat"),
		QdrantHost:    getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:    getEnvInt("QDRANT_PORT", 6334),

		ConversationDir: getEnv("CONVERSATION_DIR", "data/conversations"),
		MaxTurns:        getEnvInt("MAX_TURNS", 10),
		SessionTimeout:  time.Duration(getEnvInt("SESSION_TIMEOUT_MINUTES", 60)) * time.Minute,
		RetentionDays:   getEnvInt("RETENTION_DAYS", 30),

		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		ChatModel:      getEnv("CHAT_MODEL", "gpt-4o"),
		MaxTokens:      getEnvInt("MAX_TOKENS", 1024),
		Temperature:    getEnvFloat("TEMPERATURE", 0.2),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
