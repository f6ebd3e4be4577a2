// Package models contains shared data models used across the quality observer codebase.
package models

import "context"

// AIProvider is the core interface that all LLM integrations must implement.
// Judges never call a specific vendor SDK directly; they receive this interface.
type AIProvider interface {
	// Complete sends a single user prompt and returns the model's raw text reply.
	Complete(ctx context.Context, prompt string) (string, error)
	// Name returns the provider identifier (e.g., "openai", "anthropic").
	Name() string
	// Model returns the model identifier requests are sent to.
	Model() string
}
