// Package llm defines the model interface used by the browser agent.
//
// Example usage:
//
//	provider, err := openai.NewProvider(os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o-mini"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []*llm.Message{
//	    llm.NewSystemMessage("Reply with one JSON action."),
//	    llm.NewUserMessage(observation),
//	})
package llm

import "context"

// Provider defines the interface for LLM integrations.
//
// Providers only talk to the model. Turning replies into browser actions
// and keeping the conversation is the agent's job.
type Provider interface {
	// Complete sends messages to the LLM and returns the full response.
	Complete(ctx context.Context, messages []*Message) (*Message, error)

	// GetModel returns the model name being used.
	GetModel() string
}

// ProviderFunc adapts a completion function to Provider.
type ProviderFunc func(ctx context.Context, messages []*Message) (*Message, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, messages []*Message) (*Message, error) {
	return f(ctx, messages)
}

// GetModel implements Provider.
func (f ProviderFunc) GetModel() string { return "func" }
