// Package providers registers the built-in LLM provider factories.
//
// Import this package to register the factories with the global registry:
//
//	import _ "github.com/flowwright/flowwright/pkg/llm/providers"
//
// Importing registers factories but does not instantiate providers; call
// llm.New with credentials to build one.
package providers

import (
	"github.com/flowwright/flowwright/pkg/llm"
)

func init() {
	// Anthropic - direct Messages API access for Claude models
	llm.RegisterFactory("anthropic", NewAnthropic)

	// OpenAI - chat completions API, also covers compatible gateways via
	// a BaseURL override
	llm.RegisterFactory("openai", NewOpenAI)

	// Bedrock - Claude models through Amazon Bedrock with SigV4 auth
	llm.RegisterFactory("bedrock", NewBedrock)
}
