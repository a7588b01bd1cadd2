package llm

import (
	"testing"

	"omochi-bot/internal/config"
)

func TestFactory_CreateClient(t *testing.T) {
	f := &Factory{OpenaiAPIKey: "sk-test", OpenaiModel: "gpt-4o-mini"}
	c, err := f.CreateClient("OpenAI")
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := c.(*OpenAIClient); !ok {
		t.Fatalf("expected *OpenAIClient, got %T", c)
	}

	if _, err := (&Factory{}).CreateClient(config.ProviderOpenAI); err == nil {
		t.Fatalf("expected error without api key")
	}
	if _, err := (&Factory{}).CreateClient(config.ProviderYandex); err == nil {
		t.Fatalf("expected error without yandex credentials")
	}
	if _, err := f.CreateClient("gemini"); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
