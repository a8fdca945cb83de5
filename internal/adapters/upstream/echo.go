package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/target/jobstream/internal/core"
	"github.com/target/jobstream/internal/domain/model"
)

// EchoExecutor replays the prompt word by word. It backs dev mode, where no
// upstream endpoint is configured.
type EchoExecutor struct {
	Delay time.Duration
}

var _ core.Executor = EchoExecutor{}

// Execute implements core.Executor.
func (e EchoExecutor) Execute(ctx context.Context, env model.Envelope, emit core.EmitFunc) error {
	words := strings.Fields(echoText(env))
	if len(words) == 0 {
		words = []string{"(empty)"}
	}
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		if e.Delay > 0 {
			t := time.NewTimer(e.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := emit(w); err != nil {
			return err
		}
	}
	return nil
}

func echoText(env model.Envelope) string {
	switch env.Type {
	case model.JobTypeChat:
		var p model.ChatPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			return p.Prompt
		}
	case model.JobTypeWhatsAppChat:
		var p model.WhatsAppPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			return p.Text
		}
	case model.JobTypeSOValidation, model.JobTypePerformanceReport:
	}
	return ""
}

// EchoReasoner accepts every item. It backs dev mode.
type EchoReasoner struct{}

var _ core.Reasoner = EchoReasoner{}

// Complete implements core.Reasoner.
func (EchoReasoner) Complete(_ context.Context, prompt string) (string, error) {
	first, _, _ := strings.Cut(prompt, "\n")
	msg, err := json.Marshal(fmt.Sprintf("dev mode: %s", strings.TrimSpace(first)))
	if err != nil {
		return "", err
	}
	return `{"status": "valid", "message": ` + string(msg) + `}`, nil
}
