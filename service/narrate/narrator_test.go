package narrate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vizor-labs/vizor/service/facts"
)

type fakeCompleter struct {
	content string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.content}},
		},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExplain(t *testing.T) {
	completer := &fakeCompleter{
		content: `{"explainer":"Swapped SOL for BONK on Jupiter.","keypoints":["Fee: 0.000005 SOL"],"when":"Jan 15, 2024 2:30 PM"}`,
	}
	n := NewNarrator(completer, "gpt-4o-mini", nil, testLogger())

	tx := &facts.Transaction{Type: facts.TypeSwap, Fee: 5000}
	derived := facts.ComputeFacts(tx)

	out, err := n.Explain(context.Background(), tx, derived, nil, "Jan 15, 2024 2:30 PM")
	require.NoError(t, err)
	assert.Equal(t, "Swapped SOL for BONK on Jupiter.", out.Explainer)
	assert.Equal(t, []string{"Fee: 0.000005 SOL"}, out.Keypoints)
	assert.Equal(t, "Jan 15, 2024 2:30 PM", out.When)

	// The request pins the contract: zero temperature, JSON-only responses,
	// and the derived facts embedded in the user message.
	assert.Zero(t, completer.lastReq.Temperature)
	require.NotNil(t, completer.lastReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, completer.lastReq.ResponseFormat.Type)
	require.Len(t, completer.lastReq.Messages, 2)
	assert.Contains(t, completer.lastReq.Messages[1].Content, `"facts"`)
	assert.Contains(t, completer.lastReq.Messages[1].Content, `"when":"Jan 15, 2024 2:30 PM"`)
}

func TestExplain_ModelError(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("rate limited")}
	n := NewNarrator(completer, "gpt-4o-mini", nil, testLogger())

	_, err := n.Explain(context.Background(), &facts.Transaction{}, nil, nil, "Jan 15, 2024 2:30 PM")
	require.Error(t, err)
}

func TestExplain_PayloadIsValidJSON(t *testing.T) {
	completer := &fakeCompleter{content: `{}`}
	n := NewNarrator(completer, "gpt-4o-mini", nil, testLogger())

	tx := &facts.Transaction{Type: facts.TypeTransfer, FeePayer: "Payer111"}
	_, err := n.Explain(context.Background(), tx, facts.ComputeFacts(tx), nil, "when")
	require.NoError(t, err)

	// The structured payload follows the prompt on its own line(s); it must
	// parse as JSON so the model sees clean data.
	content := completer.lastReq.Messages[1].Content
	idx := len(userPrompt)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(content[idx:]), &payload))
	assert.Contains(t, payload, "tx")
	assert.Contains(t, payload, "facts")
	assert.Contains(t, payload, "when")
	assert.Contains(t, payload, "mintsMeta")
}

func TestCoerceModelOutput(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		out := CoerceModelOutput(`{"explainer":"ok","keypoints":["a","b"],"when":"model when"}`, "fallback")
		assert.Equal(t, "ok", out.Explainer)
		assert.Equal(t, []string{"a", "b"}, out.Keypoints)
		assert.Equal(t, "model when", out.When)
	})

	t.Run("malformed JSON becomes explainer", func(t *testing.T) {
		out := CoerceModelOutput("not json at all", "fallback")
		assert.Equal(t, "not json at all", out.Explainer)
		assert.Equal(t, "fallback", out.When)
	})

	t.Run("keypoints capped at four", func(t *testing.T) {
		out := CoerceModelOutput(`{"keypoints":["1","2","3","4","5","6"]}`, "fallback")
		assert.Len(t, out.Keypoints, 4)
	})

	t.Run("missing when restored", func(t *testing.T) {
		out := CoerceModelOutput(`{"explainer":"ok"}`, "fallback")
		assert.Equal(t, "fallback", out.When)
	})

	t.Run("empty", func(t *testing.T) {
		out := CoerceModelOutput("", "fallback")
		assert.Empty(t, out.Explainer)
		assert.Equal(t, "fallback", out.When)
	})
}

func TestFormatWhen(t *testing.T) {
	ts := time.Date(2024, 1, 15, 19, 30, 0, 0, time.UTC).Unix()

	assert.Equal(t, "Jan 15, 2024 7:30 PM", FormatWhen(ts, "UTC"))
	assert.Equal(t, "Jan 15, 2024 2:30 PM", FormatWhen(ts, "America/New_York"))
	// Unknown zones fall back to UTC.
	assert.Equal(t, "Jan 15, 2024 7:30 PM", FormatWhen(ts, "Not/AZone"))
}
