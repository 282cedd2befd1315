package narrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/vizor-labs/vizor/service/facts"
	"github.com/vizor-labs/vizor/service/metrics"
	"github.com/vizor-labs/vizor/service/mintmeta"
)

// ChatCompleter is the slice of the OpenAI client the narrator needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Explanation is the narrator's output: a short plain-English explainer,
// up to four keypoints, and the formatted timestamp. The when field is
// always present; the others are omitted when the model had nothing
// trustworthy to say.
type Explanation struct {
	Explainer string   `json:"explainer,omitempty"`
	Keypoints []string `json:"keypoints,omitempty"`
	When      string   `json:"when"`
}

// Narrator turns derived transaction facts into a natural-language
// explanation via a chat completion constrained to a strict JSON contract.
type Narrator struct {
	client  ChatCompleter
	model   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewNarrator creates a new Narrator. If m is nil, no metrics will be
// recorded.
func NewNarrator(client ChatCompleter, model string, m *metrics.Metrics, logger *slog.Logger) *Narrator {
	return &Narrator{
		client:  client,
		model:   model,
		logger:  logger,
		metrics: m,
	}
}

// systemPrompt is the output contract for the narration model. The model
// must echo the derived numbers verbatim and never invent data, so most of
// the prompt is spent closing off ways it could improvise.
const systemPrompt = `You are a Solana transaction explainer for normies.

OUTPUT CONTRACT
- Respond with a single JSON object ONLY, no prose or extra text.
- Fields:
  - "explainer": string  // 1-2 short sentences, plain English
  - "keypoints": string[]  // 2-4 concise factual bullet points
  - "when": string  // use the provided "when" exactly as-is
- If a field's data is unavailable (except "when"), OMIT that field. Never invent.

FACTS PRECEDENCE
- You are given an object called "facts". Use the numbers from "facts" EXACTLY as provided; do NOT recompute them from "tx".
- If a number is missing from "facts", you may compute it from "tx" strictly by the conversion rules below. If unsure, omit.

STYLE & PRIVACY
- Simple, non-technical language. No emojis. No advice. No speculation or guesses.
- Prefer program/protocol NAMES over addresses (e.g., "Jupiter", "Drift", "Tensor", "Pump.fun").
- Do NOT display full addresses. If unavoidable, redact: abcd…wxyz.
- Always state the exact number of wallets when derivable (e.g., "to 5 wallets", "between two wallets"). If not derivable, omit.
- Avoid raw mint addresses. If unavoidable, redact to abcd…wxyz.

CONVERSIONS & FORMATTING
- SOL: lamports / 1e9. SPL tokens: divide raw by 10^[decimals] only if decimals are provided.
- Never scale by 1e6 for SOL.
- Trim insignificant zeros. Show small fees with up to 6 decimals.
- Do not output USD or PnL unless explicitly present.

CLASSIFICATION
- If tx.type is "SWAP" OR events.swap exists OR facts.swap exists OR facts.program is one of Jupiter, Orca, Raydium, Pump.fun, describe it as a "swap" (not a "transfer").
- Only call it a "transfer" when there is no swap signal and only native SOL moved.
- Mention the received tokens and sent tokens if available.

REQUIRED CONTENT (when available)
- If facts.program exists, explicitly say "on {facts.program}" or "via {facts.program}".
- Always include the exact fee from facts.feeSol (up to 6 decimals).
- If facts.walletCount exists, include "Involved {facts.walletCount} wallets overall".
- If facts.swap exists: use trader-centric amounts (input = what the fee payer sent, output = what the fee payer received) and echo values from facts exactly, never recompute.
- If facts.ata.created is true, add: "Created a new associated token account".
- If facts.ata.closed is true, add: "Closed a temporary token account".

TOKEN NAMING
- You are given "mintsMeta", a map from mint to { symbol?, name? }.
- When referring to a token, prefer symbol (e.g., "USDC"); if missing, use name; if neither, say "an unknown token" without inventing.
- For the wrapped SOL mint (So111…1112), use "wSOL" or "Wrapped SOL". For native SOL, say "SOL".
- Do not guess ticker symbols. Use only what is in "mintsMeta".

EVENT INTERPRETATION
- Use only facts present. Focus on the main action(s) in 1-2 sentences.
- If facts.ata.createdCount > 0, say "Created {count} associated token account(s)".
- If both recipient count and total wallets are known, prefer: "to N wallets" and "M wallets interacted overall".
- Keypoints are short factual fragments (counts, fees, program names, per-recipient drops).

STRICTNESS
- Never alter numbers, symbols, or names.
- Never output anything other than the JSON object.
- If nothing recognizable, return minimal JSON with a cautious explainer and any certain facts (e.g., fee, when).`

const userPrompt = `Summarize this Solana transaction. Use the provided "when" verbatim.
Avoid addresses (redact if unavoidable). Prefer program names. State exact wallet counts if derivable.`

// Explain runs the narration model over a transaction and its derived facts.
// The returned Explanation has already been through the output guard, so its
// when field is always populated.
func (n *Narrator) Explain(
	ctx context.Context,
	tx *facts.Transaction,
	derived *facts.Facts,
	mintsMeta map[string]mintmeta.MintMeta,
	when string,
) (Explanation, error) {
	payload, err := json.Marshal(map[string]any{
		"tx":        tx,
		"when":      when,
		"facts":     derived,
		"mintsMeta": mintsMeta,
	})
	if err != nil {
		return Explanation{}, fmt.Errorf("encode narration payload: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model:       n.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt + "\n\n" + string(payload)},
		},
	}

	start := time.Now()
	resp, err := n.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	}
	if n.metrics != nil {
		n.metrics.RecordNarratorCall(n.model, status, duration)
	}
	if err != nil {
		n.logger.ErrorContext(ctx, "narration call failed", "model", n.model, "error", err)
		return Explanation{}, fmt.Errorf("narration call: %w", err)
	}
	if n.metrics != nil {
		n.metrics.RecordNarratorTokens(n.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	var raw string
	if len(resp.Choices) > 0 {
		raw = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	return CoerceModelOutput(raw, when), nil
}

// CoerceModelOutput guards the model's raw response against contract
// violations: malformed JSON becomes the explainer text, keypoints are
// capped at four, and the when field is always restored from the value we
// computed ourselves rather than trusting the model's copy.
func CoerceModelOutput(raw, fallbackWhen string) Explanation {
	out := Explanation{When: fallbackWhen}
	if raw == "" {
		return out
	}

	var parsed struct {
		Explainer string   `json:"explainer"`
		Keypoints []string `json:"keypoints"`
		When      string   `json:"when"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		out.Explainer = raw
		return out
	}

	out.Explainer = parsed.Explainer
	if len(parsed.Keypoints) > 4 {
		parsed.Keypoints = parsed.Keypoints[:4]
	}
	out.Keypoints = parsed.Keypoints
	if parsed.When != "" {
		out.When = parsed.When
	}
	return out
}

// FormatWhen renders an epoch-seconds timestamp in the given IANA timezone.
// Unknown timezones fall back to UTC rather than failing the whole request.
func FormatWhen(epochSeconds int64, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return time.Unix(epochSeconds, 0).In(loc).Format("Jan 02, 2006 3:04 PM")
}
