package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
	"github.com/joseph-ayodele/pdf-analyzer/internal/llm"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// CheckRules implements llm.RuleChecker against the generateContent endpoint.
func (c *Client) CheckRules(ctx context.Context, req llm.CheckRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.check.start",
		"req_id", rid,
		"job_id", req.JobID,
		"provider", "gemini",
		"model", c.cfg.Model,
		"text_len", len(req.Text),
		"rules", len(req.Rules),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := map[string]any{
		"systemInstruction": content{Parts: []part{{Text: llm.BuildSystemPrompt(req.Multiple())}}},
		"contents": []content{
			{Role: "user", Parts: []part{{Text: llm.BuildUserPrompt(req.Text, req.Rules)}}},
		},
		"generationConfig": map[string]any{
			"temperature":      c.cfg.Temperature,
			"topP":             c.cfg.TopP,
			"maxOutputTokens":  c.cfg.MaxOutputTokens,
			"responseMimeType": "application/json",
			"thinkingConfig":   map[string]any{"thinkingBudget": c.cfg.ThinkingBudget},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent"
	headers := map[string]string{"x-goog-api-key": c.cfg.APIKey}

	raw, _, err := llm.SendJSON(ctx, c.httpClient, endpoint, body, headers, c.log)
	if err != nil {
		c.log.Error("llm.check.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", common.NewUpstreamError("gemini", err)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.log.Error("llm.check.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
		)
		return "", common.NewUpstreamError("gemini", fmt.Errorf("decode response: %w", err))
	}
	if len(gr.Candidates) == 0 {
		reason := "no candidates"
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + gr.PromptFeedback.BlockReason
		}
		c.log.Error("llm.check.no_candidates", "req_id", rid, "reason", reason)
		return "", common.NewUpstreamError("gemini", fmt.Errorf("%s", reason))
	}

	var b strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}

	c.log.Info("llm.check.ok",
		"req_id", rid,
		"finish_reason", gr.Candidates[0].FinishReason,
		"reply_len", b.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b.String(), nil
}
