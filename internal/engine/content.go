package engine

import (
	"context"
	"fmt"
	"strings"

	"reelforge/internal/logging"
	"reelforge/internal/store"
)

const defaultPromptTemplate = "Write a short, punchy narration script for a vertical video about: {idea}. " +
	"Keep it under 60 seconds of spoken audio. No scene directions, narration text only."

// AdvanceContent generates scripts for new items. Script generation is
// synchronous, so the item lands directly at content_ready with the script
// attached.
func (e *Engine) AdvanceContent(ctx context.Context) (int, error) {
	return e.advance(ctx, store.StageNew, store.StageContentReady, store.StageFailedContent, e.generateScript)
}

func (e *Engine) generateScript(ctx context.Context, item *store.WorkItem) error {
	if strings.TrimSpace(item.Idea) == "" {
		return fmt.Errorf("item has no idea text")
	}
	channel, err := e.activeChannel(ctx, item)
	if err != nil {
		return err
	}

	prompt := buildPrompt(channel.PromptTemplate, item.Idea)
	result, err := e.scripts.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate script: %w", err)
	}

	item.Script = result.Text
	item.ScriptProvider = result.Provider
	if err := e.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("persist script: %w", err)
	}
	if err := e.store.AppendActivity(ctx, item.ID, "script", fmt.Sprintf("script generated by %s (%d chars)", result.Provider, len(result.Text))); err != nil {
		e.logger.Warn("record script activity",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err))
	}
	e.logger.Info("script generated",
		logging.String(logging.FieldItemID, item.ID),
		logging.String("provider", result.Provider),
		logging.Int("chars", len(result.Text)))
	return nil
}

// buildPrompt substitutes the idea into the channel's prompt template.
// Channels without a template fall back to the default.
func buildPrompt(template, idea string) string {
	template = strings.TrimSpace(template)
	if template == "" {
		template = defaultPromptTemplate
	}
	if strings.Contains(template, "{idea}") {
		return strings.ReplaceAll(template, "{idea}", idea)
	}
	return template + "\n\nIdea: " + idea
}
