package agent

import (
	"fmt"
	"strings"
)

const auditorPrompt = `You review existing presentation speaker notes before they are reused.

Decide whether the notes can be read aloud as they are.
Reject notes that are empty, in the wrong language or character set, incoherent,
full of slide metadata or placeholder text, or that greet or close the audience
on the wrong slide. A greeting belongs on the first slide only, a closing on the last slide only.

Return a JSON object:
{"status": "USEFUL" | "USELESS", "reason": "<short explanation>"}`

const analystPrompt = `You are a presentation analyst reading one slide image.

Read the visible text, interpret charts and diagrams, and identify the purpose of the slide.

Return plain text in this format:
TOPIC: <main subject>
DETAILS: <key facts, numbers or arguments>
VISUALS: <charts or images, or "Text only">
INTENT: <what the slide is for>`

const writerPrompt = `You are a speech writer producing speaker notes for a presenter.

Write a natural first-person script, 3 to 5 sentences, for the current slide.
Follow the persona and vocabulary of the global context, bridge from the previous slide,
explain the details and visuals from the analysis, and follow the speaker style.

Return only the spoken text, without markdown or headers.`

const translatorPrompt = `You translate presentation speaker notes and deck summaries.

Keep technical terms that are normally left untranslated, adapt idioms, and preserve formatting.
zh-CN must use Simplified characters; zh-TW, zh-HK and yue-HK must use Traditional characters.

Return only the translated text.`

const overviewerPrompt = `You are a presentation strategist looking at every slide of a deck, in order.

Produce a global context guide with:
1. The narrative arc of the deck
2. Recurring themes and vocabulary
3. The speaker persona and tone
4. The total slide count

Other writers will use this guide to keep speaker notes consistent across slides.`

const imageTranslatorPrompt = `You localize finished presentation slides.

List every text element of the slide with its translation, describe the complete visual in the
target language, and note layout adjustments needed when translated text is longer.
Keep colors, fonts and style unchanged.`

const designerPrompt = `You are a presentation slide designer. Output a generated image only.

Redesign the source slide into a clean 16:9 professional slide with a clear title and at most
four short bullet points summarized from the notes. Recreate diagrams and charts in a flat vector
style. Keep the colors and fonts of the source. When a style reference image is given, match its
background, typography and margins.`

const videoPrompt = `You are a video director writing prompts for short slide videos.

Write one prompt, under 120 words, describing an 8 second clip that visualizes the key message
of the slide: subject, camera movement, lighting and mood. Return only the prompt.`

func buildAuditPrompt(req AuditRequest) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Slide %d (position: %s)\n", req.SlideIndex, req.Position))
	prompt.WriteString(fmt.Sprintf("Expected language: %s\n\n", LanguageName(req.Language)))
	prompt.WriteString("=== EXISTING NOTES ===\n")
	prompt.WriteString(req.Notes)
	prompt.WriteString("\n")
	return prompt.String()
}

func buildWritePrompt(req WriteRequest, style string) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Slide %d (position: %s)\n", req.SlideIndex, req.Position))
	prompt.WriteString(fmt.Sprintf("Write in: %s\n", LanguageName(req.Language)))
	if req.Theme != "" {
		prompt.WriteString(fmt.Sprintf("Presentation theme: %s\n", req.Theme))
	}
	if style != "" {
		prompt.WriteString(fmt.Sprintf("Speaker style: %s\n", style))
	}

	prompt.WriteString("\n=== SLIDE ANALYSIS ===\n")
	prompt.WriteString(req.Analysis)
	prompt.WriteString("\n")

	if req.GlobalContext != "" {
		prompt.WriteString("\n=== GLOBAL CONTEXT ===\n")
		prompt.WriteString(req.GlobalContext)
		prompt.WriteString("\n")
	}

	prompt.WriteString("\n=== PREVIOUS CONTEXT ===\n")
	prompt.WriteString(req.PreviousSummary)
	prompt.WriteString("\n")

	switch req.Position {
	case PositionFirst:
		prompt.WriteString("\nOpen with a short greeting to the audience.\n")
	case PositionLast:
		prompt.WriteString("\nClose by thanking the audience.\n")
	default:
		prompt.WriteString("\nDo not greet or thank the audience.\n")
	}

	return prompt.String()
}

func buildTranslatePrompt(req TranslateRequest, style string) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Translate from %s to %s.\n", LanguageName(req.SourceLanguage), LanguageName(req.TargetLanguage)))
	prompt.WriteString(fmt.Sprintf("Target locale code: %s\n", req.TargetLanguage))
	if style != "" {
		prompt.WriteString(fmt.Sprintf("Keep this speaker style: %s\n", style))
	}
	prompt.WriteString("\n=== TEXT ===\n")
	prompt.WriteString(req.Text)
	prompt.WriteString("\n")
	return prompt.String()
}

func buildOverviewPrompt(req OverviewRequest) string {
	return fmt.Sprintf("These are the %d slides of the deck, in order. Write the global context guide in %s.",
		len(req.Images), LanguageName(req.Language))
}

func buildDesignPrompt(req DesignRequest, style string) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("Slide %d. Slide text language: %s\n", req.SlideIndex, LanguageName(req.Language)))
	if style != "" {
		prompt.WriteString(fmt.Sprintf("Visual style: %s\n", style))
	}
	if req.Reference != nil {
		prompt.WriteString("Image 1 is the source slide. Image 2 is the style reference.\n")
	} else {
		prompt.WriteString("Image 1 is the source slide.\n")
	}

	if req.Spec != "" {
		prompt.WriteString("\n=== LOCALIZATION SPEC ===\n")
		prompt.WriteString(req.Spec)
		prompt.WriteString("\nRegenerate the slide exactly as the source, with its text replaced per the spec.\n")
	}

	if req.Notes != "" {
		prompt.WriteString("\n=== SPEAKER NOTES ===\n")
		prompt.WriteString(req.Notes)
		prompt.WriteString("\n")
	}

	return prompt.String()
}

func buildVideoPrompt(req VideoRequest) string {
	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Slide %d\n", req.SlideIndex))
	if req.Theme != "" {
		prompt.WriteString(fmt.Sprintf("Presentation theme: %s\n", req.Theme))
	}
	prompt.WriteString(fmt.Sprintf("Narration language: %s\n", LanguageName(req.Language)))
	prompt.WriteString("\n=== SPEAKER NOTES ===\n")
	prompt.WriteString(req.Notes)
	prompt.WriteString("\n")
	return prompt.String()
}
