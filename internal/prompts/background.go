package prompts

import "fmt"

const backgroundRewriteTemplate = `Rewrite the background image prompt below to reflect the user's feedback.

## Original prompt
%s

## User feedback
%s

## Instructions
- Output the new prompt that reflects the feedback
- Output the prompt only, no explanation
- Write it in English`

// BackgroundRewritePrompt asks the model to revise a background prompt.
func BackgroundRewritePrompt(original, feedback string) string {
	return fmt.Sprintf(backgroundRewriteTemplate, original, feedback)
}

const imageTemplate = `Generate a 16:9 slide background image.

%s`

// ImagePrompt returns the instruction sent to the image model. The image
// must not contain any text; text is laid out separately.
func ImagePrompt(prompt, style string) string {
	body := prompt
	if style != "" {
		body += "\n\nStyle: " + style
	}
	body += "\n\nDo not include any text, letters or logos in the image."
	return fmt.Sprintf(imageTemplate, body)
}
