package extraction

import (
	"fmt"
	"strings"
	"time"
)

const systemPromptTemplate = `You are a helpful assistant. Extract entities from the text into JSON.

Context:
- Current Date: %s
- Calculate all relative dates (tomorrow, next monday) based on Current Date.

Rules:
1. "shopping": ONLY for physical items to buy (food, clothes, etc). Extract items individually.
2. "event": for meetings, appointments, lunch, dinner, calls. Use YYYY-MM-DD for dates and HH:MM for times.
3. "todo": for actions/tasks.
4. "reminder": for "remind me" requests. Use RFC3339 for reminderTime.
5. "idea", "journal", "person": only when clearly stated.
6. "note": when nothing else fits, with the input as content.
%s
Examples:

Input: "I need milk and eggs and then lunch with Sarah"
Output:
{
  "entities": [
    { "type": "shopping", "content": "milk, eggs", "metadata": { "items": ["milk", "eggs"] } },
    { "type": "event", "content": "lunch with Sarah", "metadata": { "eventDate": "%s" } }
  ]
}

Input: "Meeting at 5pm and pick up bread"
Output:
{
  "entities": [
    { "type": "event", "content": "Meeting", "metadata": { "eventTime": "17:00" } },
    { "type": "shopping", "content": "bread", "metadata": { "items": ["bread"] } }
  ]
}

Respond ONLY with valid JSON.`

const completionSection = `
Open items (id: content). If the input says one of these is done, add
{ "entityId": "<id>", "confidence": 0.0-1.0, "reason": "..." } to "completions":
%s
`

// SystemPrompt returns the extraction instructions for now, listing the
// active item previews a model may report as completed.
func SystemPrompt(now time.Time, previews []string) string {
	section := ""
	if len(previews) > 0 {
		section = fmt.Sprintf(completionSection, strings.Join(previews, "\n"))
	}
	return fmt.Sprintf(systemPromptTemplate, now.Format("Monday, 2006-01-02"), section, now.Format("2006-01-02"))
}

// UserPrompt frames a transcript as a few-shot input.
func UserPrompt(transcript string) string {
	return fmt.Sprintf("Input: %q\nOutput:", transcript)
}

// ChatPrompt renders the system and user turns in the ChatML template the
// on-device Qwen model expects, leaving the assistant turn open.
func ChatPrompt(system, user string) string {
	var b strings.Builder
	b.WriteString("<|im_start|>system\n")
	b.WriteString(system)
	b.WriteString("\n<|im_end|>\n<|im_start|>user\n")
	b.WriteString(user)
	b.WriteString("\n<|im_end|>\n<|im_start|>assistant\n")
	return b.String()
}
