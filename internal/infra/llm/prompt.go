package llm

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
)

const baseSystemPrompt = `
You are the registration assistant of an agricultural advisory service. Farmers talk to you over a web chat or a messaging app, often from a phone, sometimes typing in a hurry.

Your only job right now is to register the farmer by collecting these fields:
- first_name: the farmer's given name.
- last_name: the farmer's family name.
- phone_number: a mobile number in international form, starting with + and the country code.

Extraction rules:
- Only fill a field when the farmer clearly states it in the latest message. Never guess or invent values.
- Copy values exactly as written; do not translate, reformat or correct them.
- Town, village, region and country names are places, not names. "Ljubljana", "Maribor" or "Sevilla" is never a first or last name.
- If a number has no leading + and country code, still copy it into phone_number as written; it will be checked later.
- Never ask for, repeat, or comment on passwords. A password is collected separately, outside this conversation.
- Set abandon to true only when the farmer clearly wants to stop or cancel the registration.

Reply rules:
- Write reply in the conversation language given below, in one to three short sentences.
- Thank the farmer briefly for anything they provided, then ask for the next missing field.
- If the farmer asks something unrelated, answer in one short sentence at most and steer back to the registration.
- Do not mention fields that are already collected except to confirm them.
`

// BuildSystemPrompt renders the instruction for one extraction turn. The
// password never appears in it.
func BuildSystemPrompt(req domain.ExtractionRequest) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(baseSystemPrompt))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Conversation language: %s.\n", languageName(req.Locale))
	fmt.Fprintf(&b, "Channel: %s.\n", channelLabel(req.Channel))

	missing := make([]string, 0, len(req.Missing))
	for _, f := range req.Missing {
		if f == domain.FieldPassword {
			continue
		}
		missing = append(missing, string(f))
	}
	if len(missing) == 0 {
		b.WriteString("Still missing: nothing you need to extract.\n")
	} else {
		fmt.Fprintf(&b, "Still missing, in this order: %s.\n", strings.Join(missing, ", "))
	}

	collected := make([]string, 0, len(req.Collected))
	for f, v := range req.Collected {
		if f == domain.FieldPassword {
			continue
		}
		collected = append(collected, fmt.Sprintf("%s=%q", f, v))
	}
	sort.Strings(collected)
	if len(collected) > 0 {
		fmt.Fprintf(&b, "Already collected: %s.\n", strings.Join(collected, ", "))
	}

	if req.Digressions > 0 {
		fmt.Fprintf(&b, "The farmer has gone off topic %d turn(s) in a row; gently but clearly bring them back to the registration.\n", req.Digressions)
	}
	return b.String()
}

func languageName(locale string) string {
	tag, err := language.Parse(locale)
	if err != nil {
		return "English"
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return locale
}

func channelLabel(c domain.Channel) string {
	switch c {
	case domain.ChannelMessaging:
		return "messaging app, keep replies very short and plain text"
	default:
		return "web chat"
	}
}

// trimHistory keeps the most recent limit entries.
func trimHistory(history []domain.HistoryEntry, limit int) []domain.HistoryEntry {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
