package usecase

import (
	"strings"

	"github.com/arimedika/server/domain/entities"
)

// Prompt-context bounding policy. The exact lengths are policy knobs, not
// correctness requirements, but the output must stay deterministic.
const (
	contextRecentMessages = 10
	assistantTurnLimit    = 200
	otherSessionLimit     = 3
	userDigestLimit       = 100
	assistantDigestLimit  = 150
)

// BuildPromptContext produces the text prepended to the system instructions
// for the next model call. Pure function. active is the active session's
// full message list; its first message is the synthetic greeting and is
// excluded. The last contextRecentMessages turns are formatted as
// alternating speaker lines, assistant turns truncated; up to
// otherSessionLimit other sessions contribute a short digest each, capping
// prompt size without losing continuity.
func BuildPromptContext(active []entities.Message, others []*entities.Session) string {
	var b strings.Builder

	turns := active
	if len(turns) > 0 {
		turns = turns[1:]
	}
	if len(turns) > contextRecentMessages {
		turns = turns[len(turns)-contextRecentMessages:]
	}
	if len(turns) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, msg := range turns {
			if msg.Role == entities.MessageRoleAssistant {
				b.WriteString("Assistant: " + truncateRunes(msg.Content, assistantTurnLimit) + "\n")
			} else {
				b.WriteString("User: " + msg.Content + "\n")
			}
		}
	}

	count := 0
	for _, session := range others {
		if count >= otherSessionLimit {
			break
		}
		digest := digestSession(session)
		if digest == "" {
			continue
		}
		if count == 0 {
			b.WriteString("Earlier conversations:\n")
		}
		b.WriteString(digest + "\n")
		count++
	}

	return strings.TrimRight(b.String(), "\n")
}

func digestSession(session *entities.Session) string {
	var userParts []string
	assistant := ""
	for _, msg := range session.NonGreetingMessages() {
		switch msg.Role {
		case entities.MessageRoleUser:
			userParts = append(userParts, truncateRunes(msg.Content, userDigestLimit))
		case entities.MessageRoleAssistant:
			if assistant == "" {
				assistant = truncateRunes(msg.Content, assistantDigestLimit)
			}
		}
	}
	if len(userParts) == 0 && assistant == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("- " + session.Title + ": ")
	b.WriteString(strings.Join(userParts, " "))
	if assistant != "" {
		if len(userParts) > 0 {
			b.WriteString(" / ")
		}
		b.WriteString(assistant)
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
