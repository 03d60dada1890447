package pipeline

import (
	"hash/fnv"
	"strings"
)

// refusalSignatures are textual markers of a grounding refusal: the backend
// found nothing relevant in its knowledge base and said so instead of
// answering. Matching is case-insensitive substring.
var refusalSignatures = []string{
	"i couldn't find anything",
	"i could not find anything",
	"no relevant information",
	"no relevant documents",
	"i don't have information about that",
	"i do not have information about that",
	"nothing in the knowledge base",
	"knowledge base does not contain",
	"i'm unable to answer that based on",
	"not found in the provided context",
}

// Very short answers read as refusals too.
const refusalMinAnswerLen = 12

// IsRefusal reports whether the model answer is a grounding refusal.
func IsRefusal(answer string) bool {
	trimmed := strings.TrimSpace(answer)
	if len(trimmed) < refusalMinAnswerLen {
		return true
	}
	lowered := strings.ToLower(trimmed)
	for _, sig := range refusalSignatures {
		if strings.Contains(lowered, sig) {
			return true
		}
	}
	return false
}

type queryCategory int

const (
	categoryDefault queryCategory = iota
	categoryGreeting
	categoryIdentity
	categorySmallTalk
	categoryGratitude
	categoryFarewell
	categoryHelp
)

// classifyQuery buckets the original user query for fallback selection.
func classifyQuery(query string) queryCategory {
	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case containsAny(q, "hello", "hey", "good morning", "good afternoon", "good evening") || q == "hi" || strings.HasPrefix(q, "hi "):
		return categoryGreeting
	case containsAny(q, "who are you", "what are you", "your name", "what's your name"):
		return categoryIdentity
	case containsAny(q, "how are you", "how's it going", "what's up", "how do you feel"):
		return categorySmallTalk
	case containsAny(q, "thank", "thanks", "appreciate"):
		return categoryGratitude
	case containsAny(q, "bye", "goodbye", "see you", "good night"):
		return categoryFarewell
	case containsAny(q, "help", "what can you do", "how do i"):
		return categoryHelp
	default:
		return categoryDefault
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// fallbackTemplates map each category to persona-aware responses. {name} is
// replaced with the agent's display name.
var fallbackTemplates = map[queryCategory][]string{
	categoryGreeting: {
		"Hi there! I'm {name}. What can I do for you?",
		"Hello! {name} here, ready when you are.",
		"Hey! I'm {name}. How can I help?",
	},
	categoryIdentity: {
		"I'm {name}, your voice assistant. Ask me anything about your documents.",
		"My name is {name}. I can search your vault, open documents, and more.",
	},
	categorySmallTalk: {
		"Doing great, thanks for asking! What can I help you with?",
		"All systems humming. What's on your mind?",
	},
	categoryGratitude: {
		"You're welcome! Anything else I can do?",
		"Happy to help. Just say the word if you need more.",
	},
	categoryFarewell: {
		"Goodbye! Talk to you soon.",
		"Take care! I'll be here when you need me.",
	},
	categoryHelp: {
		"I can search your documents, read them aloud, and navigate the workspace. What would you like?",
		"Try asking me to find a document, open one, or summarize something from your vault.",
	},
	categoryDefault: {
		"I didn't find anything solid on that. Could you rephrase, or ask me about your documents?",
		"Hmm, I don't have a good answer for that one. Want me to search your vault instead?",
		"I'm not sure about that. I'm best with questions about your documents and workspace.",
	},
}

// FallbackResponse replaces a grounding refusal with a conversational answer.
// Selection is a stable hash of the query so identical queries always get the
// identical response while distinct queries see variety.
func FallbackResponse(query, displayName string) string {
	options := fallbackTemplates[classifyQuery(query)]
	h := fnv.New32a()
	h.Write([]byte(strings.TrimSpace(strings.ToLower(query))))
	template := options[int(h.Sum32())%len(options)]
	return strings.ReplaceAll(template, "{name}", displayName)
}
