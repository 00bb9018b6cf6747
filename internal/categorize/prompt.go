package categorize

import (
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/thebtf/reflectra/internal/privacy"
)

// SystemPrompt lists the fixed tier-2 taxonomy. The classifier must answer with
// exactly one category name.
const SystemPrompt = `You are an AI assistant that categorizes web browsing activity for digital wellness insights.

Given a URL and page title, classify the browsing session into ONE of these categories:

1. **Focused Work** - Deep work, coding, writing, professional productivity tools
2. **Learning** - Educational content, tutorials, courses, documentation, skill development
3. **Research** - Information gathering, reading articles, news, exploration
4. **Social Connection** - Social media, messaging platforms, community engagement
5. **Relaxation** - Entertainment, videos, music, games, leisure browsing
6. **Mindless Scroll** - Unfocused browsing, excessive social media, clickbait
7. **Communication** - Email, chat, professional communication tools
8. **Uncategorized** - Unable to determine or neutral activity

Respond with ONLY the category name, nothing else.

Consider context clues:
- URL domain reputation
- Page title keywords
- User intent signals`

// MaxTitleTokens bounds the page title sent to the classifier.
const MaxTitleTokens = 64

// maxURLRunes bounds the URL sent to the classifier.
const maxURLRunes = 512

// PromptContext is the input to a tier-2 classification.
type PromptContext struct {
	URL   string
	Title string
}

// Prompt is a rendered classifier request.
type Prompt struct {
	System string
	User   string
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func titleCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("Tokenizer unavailable, titles truncated by length")
			return
		}
		codec = c
	})
	return codec
}

// TruncateTitle cuts title to at most limit tokens.
func TruncateTitle(title string, limit int) string {
	c := titleCodec()
	if c == nil {
		return truncateRunes(title, limit*4)
	}
	ids, _, err := c.Encode(title)
	if err != nil || len(ids) <= limit {
		return title
	}
	out, err := c.Decode(ids[:limit])
	if err != nil {
		return truncateRunes(title, limit*4)
	}
	return strings.ToValidUTF8(out, "")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// BuildPrompt renders the classifier request for pc. Credentials in the URL are
// redacted before it leaves the process.
func BuildPrompt(pc PromptContext) Prompt {
	title := privacy.Clean(pc.Title)
	if title == "" {
		title = "No title"
	} else {
		title = TruncateTitle(title, MaxTitleTokens)
	}
	return Prompt{
		System: SystemPrompt,
		User:   "URL: " + truncateRunes(privacy.CleanURL(pc.URL), maxURLRunes) + "\nTitle: " + title,
	}
}

// NormalizeAnswer trims whitespace, quotes, list markers and a trailing period
// from a classifier answer.
func NormalizeAnswer(answer string) string {
	a := strings.Trim(answer, "\"'`*. \t\r\n")
	a = strings.TrimLeft(a, "0123456789. ")
	return strings.Trim(a, "\"'`* ")
}
