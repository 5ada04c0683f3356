package chat

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/subspace-chat/internal/common"
)

const (
	MaxMessageLength  = 4000
	MaxTitleLength    = 100
	messageTitleLen   = 50
	generatedTitleLen = 30
)

func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return common.Validation("content", "Message cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return common.Validation("content", fmt.Sprintf("Message too long (max %d characters)", MaxMessageLength))
	}
	return nil
}

func ValidateTitle(title string) error {
	t := strings.TrimSpace(title)
	if t == "" {
		return common.Validation("title", "Chat title is required")
	}
	if utf8.RuneCountInString(t) > MaxTitleLength {
		return common.Validation("title", fmt.Sprintf("Title too long (max %d characters)", MaxTitleLength))
	}
	return nil
}

// DefaultTitle is the title of a conversation created without a prompt.
func DefaultTitle(now time.Time) string {
	return "New Chat " + now.Format("3:04:05 PM")
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// TitleFromMessage keeps whole words of the cleaned message up to 30 characters.
func TitleFromMessage(msg string) string {
	cleaned := strings.TrimSpace(nonWord.ReplaceAllString(msg, ""))
	if len(cleaned) <= generatedTitleLen {
		if cleaned == "" {
			return "New Chat"
		}
		return cleaned
	}
	title := ""
	for _, w := range strings.Fields(cleaned) {
		candidate := w
		if title != "" {
			candidate = title + " " + w
		}
		if len(candidate) > generatedTitleLen {
			break
		}
		title = candidate
	}
	if title == "" {
		return "New Chat"
	}
	return title
}

// MessageTitle is the short label stored next to a message body.
func MessageTitle(content string) string {
	return truncateRunes(content, messageTitleLen)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
