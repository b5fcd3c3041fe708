package session

import (
	"encoding/json"
	"strings"
)

// DefaultLanguage is used when a session carries no language tag.
const DefaultLanguage = "en"

var selfIntroduction = map[string]string{
	"en":  "Tell me about yourself.",
	"th":  "กรุณาแนะนำตัวเอง",
	"yue": "請介紹一下自己",
	"zh":  "请介绍一下自己",
	"ko":  "자기소개를 해주세요",
}

// FallbackQuestion is the canned self-introduction question for language,
// English when the language is unknown.
func FallbackQuestion(language string) string {
	if q, ok := selfIntroduction[strings.ToLower(strings.TrimSpace(language))]; ok {
		return q
	}
	return selfIntroduction[DefaultLanguage]
}

type questionMatcher func(raw json.RawMessage) ([]string, bool)

// Matchers in priority order: {questions:[...]}, {questions:{questions:[...]}}, [...].
var questionMatchers = []questionMatcher{
	matchQuestionsField,
	matchNestedQuestions,
	matchPlainList,
}

// NormalizeQuestions resolves the stored question payload to one ordered
// list. Unrecognised or empty payloads yield the localized fallback question.
func NormalizeQuestions(raw []byte, language string) []string {
	if len(raw) > 0 && json.Valid(raw) {
		for _, match := range questionMatchers {
			if qs, ok := match(raw); ok && len(qs) > 0 {
				return qs
			}
		}
	}
	return []string{FallbackQuestion(language)}
}

func matchQuestionsField(raw json.RawMessage) ([]string, bool) {
	var obj struct {
		Questions json.RawMessage `json:"questions"`
	}
	if json.Unmarshal(raw, &obj) != nil || len(obj.Questions) == 0 {
		return nil, false
	}
	return matchPlainList(obj.Questions)
}

func matchNestedQuestions(raw json.RawMessage) ([]string, bool) {
	var obj struct {
		Questions json.RawMessage `json:"questions"`
	}
	if json.Unmarshal(raw, &obj) != nil || len(obj.Questions) == 0 {
		return nil, false
	}
	return matchQuestionsField(obj.Questions)
}

func matchPlainList(raw json.RawMessage) ([]string, bool) {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

// LanguageFromNotes returns the language tag stored in notes, or fallback.
func LanguageFromNotes(raw []byte, fallback string) string {
	var obj struct {
		Language string `json:"language"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &obj) == nil && strings.TrimSpace(obj.Language) != "" {
		return strings.TrimSpace(obj.Language)
	}
	if fallback == "" {
		return DefaultLanguage
	}
	return fallback
}
