// Package prompt assembles the system and user messages sent to completion
// providers from stored templates and divination results.
package prompt

import (
	"sort"
	"strings"
	"time"

	"github.com/liurenlab/oracleops/internal/divination"
)

// Template is the set of text fragments composed into a prompt.
type Template struct {
	SystemPrompt   string
	UserIntro      string
	UserGuidelines string
}

// Composed is the pair of messages produced for one dispatch.
type Composed struct {
	System string
	User   string
}

// DefaultTemplate returns the built-in template used when no active template
// exists in the catalog.
func DefaultTemplate() Template {
	return Template{
		SystemPrompt: "你是一位精通小六壬的占卜解读师。你的解读需结合三宫卦象、五行生克与所问之事，" +
			"给出条理清晰、贴近生活的分析与建议，避免迷信式的绝对断言。",
		UserIntro: "以下是一次小六壬起课的结果，请为求测者解读：",
		UserGuidelines: "请依次分析：一、三宫卦象总览；二、所问之事的吉凶趋势；三、具体建议。" +
			"语气温和，重点明确，不超过五百字。",
	}
}

// unknownSpirit is rendered when a palace carries no guardian-spirit tag.
const unknownSpirit = "未知"

// Compose builds the system and user messages for one dispatch. The result
// is interpolated as-is; missing template fields degrade to empty strings.
// When targetLanguage differs from the default language, an instruction
// block naming the language is appended, with the fixed terminology table
// for languages that have one.
func Compose(result divination.Result, tpl Template, targetLanguage string, at time.Time) Composed {
	var b strings.Builder

	if intro := strings.TrimSpace(tpl.UserIntro); intro != "" {
		b.WriteString(intro)
		b.WriteString("\n\n")
	}

	b.WriteString("起课时间：")
	b.WriteString(at.Format("2006-01-02 15:04"))
	b.WriteString("\n")

	if query := strings.TrimSpace(result.Query); query != "" {
		b.WriteString("所问之事：")
		b.WriteString(query)
		b.WriteString("\n")
	}

	writePalace(&b, "天宫", result.Sky)
	writePalace(&b, "地宫", result.Earth)
	writePalace(&b, "人宫", result.Human)

	if guidelines := strings.TrimSpace(tpl.UserGuidelines); guidelines != "" {
		b.WriteString("\n")
		b.WriteString(guidelines)
	}

	if block := languageBlock(targetLanguage); block != "" {
		b.WriteString("\n\n")
		b.WriteString(block)
	}

	return Composed{
		System: strings.TrimSpace(tpl.SystemPrompt),
		User:   strings.TrimSpace(b.String()),
	}
}

// writePalace renders one palace line: hexagram, element, guardian spirit.
func writePalace(b *strings.Builder, label string, palace divination.Palace) {
	spirit := strings.TrimSpace(palace.Spirit)
	if spirit == "" {
		spirit = unknownSpirit
	}
	b.WriteString(label)
	b.WriteString("：")
	b.WriteString(strings.TrimSpace(palace.Hexagram))
	b.WriteString("（五行属")
	b.WriteString(strings.TrimSpace(palace.Element))
	b.WriteString("，吉神")
	b.WriteString(spirit)
	b.WriteString("）\n")
}

// languageBlock builds the output-language instruction appended for
// non-default target languages. Languages without a terminology table get
// the instruction alone.
func languageBlock(targetLanguage string) string {
	lang := strings.TrimSpace(strings.ToLower(targetLanguage))
	if lang == "" || lang == DefaultLanguage {
		return ""
	}

	name := languageNames[lang]
	if name == "" {
		name = lang
	}

	var b strings.Builder
	b.WriteString("请使用")
	b.WriteString(name)
	b.WriteString("回答。Please answer in ")
	b.WriteString(name)
	b.WriteString(".")

	glossary := glossaries[lang]
	if len(glossary) == 0 {
		return b.String()
	}

	terms := make([]string, 0, len(glossary))
	for term := range glossary {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	b.WriteString("\n术语对照表（请严格使用以下译法）：\n")
	for _, term := range terms {
		b.WriteString(term)
		b.WriteString(" = ")
		b.WriteString(glossary[term])
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
