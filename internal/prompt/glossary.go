package prompt

// DefaultLanguage is the language prompts are composed in when no target
// language is requested.
const DefaultLanguage = "zh"

// glossaries maps a supported target language to its fixed terminology
// table. Each table is a closed lookup from domain terms (hexagram names,
// five elements, guardian spirits) to their translated forms, so the model
// answers with consistent target-language terminology. Languages without a
// table receive no glossary.
var glossaries = map[string]map[string]string{
	"en": {
		// Hexagrams.
		"大安": "Great Peace (Da An)",
		"留连": "Lingering (Liu Lian)",
		"速喜": "Swift Joy (Su Xi)",
		"赤口": "Red Mouth (Chi Kou)",
		"小吉": "Minor Fortune (Xiao Ji)",
		"空亡": "Emptiness (Kong Wang)",
		// Five elements.
		"木": "Wood",
		"金": "Metal",
		"火": "Fire",
		"土": "Earth",
		"水": "Water",
		// Guardian spirits.
		"青龙": "Azure Dragon",
		"朱雀": "Vermilion Bird",
		"玄武": "Black Tortoise",
		"白虎": "White Tiger",
		"勾陈": "Hook Snare (Gou Chen)",
		"腾蛇": "Soaring Serpent (Teng She)",
	},
}

// languageNames maps supported target languages to the display name used in
// the output-language instruction block.
var languageNames = map[string]string{
	"en": "English",
	"ja": "Japanese",
	"ko": "Korean",
}

// Glossary returns the terminology table for a target language, or nil when
// the language has none.
func Glossary(language string) map[string]string {
	return glossaries[language]
}
