package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/liurenlab/oracleops/internal/divination"
)

var testTime = time.Date(2026, 3, 14, 15, 9, 0, 0, time.Local)

func testResult() divination.Result {
	return divination.Result{
		Query: "近期换工作是否顺利",
		Sky:   divination.Palace{Hexagram: "大安", Element: "木", Spirit: "青龙"},
		Earth: divination.Palace{Hexagram: "速喜", Element: "火", Spirit: "朱雀"},
		Human: divination.Palace{Hexagram: "空亡", Element: "土"},
	}
}

func TestComposeDefaultLanguage(t *testing.T) {
	composed := Compose(testResult(), DefaultTemplate(), "", testTime)

	if composed.System == "" {
		t.Fatal("expected non-empty system message")
	}
	for _, want := range []string{
		"起课时间：2026-03-14 15:09",
		"所问之事：近期换工作是否顺利",
		"天宫：大安（五行属木，吉神青龙）",
		"地宫：速喜（五行属火，吉神朱雀）",
		"人宫：空亡（五行属土，吉神未知）",
	} {
		if !strings.Contains(composed.User, want) {
			t.Fatalf("user message missing %q:\n%s", want, composed.User)
		}
	}
	if strings.Contains(composed.User, "术语对照表") {
		t.Fatal("default language must not carry a glossary block")
	}
}

func TestComposeOmitsEmptyQuery(t *testing.T) {
	result := testResult()
	result.Query = "  "
	composed := Compose(result, DefaultTemplate(), "", testTime)
	if strings.Contains(composed.User, "所问之事") {
		t.Fatalf("expected query line omitted:\n%s", composed.User)
	}
}

func TestComposeTargetLanguageGlossary(t *testing.T) {
	composed := Compose(testResult(), DefaultTemplate(), "en", testTime)

	for _, want := range []string{
		"Please answer in English",
		"术语对照表",
		"大安 = Great Peace (Da An)",
		"木 = Wood",
		"青龙 = Azure Dragon",
	} {
		if !strings.Contains(composed.User, want) {
			t.Fatalf("user message missing %q:\n%s", want, composed.User)
		}
	}
}

func TestComposeUnsupportedLanguageDegrades(t *testing.T) {
	composed := Compose(testResult(), DefaultTemplate(), "fr", testTime)

	if !strings.Contains(composed.User, "Please answer in fr") {
		t.Fatalf("expected language instruction for fr:\n%s", composed.User)
	}
	if strings.Contains(composed.User, "术语对照表") {
		t.Fatal("unsupported language must not carry a glossary block")
	}
}

func TestComposeToleratesEmptyTemplate(t *testing.T) {
	composed := Compose(testResult(), Template{}, "", testTime)

	if composed.System != "" {
		t.Fatalf("expected empty system message, got %q", composed.System)
	}
	if !strings.Contains(composed.User, "天宫：大安") {
		t.Fatalf("palace rendering missing:\n%s", composed.User)
	}
}

func TestGlossaryLookup(t *testing.T) {
	if Glossary("en") == nil {
		t.Fatal("expected en glossary")
	}
	if Glossary("fr") != nil {
		t.Fatal("expected no fr glossary")
	}
}
