package i18n

import "strings"

// Translator retrieves localized messages for Issue codes.
// data provides optional values substituted into {name} placeholders of the
// message template (for example, "section" or "detail").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

var dictionaries = map[string]map[string]string{
	"en": {
		"invalid_type":        "invalid type: {detail}",
		"required":            "required field missing: {detail}",
		"invalid_enum":        "value not allowed: {detail}",
		"unknown_path":        "unknown field path {path}: {detail}",
		"path_invalid":        "invalid field path {path}: {detail}",
		"no_schema":           "section {section} has no schema; structured update skipped",
		"out_of_scope":        "section {section} is not an authorized target (valid: {valid})",
		"invalid_update":      "invalid update: {detail}",
		"unknown_strategy":    "{detail}",
		"depth_exceeded":      "merge too deep: {detail}",
		"corruption_detected": "corrupted update rejected: {detail}",
		"store_error":         "persistence failed: {detail}",
		"unexpected":          "unexpected error: {detail}",
	},
	"ja": {
		"invalid_type":        "型が不正です: {detail}",
		"required":            "必須フィールドが不足しています: {detail}",
		"invalid_enum":        "許可されていない値です: {detail}",
		"unknown_path":        "未知のフィールドパス {path}: {detail}",
		"path_invalid":        "不正なフィールドパス {path}: {detail}",
		"no_schema":           "セクション {section} にスキーマがないため更新をスキップしました",
		"out_of_scope":        "セクション {section} は許可された更新先ではありません (有効: {valid})",
		"invalid_update":      "不正な更新です: {detail}",
		"unknown_strategy":    "{detail}",
		"depth_exceeded":      "マージが深すぎます: {detail}",
		"corruption_detected": "破損した更新を拒否しました: {detail}",
		"store_error":         "保存に失敗しました: {detail}",
		"unexpected":          "予期しないエラー: {detail}",
	},
}

func (t dictTranslator) Message(code string, data map[string]string) string {
	tmpl, ok := dictionaries[t.lang][code]
	if !ok {
		if detail := data["detail"]; detail != "" {
			return code + ": " + detail
		}
		return code
	}
	if len(data) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// New returns the built-in Translator for lang ("en"/"ja"). Unknown languages
// fall back to English.
func New(lang string) Translator {
	if _, ok := dictionaries[lang]; !ok {
		lang = "en"
	}
	return dictTranslator{lang: lang}
}

// English is the default Translator.
var English Translator = dictTranslator{lang: "en"}
