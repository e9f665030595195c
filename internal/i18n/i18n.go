// Package i18n is a pure string lookup table for the handful of gateway-
// generated messages that reach a user directly (auth denial, provider
// failure, pairing prompts) — not the model's own replies, which are
// whatever language the model answers in. Eight languages with English
// fallback, per §6.4.
package i18n

import (
	"fmt"
	"strings"
)

type Lang string

const (
	English           Lang = "en"
	Spanish           Lang = "es"
	French            Lang = "fr"
	German            Lang = "de"
	Portuguese        Lang = "pt"
	Vietnamese        Lang = "vi"
	Japanese          Lang = "ja"
	ChineseSimplified Lang = "zh"
)

var table = map[string]map[Lang]string{
	"auth_denied": {
		English:           "You are not authorized to use this bot.",
		Spanish:           "No estás autorizado para usar este bot.",
		French:            "Vous n'êtes pas autorisé à utiliser ce bot.",
		German:            "Du bist nicht berechtigt, diesen Bot zu verwenden.",
		Portuguese:        "Você não está autorizado a usar este bot.",
		Vietnamese:        "Bạn không được phép sử dụng bot này.",
		Japanese:          "このボットを使用する権限がありません。",
		ChineseSimplified: "您无权使用此机器人。",
	},
	"provider_unavailable": {
		English:           "Sorry, I couldn't reach the assistant right now. Please try again shortly.",
		Spanish:           "Lo siento, no pude contactar al asistente ahora mismo. Inténtalo de nuevo en breve.",
		French:            "Désolé, je n'ai pas pu joindre l'assistant pour le moment. Réessayez bientôt.",
		German:            "Entschuldigung, der Assistent ist gerade nicht erreichbar. Bitte versuche es gleich noch einmal.",
		Portuguese:        "Desculpe, não consegui contatar o assistente agora. Tente novamente em breve.",
		Vietnamese:        "Xin lỗi, hiện không thể kết nối trợ lý. Vui lòng thử lại sau.",
		Japanese:          "申し訳ありませんが、今アシスタントに接続できませんでした。しばらくしてから再試行してください。",
		ChineseSimplified: "抱歉，现在无法连接助手，请稍后再试。",
	},
	"pairing_ready": {
		English:           "Scan this code to link WhatsApp.",
		Spanish:           "Escanea este código para vincular WhatsApp.",
		French:            "Scannez ce code pour associer WhatsApp.",
		German:            "Scanne diesen Code, um WhatsApp zu verknüpfen.",
		Portuguese:        "Escaneie este código para vincular o WhatsApp.",
		Vietnamese:        "Quét mã này để liên kết WhatsApp.",
		Japanese:          "このコードをスキャンしてWhatsAppを連携してください。",
		ChineseSimplified: "扫描此代码以关联WhatsApp。",
	},
}

// T returns the localized string for key in lang, falling back to English
// and then to the key itself.
func T(key string, lang Lang) string {
	entries, ok := table[key]
	if !ok {
		return key
	}
	if v, ok := entries[lang]; ok {
		return v
	}
	if v, ok := entries[English]; ok {
		return v
	}
	return key
}

// Tf localizes key and applies fmt.Sprintf-style formatting to the result.
func Tf(key string, lang Lang, args ...interface{}) string {
	return fmt.Sprintf(T(key, lang), args...)
}

// ParseLang maps a free-form language name or ISO code to a supported Lang,
// defaulting to English for anything unrecognized.
func ParseLang(s string) Lang {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "es", "spanish", "español":
		return Spanish
	case "fr", "french", "français":
		return French
	case "de", "german", "deutsch":
		return German
	case "pt", "portuguese", "português":
		return Portuguese
	case "vi", "vietnamese", "tiếng việt":
		return Vietnamese
	case "ja", "japanese", "日本語":
		return Japanese
	case "zh", "chinese", "中文":
		return ChineseSimplified
	default:
		return English
	}
}
