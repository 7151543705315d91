package agent

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const DefaultLanguage = "en"

var localeNames = map[string]string{
	"en":     "English",
	"zh-CN":  "Simplified Chinese (简体中文)",
	"zh-TW":  "Traditional Chinese (繁體中文)",
	"yue-HK": "Cantonese (廣東話)",
	"es":     "Spanish (Español)",
	"fr":     "French (Français)",
	"ja":     "Japanese (日本語)",
	"ko":     "Korean (한국어)",
	"de":     "German (Deutsch)",
	"it":     "Italian (Italiano)",
	"pt":     "Portuguese (Português)",
	"ru":     "Russian (Русский)",
	"ar":     "Arabic (العربية)",
	"hi":     "Hindi (हिन्दी)",
	"th":     "Thai (ไทย)",
	"vi":     "Vietnamese (Tiếng Việt)",
}

// LanguageName returns a prompt-friendly name for a locale code.
// Unknown codes use the English display name, or the code itself.
func LanguageName(code string) string {
	if name, ok := localeNames[code]; ok {
		return name
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
