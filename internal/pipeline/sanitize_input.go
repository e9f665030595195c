package pipeline

import "regexp"

// injectionPatterns catch common prompt-injection phrasings embedded in
// inbound user text. Matches are replaced, never used to reject the
// message outright (§4.1 step 4: "neutralize by replacement").
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all|any)? ?(the )?(previous|above|prior) instructions`),
	regexp.MustCompile(`(?i)disregard (all|any)? ?(previous|prior) (instructions|rules|guidelines)`),
	regexp.MustCompile(`(?i)you are now (in )?(developer|admin|god|jailbreak) mode`),
	regexp.MustCompile(`(?is)<\s*system\s*>.*?<\s*/\s*system\s*>`),
	regexp.MustCompile(`(?i)\[\s*/?\s*system\s*\]`),
	regexp.MustCompile(`(?i)\[\s*/?\s*INST\s*\]`),
	regexp.MustCompile(`(?i)forget (everything|all) (you know|above)`),
}

// SanitizeUserText neutralizes known prompt-injection patterns in inbound
// text by replacement, never rejection.
func SanitizeUserText(text string) string {
	out := text
	for _, pat := range injectionPatterns {
		out = pat.ReplaceAllString(out, "[filtered]")
	}
	return out
}
