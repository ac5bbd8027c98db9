package voice

import "regexp"

// DefaultLanguage is used when no lexical pattern matches.
const DefaultLanguage = "en-US"

type languagePattern struct {
	code    string
	pattern *regexp.Regexp
}

// languagePatterns is an ordered set of per-language lexical-prefix
// patterns over greeting and health-domain keywords. The first match wins.
// Script-based patterns come first because they are unambiguous; Japanese
// kana precedes Han so mixed Japanese text does not classify as Chinese.
// This is a best-effort voice-selection aid, not a classifier.
var languagePatterns = []languagePattern{
	{"ja-JP", regexp.MustCompile(`[\x{3040}-\x{30FF}]`)},
	{"zh-CN", regexp.MustCompile(`[\x{4E00}-\x{9FFF}]`)},
	{"ko-KR", regexp.MustCompile(`[\x{AC00}-\x{D7AF}]`)},
	{"hi-IN", regexp.MustCompile(`[\x{0900}-\x{097F}]`)},
	{"ar-SA", regexp.MustCompile(`[\x{0600}-\x{06FF}]`)},
	{"ru-RU", regexp.MustCompile(`[\x{0400}-\x{04FF}]`)},
	// Leading boundary only: RE2 word boundaries are ASCII, so a trailing
	// one never matches after an accented final letter.
	{"es-ES", regexp.MustCompile(`(?i)\b(hola|buenos días|me duele|fiebre alta|síntomas|gracias por)`)},
	{"pt-BR", regexp.MustCompile(`(?i)\b(olá|bom dia|estou com|saúde|obrigad[oa]|sintomas)`)},
	{"fr-FR", regexp.MustCompile(`(?i)\b(bonjour|j'ai mal|douleur|fièvre|santé|symptômes)`)},
	{"de-DE", regexp.MustCompile(`(?i)\b(hallo|guten tag|schmerzen|fieber|gesundheit|danke)`)},
	{"it-IT", regexp.MustCompile(`(?i)\b(ciao|buongiorno|mi fa male|dolore|febbre|grazie)`)},
	{"id-ID", regexp.MustCompile(`(?i)\b(halo|selamat|sakit kepala|demam|terima kasih|gejala)`)},
}

// Detect tests text against the ordered pattern set and returns the first
// matching language code, or fallback when nothing matches.
func Detect(text, fallback string) string {
	if text == "" {
		return fallback
	}
	for _, lp := range languagePatterns {
		if lp.pattern.MatchString(text) {
			return lp.code
		}
	}
	return fallback
}
