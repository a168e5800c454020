package chatbot

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractNationalID pulls a CPF out of free text. Every non-digit is
// stripped first, so "123.456.789-01" and "meu cpf é 12345678901" both
// work. Anything other than exactly 11 digits total yields no match.
func ExtractNationalID(text string) (string, bool) {
	var digits strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() != 11 {
		return "", false
	}
	return digits.String(), true
}

// FormatNationalID renders an 11-digit CPF as xxx.xxx.xxx-xx.
func FormatNationalID(id string) string {
	if len(id) != 11 {
		return id
	}
	return id[0:3] + "." + id[3:6] + "." + id[6:9] + "-" + id[9:11]
}

// ExtractPhone accepts Brazilian numbers with or without area code
// (10 or 11 digits after stripping punctuation).
func ExtractPhone(text string) (string, bool) {
	var digits strings.Builder
	for _, r := range text {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if n := digits.Len(); n < 10 || n > 11 {
		return "", false
	}
	return digits.String(), true
}

// ExtractEmail finds the first email address in the text.
func ExtractEmail(text string) (string, bool) {
	match := emailPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return strings.ToLower(match), true
}

// ParseBirthDate reads dd/mm/yyyy (also dd-mm-yyyy and dd.mm.yyyy) and
// rejects dates in the future or more than 120 years back.
func ParseBirthDate(text string, now time.Time) (time.Time, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.NewReplacer("-", "/", ".", "/").Replace(cleaned)
	parsed, err := time.ParseInLocation("02/01/2006", cleaned, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	if parsed.After(now) || parsed.Before(now.AddDate(-120, 0, 0)) {
		return time.Time{}, false
	}
	return parsed, true
}

var yesWords = map[string]struct{}{
	"sim": {}, "s": {}, "confirmo": {}, "confirmar": {}, "ok": {},
	"pode": {}, "claro": {}, "isso": {}, "yes": {}, "quero": {},
}

var noWords = map[string]struct{}{
	"não": {}, "nao": {}, "n": {}, "cancelar": {}, "outro": {},
	"outra": {}, "no": {}, "mudar": {}, "trocar": {},
}

func normalizeWord(text string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(text), "!.?,"))
}

// IsYes reports whether the message is an affirmative answer.
func IsYes(text string) bool {
	_, ok := yesWords[normalizeWord(text)]
	return ok
}

// IsNo reports whether the message is a negative answer.
func IsNo(text string) bool {
	_, ok := noWords[normalizeWord(text)]
	return ok
}

var skipWords = map[string]struct{}{
	"pular": {}, "nao": {}, "não": {}, "nenhum": {}, "sem": {}, "skip": {},
}

// IsSkip reports whether the patient declined an optional field.
func IsSkip(text string) bool {
	_, ok := skipWords[normalizeWord(text)]
	return ok
}

var selfPayWords = map[string]struct{}{
	"particular": {}, "nao": {}, "não": {}, "nenhum": {}, "pular": {},
	"sem plano": {}, "sem convenio": {}, "sem convênio": {},
}

// IsSelfPay reports whether the patient answered the insurance-card
// question with "no plan".
func IsSelfPay(text string) bool {
	_, ok := selfPayWords[normalizeWord(text)]
	return ok
}

var leadingNumber = regexp.MustCompile(`^\s*(\d{1,2})\b`)

// parseOrdinal reads a 1-based option number typed directly, accepting
// "2", "2.", "opção 2" style prefixes on the bare list answers patients
// actually send. Returns the zero-based index.
func parseOrdinal(text string, n int) (int, bool) {
	cleaned := strings.TrimSpace(text)
	if v, err := strconv.Atoi(strings.Trim(cleaned, ".)º°")); err == nil {
		if v >= 1 && v <= n {
			return v - 1, true
		}
		return 0, false
	}
	if m := leadingNumber.FindStringSubmatch(cleaned); m != nil {
		if v, _ := strconv.Atoi(m[1]); v >= 1 && v <= n {
			return v - 1, true
		}
	}
	return 0, false
}
