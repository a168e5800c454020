package chatbot

import (
	"context"
	"fmt"
	"strings"
)

// choice is one entry the patient can pick from a presented list. Terms
// are extra lowercase keywords that should match it, like a location's
// city or a specialty's common symptoms.
type choice struct {
	Name  string
	Terms []string
}

const optionPrompt = `Você é o assistente de agendamento de uma clínica médica. O paciente precisa escolher %s.

Opções:
%s
Mensagem do paciente: %q

Responda apenas com o número da opção escolhida, ou "0" se não for possível identificar uma opção.`

// selectOption maps free text onto one of the choices. Matchers run in
// order: exact name, then name/term substring, then one classifier round
// trip. The first hit wins; no hit returns false and the caller re-asks.
func (e *Engine) selectOption(ctx context.Context, text, subject string, choices []choice) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(text))

	if idx, ok := parseOrdinal(t, len(choices)); ok {
		return idx, true
	}
	for i, c := range choices {
		if t == strings.ToLower(c.Name) {
			return i, true
		}
	}
	for i, c := range choices {
		if strings.Contains(t, strings.ToLower(c.Name)) {
			return i, true
		}
		for _, term := range c.Terms {
			if term != "" && strings.Contains(t, term) {
				return i, true
			}
		}
	}

	if e.classifier == nil {
		return 0, false
	}
	var list strings.Builder
	for i, c := range choices {
		fmt.Fprintf(&list, "%d. %s\n", i+1, c.Name)
	}
	out, err := e.classifier.Classify(ctx, fmt.Sprintf(optionPrompt, subject, list.String(), text))
	if err != nil {
		e.log.Warn("option classifier failed", "subject", subject, "error", err)
		return 0, false
	}
	if idx, ok := parseOrdinal(out, len(choices)); ok {
		return idx, true
	}
	return 0, false
}

const ordinalPrompt = `O paciente de uma clínica recebeu esta lista numerada:

%s
E respondeu: %q

Qual número da lista (1 a %d) o paciente escolheu? Responda apenas com o número, ou "0" se não ficou claro.`

// pickOrdinal resolves "a primeira", "o das 9h de quinta" style answers
// against a numbered listing. Direct numbers never hit the classifier.
func (e *Engine) pickOrdinal(ctx context.Context, text, listing string, n int) (int, bool) {
	if idx, ok := parseOrdinal(text, n); ok {
		return idx, true
	}
	if e.classifier == nil {
		return 0, false
	}
	out, err := e.classifier.Classify(ctx, fmt.Sprintf(ordinalPrompt, listing, text, n))
	if err != nil {
		e.log.Warn("ordinal classifier failed", "error", err)
		return 0, false
	}
	return parseOrdinal(out, n)
}

// specialtyTerms maps lowercase specialty names to the symptom words
// patients actually type. Specialties absent here still match by name.
var specialtyTerms = map[string][]string{
	"cardiologia":   {"coração", "coracao", "pressão", "pressao", "peito", "palpitação", "palpitacao", "cardio"},
	"dermatologia":  {"pele", "mancha", "acne", "coceira", "alergia na pele", "derma"},
	"ortopedia":     {"osso", "joelho", "coluna", "fratura", "costas", "ombro", "tornozelo"},
	"pediatria":     {"criança", "crianca", "filho", "filha", "bebê", "bebe", "pediatra"},
	"ginecologia":   {"gineco", "menstruação", "menstruacao", "gravidez", "preventivo"},
	"oftalmologia":  {"olho", "olhos", "visão", "visao", "vista", "óculos", "oculos"},
	"clínica geral": {"geral", "check-up", "checkup", "rotina", "febre", "gripe", "resfriado", "dor de cabeça", "dor de cabeca"},
	"psiquiatria":   {"ansiedade", "depressão", "depressao", "insônia", "insonia", "pânico", "panico"},
}

func termsForSpecialty(name string) []string {
	return specialtyTerms[strings.ToLower(name)]
}
