package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/llm"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

// Intent is what the user wants from the very first message of a session.
type Intent string

const (
	Scheduling   Intent = "scheduling"
	Cancellation Intent = "cancellation"
	Lookup       Intent = "lookup"
	Info         Intent = "info"
	OffTopic     Intent = "off_topic"
)

// Matcher is one stage of the detection pipeline. Stages run in order and
// the pipeline stops at the first match.
type Matcher interface {
	Match(ctx context.Context, text string) (Intent, bool)
}

type MatcherFunc func(ctx context.Context, text string) (Intent, bool)

func (f MatcherFunc) Match(ctx context.Context, text string) (Intent, bool) {
	return f(ctx, text)
}

var cancellationWords = []string{
	"cancelar", "desmarcar", "remover consulta", "cancelo", "cancelamento",
}

var lookupPhrases = []string{
	"meus agendamentos", "minhas consultas", "consultar agendamento", "ver consultas",
}

var infoWords = []string{
	"telefone", "endereço", "endereco", "onde fica", "horário de funcionamento",
	"horario de funcionamento", "localização", "localizacao",
}

var offTopicWords = []string{
	"clima", "futebol", "política", "politica", "receita",
}

var schedulingHints = []string{
	"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "hello", "hi",
	"dor", "problema", "consulta", "médico", "medico", "doutor", "sintoma",
	"doença", "doenca", "preciso", "quero marcar", "agendar", "emergência",
	"emergencia",
}

// Greetings that always restart the conversation, matched exactly or as a
// prefix of the message.
var greetings = []string{
	"oi", "ola", "olá", "bom dia", "boa tarde", "boa noite", "hello", "hi",
	"hey", "e aí", "eai", "tudo bem", "como vai", "opa", "começar", "comecar",
	"iniciar", "reiniciar", "recomeçar", "recomecar", "novo agendamento",
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// MatchesCancellation reports whether the text carries a cancellation
// keyword. The state machine also uses this as its global override.
func MatchesCancellation(text string) bool {
	return containsAny(strings.ToLower(strings.TrimSpace(text)), cancellationWords)
}

// MatchesGreetingKeyword reports an exact or prefix match against the fixed
// greeting list.
func MatchesGreetingKeyword(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimRight(t, "!.?")
	for _, g := range greetings {
		if t == g || strings.HasPrefix(t, g+" ") {
			return true
		}
	}
	return false
}

// Detector classifies free text through an ordered matcher pipeline:
// keyword rules, then one LLM round trip, then a keyword heuristic that
// defaults to scheduling so the user is never blocked.
type Detector struct {
	matchers []Matcher
	log      *logging.Logger
}

func NewDetector(classifier llm.Classifier, log *logging.Logger) *Detector {
	d := &Detector{log: log}
	d.matchers = []Matcher{
		MatcherFunc(matchKeywords),
		&llmMatcher{classifier: classifier, log: log},
		MatcherFunc(matchHeuristic),
	}
	return d
}

// Detect runs the pipeline. It always returns an intent: the final heuristic
// stage never declines.
func (d *Detector) Detect(ctx context.Context, text string) Intent {
	for _, m := range d.matchers {
		if intent, ok := m.Match(ctx, text); ok {
			return intent
		}
	}
	return Scheduling
}

func matchKeywords(_ context.Context, text string) (Intent, bool) {
	t := strings.ToLower(strings.TrimSpace(text))

	switch {
	case containsAny(t, cancellationWords):
		return Cancellation, true
	case containsAny(t, lookupPhrases):
		return Lookup, true
	case containsAny(t, infoWords):
		return Info, true
	case containsAny(t, offTopicWords):
		return OffTopic, true
	}
	return "", false
}

func matchHeuristic(_ context.Context, text string) (Intent, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if containsAny(t, schedulingHints) {
		return Scheduling, true
	}
	// Unrecognized text still flows into scheduling rather than a dead end.
	return Scheduling, true
}

type llmMatcher struct {
	classifier llm.Classifier
	log        *logging.Logger
}

var llmLabels = map[string]Intent{
	"agendamento":  Scheduling,
	"cancelamento": Cancellation,
	"consulta":     Lookup,
	"informacao":   Info,
	"fora_escopo":  OffTopic,
}

const intentPrompt = `Você é o assistente virtual de uma clínica médica. Classifique a mensagem do usuário em uma das categorias:

1. "agendamento" - quer marcar consulta, saudações iniciais, menção de sintomas ou necessidade médica
2. "cancelamento" - quer cancelar ou desmarcar um agendamento existente
3. "consulta" - quer ver seus agendamentos já marcados
4. "informacao" - perguntas sobre a clínica (telefone, endereço, horários, especialidades)
5. "fora_escopo" - assuntos não relacionados à clínica

Mensagem: %q

Responda APENAS com uma palavra: agendamento, cancelamento, consulta, informacao ou fora_escopo.`

func (m *llmMatcher) Match(ctx context.Context, text string) (Intent, bool) {
	if m.classifier == nil {
		return "", false
	}

	answer, err := m.classifier.Classify(ctx, fmt.Sprintf(intentPrompt, text))
	if err != nil {
		m.log.Warn("intent llm unavailable, falling back", "error", err)
		return "", false
	}

	label := strings.Trim(strings.ToLower(strings.TrimSpace(answer)), `"'.`)
	intent, ok := llmLabels[label]
	if !ok {
		m.log.Warn("intent llm returned invalid label", "label", answer)
		return "", false
	}
	return intent, true
}
