package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

type fakeClassifier struct {
	response string
	err      error
	calls    int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestDetectKeywordsShortCircuit(t *testing.T) {
	classifier := &fakeClassifier{response: "agendamento"}
	d := NewDetector(classifier, logging.New("error"))

	tests := []struct {
		text string
		want Intent
	}{
		{"quero cancelar minha consulta", Cancellation},
		{"pode desmarcar pra mim?", Cancellation},
		{"quais são meus agendamentos?", Lookup},
		{"qual o telefone da clínica?", Info},
		{"onde fica a unidade?", Info},
		{"vai chover? como está o clima?", OffTopic},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := d.Detect(context.Background(), tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Zero(t, classifier.calls, "keyword matches must not reach the classifier")
}

func TestDetectUsesClassifierLabels(t *testing.T) {
	tests := []struct {
		label string
		want  Intent
	}{
		{"agendamento", Scheduling},
		{"cancelamento", Cancellation},
		{"consulta", Lookup},
		{"informacao", Info},
		{"fora_escopo", OffTopic},
		{` "Agendamento" `, Scheduling},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			d := NewDetector(&fakeClassifier{response: tt.label}, logging.New("error"))
			got := d.Detect(context.Background(), "uma mensagem sem palavras chave")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFallsBackToSchedulingOnClassifierError(t *testing.T) {
	d := NewDetector(&fakeClassifier{err: errors.New("timeout")}, logging.New("error"))
	got := d.Detect(context.Background(), "hmm, uma mensagem qualquer")
	assert.Equal(t, Scheduling, got, "the pipeline never leaves the user without an intent")
}

func TestDetectWithoutClassifier(t *testing.T) {
	d := NewDetector(nil, logging.New("error"))
	assert.Equal(t, Scheduling, d.Detect(context.Background(), "estou com dor de cabeça"))
	assert.Equal(t, Scheduling, d.Detect(context.Background(), "xyz abc"))
}

func TestMatchesCancellation(t *testing.T) {
	assert.True(t, MatchesCancellation("preciso CANCELAR a consulta de amanhã"))
	assert.True(t, MatchesCancellation("desmarcar"))
	assert.False(t, MatchesCancellation("quero marcar uma consulta"))
}

func TestMatchesGreetingKeyword(t *testing.T) {
	assert.True(t, MatchesGreetingKeyword("oi"))
	assert.True(t, MatchesGreetingKeyword("Bom dia!"))
	assert.True(t, MatchesGreetingKeyword("olá tudo bem"))
	assert.False(t, MatchesGreetingKeyword("oitava consulta"), "prefix needs a word boundary")
	assert.False(t, MatchesGreetingKeyword("12345678901"))
}
