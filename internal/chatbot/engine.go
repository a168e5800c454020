package chatbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/booking"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/intent"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/llm"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
	"github.com/clinicdesk/clinic-scheduling-bot/pkg/logging"
)

// displayMax caps how many slots one reply shows. The resolver finds up
// to its own cap, but past the first handful patients just answer "1"
// anyway and a long list hurts readability on chat transports.
const displayMax = 5

// Store is the read/write surface the conversation engine needs from the
// repository. *clinic.PgRepository satisfies it.
type Store interface {
	GetPatientByNationalID(ctx context.Context, nationalID string) (*clinic.Patient, error)
	CreatePatient(ctx context.Context, p *clinic.Patient) error
	ListActiveLocations(ctx context.Context) ([]clinic.Location, error)
	ListSpecialtiesWithAvailability(ctx context.Context, locationID uuid.UUID) ([]clinic.Specialty, error)
	GetConfigValue(ctx context.Context, key, fallback string) (string, error)
	ListUpcomingForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) ([]clinic.AppointmentDetail, error)
	ListPastForPatient(ctx context.Context, patientID uuid.UUID, before time.Time, limit int) ([]clinic.AppointmentDetail, error)
}

// SlotSource produces bookable slots. *scheduling.Resolver satisfies it.
type SlotSource interface {
	Available(ctx context.Context, locationID, specialtyID uuid.UUID) ([]scheduling.Slot, error)
}

// Booker executes the transactional side of the dialogue.
// *booking.Service satisfies it.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*booking.Result, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*clinic.Appointment, error)
	ListCancellable(ctx context.Context, patientID uuid.UUID) ([]clinic.AppointmentDetail, error)
	CandidatesByIDs(ctx context.Context, ids []uuid.UUID) ([]clinic.AppointmentDetail, error)
}

type Engine struct {
	store      Store
	slots      SlotSource
	booker     Booker
	intents    *intent.Detector
	classifier llm.Classifier
	log        *logging.Logger
	now        func() time.Time
}

func NewEngine(store Store, slots SlotSource, booker Booker, intents *intent.Detector, classifier llm.Classifier, log *logging.Logger) *Engine {
	return &Engine{
		store:      store,
		slots:      slots,
		booker:     booker,
		intents:    intents,
		classifier: classifier,
		log:        log,
		now:        time.Now,
	}
}

// Handle processes one inbound message against the conversation and
// returns the reply. On return conv.State and conv.Data reflect the new
// position; the caller persists them. Handle never fails: any internal
// error resets the conversation to the start with an apology.
func (e *Engine) Handle(ctx context.Context, conv *clinic.Conversation, text string) (reply *Reply) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("conversation handler panicked", "session_id", conv.SessionID, "panic", r)
			reply = e.reset(conv)
		}
	}()

	bag, err := decodeBag(conv.Data)
	if err != nil {
		e.log.Warn("conversation bag corrupt, restarting", "session_id", conv.SessionID, "error", err)
		return e.reset(conv)
	}

	state := State(conv.State)
	if state == "" {
		state = StateInitial
	}

	// Cancellation words interrupt whatever was going on, except the
	// cancellation dialogue itself where "cancelar" is a valid answer.
	if state != StateCancellation && intent.MatchesCancellation(text) {
		state = StateCancellation
		*bag = Bag{}
	} else if state != StateInitial && e.isGreeting(ctx, text, state) {
		state = StateInitial
		*bag = Bag{}
	}

	reply, err = e.dispatch(ctx, state, conv, bag, text)
	if err != nil {
		e.log.Error("conversation turn failed", "session_id", conv.SessionID, "state", string(state), "error", err)
		return e.reset(conv)
	}

	conv.State = string(reply.NextState)
	conv.PatientID = bag.PatientID
	conv.Data = encodeBag(bag)
	return reply
}

func (e *Engine) dispatch(ctx context.Context, state State, conv *clinic.Conversation, bag *Bag, text string) (*Reply, error) {
	switch state {
	case StateInitial, StateFinished:
		return e.handleInitial(ctx, bag, text)
	case StateAwaitingID:
		return e.handleAwaitingID(ctx, bag, text)
	case StateRegistration:
		return e.handleRegistration(ctx, bag, text)
	case StateLocation:
		return e.handleLocation(ctx, bag, text)
	case StateSpecialty:
		return e.handleSpecialty(ctx, bag, text)
	case StateTimeSlot:
		return e.handleTimeSlot(ctx, bag, text)
	case StateConfirmation:
		return e.handleConfirmation(ctx, bag, text)
	case StateCancellation:
		return e.handleCancellation(ctx, bag, text)
	case StateLookup:
		return e.handleLookup(ctx, bag, text)
	default:
		e.log.Warn("unknown conversation state, restarting", "session_id", conv.SessionID, "state", string(state))
		*bag = Bag{}
		return e.handleInitial(ctx, bag, text)
	}
}

// reset is the failsafe: wipe the conversation and apologize rather than
// leave the patient stuck mid-flow.
func (e *Engine) reset(conv *clinic.Conversation) *Reply {
	conv.State = string(StateInitial)
	conv.Data = encodeBag(&Bag{})
	return &Reply{
		Success:   false,
		Message:   "Desculpe, tive um problema para processar sua mensagem. 😔 Vamos recomeçar: você gostaria de agendar uma consulta?",
		Kind:      KindError,
		NextState: StateInitial,
	}
}

const greetingPrompt = `O usuário de um chatbot de clínica médica enviou: %q

Essa mensagem é apenas uma saudação ou um pedido para recomeçar a conversa (ex: "oi", "olá", "bom dia", "quero começar de novo")? Responda apenas "sim" ou "não".`

// isGreeting decides whether the message restarts the conversation. The
// keyword list always applies; the classifier round trip is skipped for
// the cancellation handshake and for bare option numbers, where a wrong
// "sim" would silently discard the patient's choice.
func (e *Engine) isGreeting(ctx context.Context, text string, state State) bool {
	if intent.MatchesGreetingKeyword(text) {
		return true
	}
	if e.classifier == nil || state == StateCancellation {
		return false
	}
	if leadingNumber.MatchString(strings.TrimSpace(text)) {
		return false
	}
	out, err := e.classifier.Classify(ctx, fmt.Sprintf(greetingPrompt, text))
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(out)), "sim")
}
