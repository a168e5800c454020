package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/intent"
)

// Clinic-wide presentation values live in the clinic_config table so the
// front desk can change them without a deploy.
const (
	configClinicName    = "clinic_name"
	configClinicPhone   = "clinic_phone"
	configOpeningHours  = "opening_hours"
	configAssistantName = "assistant_name"
)

// configValue reads a presentation setting, falling back silently: a
// database blip on a cosmetic value should not derail the conversation.
func (e *Engine) configValue(ctx context.Context, key, fallback string) string {
	v, err := e.store.GetConfigValue(ctx, key, fallback)
	if err != nil {
		e.log.Warn("config read failed", "key", key, "error", err)
		return fallback
	}
	return v
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return full
	}
	return fields[0]
}

func (e *Engine) handleInitial(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	switch e.intents.Detect(ctx, text) {
	case intent.Cancellation:
		*bag = Bag{}
		return &Reply{
			Success:   true,
			Kind:      KindText,
			NextState: StateCancellation,
			Message:   "Para cancelar uma consulta, preciso confirmar sua identidade. Por favor, me informe seu CPF (apenas números).",
		}, nil
	case intent.Lookup:
		*bag = Bag{}
		return &Reply{
			Success:   true,
			Kind:      KindText,
			NextState: StateLookup,
			Message:   "Claro! Para consultar seus agendamentos, me informe seu CPF (apenas números).",
		}, nil
	case intent.Info:
		return e.clinicInfoReply(ctx)
	case intent.OffTopic:
		return e.guidanceReply(ctx), nil
	default:
		*bag = Bag{}
		assistant := e.configValue(ctx, configAssistantName, "Ana")
		clinicName := e.configValue(ctx, configClinicName, "nossa clínica")
		msg := fmt.Sprintf(
			"Olá! Eu sou a %s, assistente virtual da %s. 😊 Vou te ajudar a agendar sua consulta!\n\nPara começar, me informe seu CPF (apenas números).",
			assistant, clinicName)
		return &Reply{Success: true, Kind: KindText, NextState: StateAwaitingID, Message: msg}, nil
	}
}

func (e *Engine) clinicInfoReply(ctx context.Context) (*Reply, error) {
	locs, err := e.store.ListActiveLocations(ctx)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏥 %s\n", e.configValue(ctx, configClinicName, "Nossa clínica"))
	fmt.Fprintf(&b, "📞 Telefone: %s\n", e.configValue(ctx, configClinicPhone, "(11) 4000-0000"))
	fmt.Fprintf(&b, "🕐 Atendimento: %s\n", e.configValue(ctx, configOpeningHours, "segunda a sexta, das 7h às 19h"))
	if len(locs) > 0 {
		b.WriteString("\n📍 Unidades:\n")
		for _, l := range locs {
			fmt.Fprintf(&b, "- %s (%s): %s\n", l.Name, l.City, l.Address)
		}
	}
	b.WriteString("\nPosso te ajudar a agendar uma consulta? É só me dizer! 😊")
	return &Reply{Success: true, Kind: KindInfo, NextState: StateInitial, Message: b.String()}, nil
}

func (e *Engine) guidanceReply(ctx context.Context) *Reply {
	msg := fmt.Sprintf(
		"Eu sou a %s, assistente virtual da %s, e consigo ajudar com agendamento, cancelamento e consulta de horários. 😊\n\nPara outros assuntos, fale com nossa equipe pelo telefone %s. Quer agendar uma consulta?",
		e.configValue(ctx, configAssistantName, "Ana"),
		e.configValue(ctx, configClinicName, "nossa clínica"),
		e.configValue(ctx, configClinicPhone, "(11) 4000-0000"))
	return &Reply{Success: true, Kind: KindGuidance, NextState: StateInitial, Message: msg}
}

func (e *Engine) handleAwaitingID(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	id, ok := ExtractNationalID(text)
	if !ok {
		return &Reply{
			Success:   false,
			Kind:      KindText,
			NextState: StateAwaitingID,
			Message:   "Não consegui identificar um CPF válido. Por favor, digite os 11 números do seu CPF (ex: 123.456.789-01).",
		}, nil
	}

	patient, err := e.store.GetPatientByNationalID(ctx, id)
	if errors.Is(err, clinic.ErrPatientNotFound) {
		bag.NationalID = id
		bag.Registration = &RegistrationData{Step: StepName}
		msg := fmt.Sprintf(
			"O CPF %s ainda não está cadastrado. Vamos fazer seu cadastro rapidinho! 😊\n\nQual é o seu nome completo?",
			FormatNationalID(id))
		return &Reply{Success: true, Kind: KindText, NextState: StateRegistration, Message: msg}, nil
	}
	if err != nil {
		return nil, err
	}

	bag.NationalID = patient.NationalID
	bag.PatientID = &patient.ID
	bag.PatientName = patient.Name
	return e.locationsReply(ctx, fmt.Sprintf("Que bom te ver, %s! 😊\n\n", firstName(patient.Name)))
}

// locationsReply lists the active locations and moves to the location
// state. prefix is prepended to the message, empty for a bare re-ask.
func (e *Engine) locationsReply(ctx context.Context, prefix string) (*Reply, error) {
	locs, err := e.store.ListActiveLocations(ctx)
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return &Reply{
			Success:   false,
			Kind:      KindError,
			NextState: StateInitial,
			Message:   "No momento não há unidades disponíveis para agendamento. Por favor, tente novamente mais tarde.",
		}, nil
	}

	opts := make([]LocationOption, 0, len(locs))
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString("Em qual unidade você prefere ser atendido(a)?\n\n")
	for i, l := range locs {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, l.Name, l.City)
		opts = append(opts, LocationOption{ID: l.ID, Name: l.Name, City: l.City})
	}
	b.WriteString("\nResponda com o número ou o nome da unidade.")
	return &Reply{Success: true, Kind: KindLocations, NextState: StateLocation, Message: b.String(), Locations: opts}, nil
}

var statusLabels = map[clinic.AppointmentStatus]string{
	clinic.StatusScheduled: "agendada",
	clinic.StatusCompleted: "realizada",
	clinic.StatusCancelled: "cancelada",
	clinic.StatusNoShow:    "não compareceu",
}

func (e *Engine) handleLookup(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	id, ok := ExtractNationalID(text)
	if !ok {
		return &Reply{
			Success:   false,
			Kind:      KindText,
			NextState: StateLookup,
			Message:   "Para consultar seus agendamentos, me informe seu CPF (apenas números).",
		}, nil
	}

	patient, err := e.store.GetPatientByNationalID(ctx, id)
	if errors.Is(err, clinic.ErrPatientNotFound) {
		return &Reply{
			Success:   false,
			Kind:      KindText,
			NextState: StateInitial,
			Message:   fmt.Sprintf("Não encontrei cadastro para o CPF %s. Quer agendar uma consulta? Posso fazer seu cadastro na hora. 😊", FormatNationalID(id)),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	now := e.now()
	upcoming, err := e.store.ListUpcomingForPatient(ctx, patient.ID, now)
	if err != nil {
		return nil, err
	}
	past, err := e.store.ListPastForPatient(ctx, patient.ID, now, 3)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Olá, %s! 😊\n\n", firstName(patient.Name))
	if len(upcoming) == 0 {
		b.WriteString("Você não tem consultas agendadas no momento.\n")
	} else {
		b.WriteString("📅 Próximas consultas:\n")
		for i, a := range upcoming {
			fmt.Fprintf(&b, "%d. %s às %s com %s (%s) na unidade %s\n",
				i+1, a.Date.Format("02/01/2006"), a.Start.String(), a.ProviderName, a.SpecialtyName, a.LocationName)
		}
	}
	if len(past) > 0 {
		b.WriteString("\n🕓 Consultas anteriores:\n")
		for _, a := range past {
			fmt.Fprintf(&b, "- %s, %s com %s (%s)\n",
				a.Date.Format("02/01/2006"), statusLabels[a.Status], a.ProviderName, a.SpecialtyName)
		}
	}
	b.WriteString("\nQuer agendar uma nova consulta ou cancelar alguma? É só me dizer!")

	*bag = Bag{}
	return &Reply{
		Success:      true,
		Kind:         KindAppointments,
		NextState:    StateFinished,
		Message:      b.String(),
		Appointments: appointmentOptions(upcoming),
	}, nil
}
