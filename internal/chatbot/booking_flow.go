package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/booking"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
	"github.com/clinicdesk/clinic-scheduling-bot/internal/scheduling"
)

func (e *Engine) handleLocation(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	locs, err := e.store.ListActiveLocations(ctx)
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return e.locationsReply(ctx, "")
	}

	choices := make([]choice, len(locs))
	for i, l := range locs {
		choices[i] = choice{Name: l.Name, Terms: []string{strings.ToLower(l.City)}}
	}
	idx, ok := e.selectOption(ctx, text, "uma unidade de atendimento", choices)
	if !ok {
		reply, err := e.locationsReply(ctx, "Não consegui identificar a unidade. 😅\n\n")
		if err != nil {
			return nil, err
		}
		reply.Success = false
		return reply, nil
	}

	loc := locs[idx]
	specs, err := e.store.ListSpecialtiesWithAvailability(ctx, loc.ID)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		reply, err := e.locationsReply(ctx, fmt.Sprintf("A unidade %s está sem agenda aberta no momento. 😔 Podemos tentar outra?\n\n", loc.Name))
		if err != nil {
			return nil, err
		}
		reply.Success = false
		return reply, nil
	}

	bag.LocationID = &loc.ID
	bag.LocationName = loc.Name
	return specialtiesReply(specs, fmt.Sprintf("Ótimo! Na unidade %s atendemos:\n\n", loc.Name)), nil
}

func specialtiesReply(specs []clinic.Specialty, prefix string) *Reply {
	opts := make([]SpecialtyOption, 0, len(specs))
	var b strings.Builder
	b.WriteString(prefix)
	for i, s := range specs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Name)
		opts = append(opts, SpecialtyOption{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	b.WriteString("\nQual especialidade você precisa? Pode me contar o sintoma que eu te oriento. 😊")
	return &Reply{Success: true, Kind: KindSpecialties, NextState: StateSpecialty, Message: b.String(), Specialties: opts}
}

func (e *Engine) handleSpecialty(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	if bag.LocationID == nil {
		return e.locationsReply(ctx, "Primeiro preciso saber onde você quer ser atendido(a).\n\n")
	}

	specs, err := e.store.ListSpecialtiesWithAvailability(ctx, *bag.LocationID)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		bag.LocationID = nil
		bag.LocationName = ""
		return e.locationsReply(ctx, "Essa unidade ficou sem agenda aberta. 😔 Podemos tentar outra?\n\n")
	}

	choices := make([]choice, len(specs))
	for i, s := range specs {
		choices[i] = choice{Name: s.Name, Terms: termsForSpecialty(s.Name)}
	}
	idx, ok := e.selectOption(ctx, text, "uma especialidade médica", choices)
	if !ok {
		reply := specialtiesReply(specs, "Não consegui identificar a especialidade. 😅 Estas são as opções:\n\n")
		reply.Success = false
		return reply, nil
	}

	spec := specs[idx]
	slots, err := e.slots.Available(ctx, *bag.LocationID, spec.ID)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		reply := specialtiesReply(specs, fmt.Sprintf("Poxa, estamos sem horários de %s nos próximos dias. 😔 Quer tentar outra especialidade?\n\n", spec.Name))
		reply.Success = false
		return reply, nil
	}

	bag.SpecialtyID = &spec.ID
	bag.SpecialtyName = spec.Name
	bag.Offered = truncateSlots(slots)
	bag.Chosen = nil
	return slotsReply(bag, fmt.Sprintf("Encontrei estes horários de %s na unidade %s:\n\n", spec.Name, bag.LocationName)), nil
}

func truncateSlots(slots []scheduling.Slot) []scheduling.Slot {
	if len(slots) > displayMax {
		return slots[:displayMax]
	}
	return slots
}

func slotListing(slots []scheduling.Slot) string {
	var b strings.Builder
	for i, s := range slots {
		fmt.Fprintf(&b, "%d. %s às %s com %s\n", i+1, s.DisplayDate(), s.Start.String(), s.ProviderName)
	}
	return b.String()
}

func slotsReply(bag *Bag, prefix string) *Reply {
	msg := prefix + slotListing(bag.Offered) + "\nResponda com o número do horário desejado."
	return &Reply{Success: true, Kind: KindSlots, NextState: StateTimeSlot, Message: msg, Slots: slotOptions(bag.Offered)}
}

func (e *Engine) handleTimeSlot(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	if bag.LocationID == nil || bag.SpecialtyID == nil {
		*bag = Bag{}
		return e.handleInitial(ctx, bag, text)
	}

	// Slots in the bag may be minutes old. They are re-verified under the
	// lock at booking time, so showing a stale one here only costs the
	// patient an extra round trip.
	if len(bag.Offered) == 0 {
		slots, err := e.slots.Available(ctx, *bag.LocationID, *bag.SpecialtyID)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			specs, err := e.store.ListSpecialtiesWithAvailability(ctx, *bag.LocationID)
			if err != nil {
				return nil, err
			}
			reply := specialtiesReply(specs, fmt.Sprintf("Os horários de %s se esgotaram. 😔 Quer tentar outra especialidade?\n\n", bag.SpecialtyName))
			reply.Success = false
			return reply, nil
		}
		bag.Offered = truncateSlots(slots)
	}

	idx, ok := e.pickOrdinal(ctx, text, slotListing(bag.Offered), len(bag.Offered))
	if !ok {
		reply := slotsReply(bag, "Não entendi qual horário você escolheu. 😅 Estas são as opções:\n\n")
		reply.Success = false
		return reply, nil
	}

	chosen := bag.Offered[idx]
	bag.Chosen = &chosen
	msg := fmt.Sprintf(
		"Confirmando seu agendamento:\n\n📅 Data: %s\n🕐 Horário: %s\n👨‍⚕️ Profissional: %s\n🩺 Especialidade: %s\n📍 Unidade: %s\n\nPosso confirmar? (sim/não)",
		chosen.DisplayDate(), chosen.Start.String(), chosen.ProviderName, bag.SpecialtyName, bag.LocationName)
	return &Reply{Success: true, Kind: KindConfirmation, NextState: StateConfirmation, Message: msg}, nil
}

func (e *Engine) handleConfirmation(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	if bag.Chosen == nil || bag.PatientID == nil || bag.SpecialtyID == nil {
		*bag = Bag{}
		return &Reply{
			Success:   false,
			Kind:      KindText,
			NextState: StateInitial,
			Message:   "Não tenho mais os dados desse agendamento. Vamos recomeçar? É só me dizer que quer marcar uma consulta. 😊",
		}, nil
	}

	switch {
	case IsYes(text):
		return e.book(ctx, bag)
	case IsNo(text):
		return e.reofferSlots(ctx, bag, "Sem problemas! Vamos escolher outro horário.\n\n")
	default:
		chosen := bag.Chosen
		msg := fmt.Sprintf(
			"Só preciso de um sim ou não. 😊 Confirmo a consulta de %s no dia %s às %s?",
			bag.SpecialtyName, chosen.DisplayDate(), chosen.Start.String())
		return &Reply{Success: false, Kind: KindConfirmation, NextState: StateConfirmation, Message: msg}, nil
	}
}

func (e *Engine) book(ctx context.Context, bag *Bag) (*Reply, error) {
	res, err := e.booker.Book(ctx, booking.Request{
		PatientID:   *bag.PatientID,
		SpecialtyID: *bag.SpecialtyID,
		Slot:        *bag.Chosen,
	})
	switch {
	case errors.Is(err, booking.ErrDuplicateSpecialty):
		specialty := bag.SpecialtyName
		*bag = Bag{}
		return &Reply{
			Success:   false,
			Kind:      KindError,
			NextState: StateInitial,
			Message: fmt.Sprintf(
				"Você já tem uma consulta de %s agendada. Para marcar um novo horário, é preciso cancelar a atual primeiro: é só me dizer 'cancelar consulta'. 😊",
				specialty),
		}, nil

	case errors.Is(err, booking.ErrSlotTaken),
		errors.Is(err, booking.ErrRecurringBlocked),
		errors.Is(err, booking.ErrSlotBeingBooked):
		return e.reofferSlots(ctx, bag, "Poxa, esse horário acabou de ser preenchido. 😔 Estes ainda estão livres:\n\n")

	case err != nil:
		// Nothing was persisted. Keep the confirmation pending so a
		// simple "sim" retries instead of restarting the whole flow.
		e.log.Error("booking failed", "patient_id", *bag.PatientID, "error", err)
		return &Reply{
			Success:   false,
			Kind:      KindError,
			NextState: StateConfirmation,
			Message:   "Tivemos um problema ao salvar seu agendamento e nada foi marcado ainda. Pode responder 'sim' novamente para tentar de novo.",
		}, nil
	}

	appt := res.Appointment
	chosen := *bag.Chosen
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Consulta agendada com sucesso!\n\n📅 %s\n🕐 %s\n👨‍⚕️ %s\n🩺 %s\n📍 %s\n\nCódigo do agendamento: %s",
		chosen.DisplayDate(), chosen.Start.String(), chosen.ProviderName, bag.SpecialtyName, bag.LocationName, appt.ID)
	if res.Recurring != nil {
		b.WriteString("\n\n🔁 Este profissional atende em agenda fixa: o mesmo dia e horário ficam reservados para você nas próximas semanas.")
	}
	b.WriteString("\n\nAté lá! Se precisar cancelar ou remarcar, é só me chamar. 😊")

	*bag = Bag{}
	id := appt.ID
	return &Reply{
		Success:       true,
		Kind:          KindSuccess,
		NextState:     StateFinished,
		Message:       b.String(),
		AppointmentID: &id,
	}, nil
}

// reofferSlots refreshes availability after the chosen slot fell through
// (patient said no, or the slot was taken underneath us).
func (e *Engine) reofferSlots(ctx context.Context, bag *Bag, prefix string) (*Reply, error) {
	bag.Chosen = nil
	bag.Offered = nil

	slots, err := e.slots.Available(ctx, *bag.LocationID, *bag.SpecialtyID)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		specs, err := e.store.ListSpecialtiesWithAvailability(ctx, *bag.LocationID)
		if err != nil {
			return nil, err
		}
		reply := specialtiesReply(specs, fmt.Sprintf("Os horários de %s se esgotaram. 😔 Quer tentar outra especialidade?\n\n", bag.SpecialtyName))
		reply.Success = false
		return reply, nil
	}

	bag.Offered = truncateSlots(slots)
	reply := slotsReply(bag, prefix)
	reply.Success = false
	return reply, nil
}
