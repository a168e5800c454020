package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
)

const cancelReason = "cancelled by patient via chat"

func cancellationReply(success bool, msg string) *Reply {
	return &Reply{Success: success, Kind: KindText, NextState: StateCancellation, Message: msg}
}

func appointmentListing(appts []clinic.AppointmentDetail) string {
	var b strings.Builder
	for i, a := range appts {
		fmt.Fprintf(&b, "%d. %s às %s com %s (%s) na unidade %s\n",
			i+1, a.Date.Format("02/01/2006"), a.Start.String(), a.ProviderName, a.SpecialtyName, a.LocationName)
	}
	return b.String()
}

// handleCancellation runs in two phases: identify the patient by CPF and
// list the cancellable appointments, then resolve the pick and cancel.
// The CancelIDs snapshot in the bag pins the numbering the patient saw,
// so "2" keeps meaning the same appointment even if the list changed.
func (e *Engine) handleCancellation(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	if len(bag.CancelIDs) == 0 {
		return e.startCancellation(ctx, bag, text)
	}
	return e.resolveCancellation(ctx, bag, text)
}

func (e *Engine) startCancellation(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	id, ok := ExtractNationalID(text)
	if !ok {
		return cancellationReply(false, "Para cancelar uma consulta, me informe seu CPF (apenas números)."), nil
	}

	patient, err := e.store.GetPatientByNationalID(ctx, id)
	if errors.Is(err, clinic.ErrPatientNotFound) {
		return cancellationReply(false, fmt.Sprintf("Não encontrei cadastro para o CPF %s. Confere o número e me envia de novo, por favor.", FormatNationalID(id))), nil
	}
	if err != nil {
		return nil, err
	}

	appts, err := e.booker.ListCancellable(ctx, patient.ID)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		*bag = Bag{}
		return &Reply{
			Success:   true,
			Kind:      KindText,
			NextState: StateFinished,
			Message:   fmt.Sprintf("Você não tem consultas agendadas para cancelar, %s. Se quiser marcar uma nova, é só me dizer! 😊", firstName(patient.Name)),
		}, nil
	}

	bag.PatientID = &patient.ID
	bag.PatientName = patient.Name
	bag.CancelIDs = make([]uuid.UUID, 0, len(appts))
	for _, a := range appts {
		bag.CancelIDs = append(bag.CancelIDs, a.ID)
	}

	msg := fmt.Sprintf("Encontrei estas consultas agendadas, %s:\n\n%s\nQual você quer cancelar? Responda com o número.",
		firstName(patient.Name), appointmentListing(appts))
	return &Reply{
		Success:      true,
		Kind:         KindAppointments,
		NextState:    StateCancellation,
		Message:      msg,
		Appointments: appointmentOptions(appts),
	}, nil
}

func (e *Engine) resolveCancellation(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	appts, err := e.booker.CandidatesByIDs(ctx, bag.CancelIDs)
	if err != nil {
		return nil, err
	}
	if len(appts) == 0 {
		*bag = Bag{}
		return &Reply{
			Success:   true,
			Kind:      KindText,
			NextState: StateFinished,
			Message:   "Essas consultas já não estão mais agendadas. Se precisar de algo mais, é só me chamar! 😊",
		}, nil
	}

	listing := appointmentListing(appts)
	idx, ok := e.pickOrdinal(ctx, text, listing, len(appts))
	if !ok {
		return cancellationReply(false, "Não entendi qual consulta você quer cancelar. Responda com o número:\n\n"+listing), nil
	}

	chosen := appts[idx]
	_, err = e.booker.Cancel(ctx, chosen.ID, cancelReason)
	if errors.Is(err, clinic.ErrAppointmentNotFound) {
		// Already cancelled elsewhere. Rebuild the snapshot and re-ask.
		remaining := make([]uuid.UUID, 0, len(bag.CancelIDs))
		for _, cid := range bag.CancelIDs {
			if cid != chosen.ID {
				remaining = append(remaining, cid)
			}
		}
		bag.CancelIDs = remaining
		if len(remaining) == 0 {
			*bag = Bag{}
			return &Reply{
				Success:   true,
				Kind:      KindText,
				NextState: StateFinished,
				Message:   "Essa consulta já tinha sido cancelada. Você não tem mais consultas agendadas. 😊",
			}, nil
		}
		fresh, listErr := e.booker.CandidatesByIDs(ctx, remaining)
		if listErr != nil {
			return nil, listErr
		}
		return cancellationReply(false, "Essa consulta já tinha sido cancelada. Estas ainda estão agendadas:\n\n"+appointmentListing(fresh)+"\nQual você quer cancelar?"), nil
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("appointment cancelled via chat", "appointment_id", chosen.ID, "patient_id", chosen.PatientID)

	id := chosen.ID
	*bag = Bag{}
	return &Reply{
		Success:   true,
		Kind:      KindSuccess,
		NextState: StateFinished,
		Message: fmt.Sprintf(
			"✅ Consulta cancelada:\n\n📅 %s às %s com %s (%s)\n\nSe quiser remarcar, é só me dizer que eu agendo um novo horário. 😊",
			chosen.Date.Format("02/01/2006"), chosen.Start.String(), chosen.ProviderName, chosen.SpecialtyName),
		AppointmentID: &id,
	}, nil
}
