package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/clinic"
)

func registrationReply(success bool, msg string) *Reply {
	return &Reply{Success: success, Kind: KindText, NextState: StateRegistration, Message: msg}
}

func (e *Engine) handleRegistration(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	if bag.Registration == nil || bag.NationalID == "" {
		bag.Registration = nil
		return &Reply{
			Success:   false,
			Kind:      KindText,
			NextState: StateAwaitingID,
			Message:   "Perdi os dados do seu cadastro, vamos recomeçar. Por favor, me informe seu CPF (apenas números).",
		}, nil
	}

	reg := bag.Registration
	switch reg.Step {
	case StepName:
		name := strings.TrimSpace(text)
		if len([]rune(name)) < 3 || !strings.Contains(name, " ") {
			return registrationReply(false, "Por favor, me informe seu nome completo (nome e sobrenome)."), nil
		}
		reg.Name = name
		reg.Step = StepBirthDate
		return registrationReply(true, fmt.Sprintf("Prazer, %s! 😊 Agora me informe sua data de nascimento (dd/mm/aaaa).", firstName(name))), nil

	case StepBirthDate:
		birth, ok := ParseBirthDate(text, e.now())
		if !ok {
			return registrationReply(false, "Data inválida. Use o formato dd/mm/aaaa (ex: 15/03/1990)."), nil
		}
		reg.BirthDate = birth.Format("2006-01-02")
		reg.Step = StepPhone
		return registrationReply(true, "Anotado! Qual é o seu telefone com DDD? (ex: 11 98765-4321)"), nil

	case StepPhone:
		phone, ok := ExtractPhone(text)
		if !ok {
			return registrationReply(false, "Não consegui identificar o telefone. Informe o número com DDD, ex: 11 98765-4321."), nil
		}
		reg.Phone = phone
		reg.Step = StepEmail
		return registrationReply(true, "Qual é o seu e-mail? Se preferir não informar, responda 'pular'."), nil

	case StepEmail:
		if IsSkip(text) {
			reg.Email = nil
		} else {
			email, ok := ExtractEmail(text)
			if !ok {
				return registrationReply(false, "E-mail inválido. Digite um e-mail válido ou responda 'pular'."), nil
			}
			reg.Email = &email
		}
		reg.Step = StepPayment
		return registrationReply(true, "Última pergunta: você tem plano de saúde? Me informe o número da carteirinha, ou responda 'particular' para atendimento particular."), nil

	case StepPayment:
		return e.finishRegistration(ctx, bag, text)

	default:
		bag.Registration = &RegistrationData{Step: StepName}
		return registrationReply(false, "Vamos continuar seu cadastro. Qual é o seu nome completo?"), nil
	}
}

func isCardLike(s string) bool {
	if len(s) < 6 || len(s) > 30 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (e *Engine) finishRegistration(ctx context.Context, bag *Bag, text string) (*Reply, error) {
	reg := bag.Registration
	patient := &clinic.Patient{
		ID:         uuid.New(),
		NationalID: bag.NationalID,
		Name:       reg.Name,
		Phone:      reg.Phone,
		Email:      reg.Email,
	}
	if reg.BirthDate != "" {
		if birth, err := time.ParseInLocation("2006-01-02", reg.BirthDate, time.UTC); err == nil {
			patient.BirthDate = &birth
		}
	}

	if IsSelfPay(text) {
		patient.PaymentType = clinic.PaymentSelfPay
	} else {
		card := strings.ReplaceAll(strings.TrimSpace(text), " ", "")
		if !isCardLike(card) {
			return registrationReply(false, "Não entendi. Me informe o número da carteirinha do seu plano, ou responda 'particular'."), nil
		}
		patient.PaymentType = clinic.PaymentInsurance
		patient.InsuranceCard = &card
	}

	err := e.store.CreatePatient(ctx, patient)
	if errors.Is(err, clinic.ErrDuplicatePatient) {
		// Registered in parallel (another channel, front desk). Use the
		// existing record instead of failing the conversation.
		existing, lookupErr := e.store.GetPatientByNationalID(ctx, bag.NationalID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		patient = existing
	} else if err != nil {
		return nil, err
	}

	e.log.Info("patient registered via chat",
		"patient_id", patient.ID, "payment_type", string(patient.PaymentType))

	bag.PatientID = &patient.ID
	bag.PatientName = patient.Name
	bag.Registration = nil
	return e.locationsReply(ctx, fmt.Sprintf("Cadastro concluído, %s! ✅\n\n", firstName(patient.Name)))
}
