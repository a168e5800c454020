package api

import (
	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling-bot/internal/chatbot"
)

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	*chatbot.Reply
}

type LocationResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Address string    `json:"address"`
	City    string    `json:"city"`
	Phone   string    `json:"phone"`
}

type SpecialtyResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
}

type AvailabilityRequest struct {
	LocationID  string `json:"location_id"`
	SpecialtyID string `json:"specialty_id"`
}

type SlotResponse struct {
	ProviderID   uuid.UUID `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
}

type ConfigUpdateRequest struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
