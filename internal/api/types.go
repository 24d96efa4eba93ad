package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var dtoValidator = validator.New()

type ValidateRequest struct {
	Field string `json:"field" validate:"required"`
	Value string `json:"value"`
	Date  string `json:"date,omitempty"`
}

type ValidateResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Valid   bool   `json:"valid"`
}

type OpenAppointmentFormRequest struct {
	Mode          string `json:"mode" validate:"required,oneof=create edit reschedule"`
	AppointmentID int64  `json:"appointment_id" validate:"required_unless=Mode create,gte=0"`
}

type OpenPatientFormRequest struct {
	Mode      string `json:"mode" validate:"required,oneof=create edit"`
	PatientID int64  `json:"patient_id" validate:"required_if=Mode edit,gte=0"`
}

type StatusChangeRequest struct {
	StatusID int `json:"status_id" validate:"required,gt=0"`
}

type OpenConsultationRequest struct {
	AppointmentID int64 `json:"appointment_id" validate:"required,gt=0"`
}

type TextRequest struct {
	Text string `json:"text" validate:"required"`
}

type HistoryItemRequest struct {
	Item string `json:"item" validate:"required,oneof=allergy disease family_disease"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

type MedicationRequest struct {
	MedicationID int64  `json:"medication_id" validate:"required,gt=0"`
	DurationID   int64  `json:"duration_id" validate:"required,gt=0"`
	DosageID     int64  `json:"dosage_id" validate:"required_without=FreeDosage"`
	FreeDosage   string `json:"free_dosage" validate:"required_without=DosageID"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func listOf[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// Form is the form state when a form operation failed, so the dialog
	// can keep showing the retained values and field messages.
	Form any `json:"form,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeFormError(w http.ResponseWriter, status int, code, details string, state any) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details, Form: state})
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("could not parse JSON: %w", err)
	}
	return dtoValidator.Struct(dst)
}

// decodeRaw reads a JSON body without validation, for patches.
func decodeRaw(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("could not parse JSON: %w", err)
	}
	return nil
}
