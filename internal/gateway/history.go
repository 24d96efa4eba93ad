package gateway

import (
	"context"
	"fmt"
	"net/http"
)

type HistoryEntry struct {
	ID          int64  `json:"id_histmed"`
	Description string `json:"hist_descricao"`
	UpdatedAt   string `json:"hist_data_ultima_alteracao"`
}

type HistoryAllergy struct {
	HistoryID int64  `json:"id_histmed"`
	Name      string `json:"alergia_nome"`
	CID       string `json:"alergia_cid"`
}

type HistoryPrescription struct {
	HistoryID int64  `json:"id_histmed"`
	Text      string `json:"hist_prescricao"`
}

type HistoryMedication struct {
	HistoryID    int64  `json:"id_histmed"`
	MedicationID int64  `json:"id_medicamento"`
	Name         string `json:"medicamento_nome"`
	Dosage       string `json:"medicamento_posologia"`
	Duration     string `json:"duracao"`
}

type HistoryDisease struct {
	HistoryID int64  `json:"id_histmed"`
	Name      string `json:"doenca_nome"`
	CID       string `json:"doenca_cid"`
}

type HistoryFamilyDisease struct {
	HistoryID       int64  `json:"id_histmed"`
	FamilyDiseaseID int64  `json:"id_doenca_familiar"`
	Name            string `json:"doenca_familiar_nome"`
	CID             string `json:"doenca_familiar_cid"`
}

// History is the aggregated medical history of one patient.
type History struct {
	Entries        []HistoryEntry         `json:"historicos"`
	Allergies      []HistoryAllergy       `json:"alergias"`
	Prescriptions  []HistoryPrescription  `json:"prescricoes"`
	Medications    []HistoryMedication    `json:"medicamentos"`
	Diseases       []HistoryDisease       `json:"doencas"`
	FamilyDiseases []HistoryFamilyDisease `json:"doencas_familiares"`
}

// HistoryNote opens or extends a patient's history from a consultation.
type HistoryNote struct {
	AppointmentID int64  `json:"id_consulta"`
	PatientID     int64  `json:"id_paciente"`
	DoctorID      int64  `json:"id_medico"`
	Description   string `json:"hist_descricao"`
}

// MedicationEntry prescribes a catalog medication. Either DosageID or a free
// text dosage is set.
type MedicationEntry struct {
	MedicationID int64  `json:"id_medicamento"`
	DurationID   int64  `json:"id_duracao_med"`
	DosageID     int64  `json:"id_posologia,omitempty"`
	FreeDosage   int    `json:"posologia_livre"`
	DosageText   string `json:"descricao_posologia,omitempty"`
}

// GetHistory fails with ErrNotFound when the patient has no history yet.
func (c *Client) GetHistory(ctx context.Context, patientID int64) (History, error) {
	var h History
	if err := c.get(ctx, fmt.Sprintf("/historico-medico/paciente/%d", patientID), nil, &h); err != nil {
		return History{}, fmt.Errorf("get history of patient %d: %w", patientID, err)
	}
	return h, nil
}

func (c *Client) AddHistoryNote(ctx context.Context, n HistoryNote) error {
	if err := c.send(ctx, http.MethodPost, "/historico-medico", n, nil); err != nil {
		return fmt.Errorf("add history note: %w", err)
	}
	return nil
}

func (c *Client) AddAllergy(ctx context.Context, historyID, allergyID int64) error {
	return c.addToHistory(ctx, historyID, "alergias", map[string]int64{"id_alergia": allergyID})
}

func (c *Client) AddDisease(ctx context.Context, historyID, diseaseID int64) error {
	return c.addToHistory(ctx, historyID, "doencas", map[string]int64{"id_doenca": diseaseID})
}

func (c *Client) AddFamilyDisease(ctx context.Context, historyID, familyDiseaseID int64) error {
	return c.addToHistory(ctx, historyID, "doencasfamiliares", map[string]int64{"id_doenca_familiar": familyDiseaseID})
}

func (c *Client) AddPrescription(ctx context.Context, historyID int64, text string) error {
	return c.addToHistory(ctx, historyID, "prescricoes", map[string]string{"hist_prescricao": text})
}

func (c *Client) AddMedication(ctx context.Context, historyID int64, m MedicationEntry) error {
	return c.addToHistory(ctx, historyID, "medicamentos", m)
}

func (c *Client) addToHistory(ctx context.Context, historyID int64, sub string, body any) error {
	if err := c.send(ctx, http.MethodPost, fmt.Sprintf("/historico-medico/%d/%s", historyID, sub), body, nil); err != nil {
		return fmt.Errorf("add %s to history %d: %w", sub, historyID, err)
	}
	return nil
}

// CatalogKind names one of the backend lookup tables.
type CatalogKind string

const (
	CatalogAllergies      CatalogKind = "alergias"
	CatalogDiseases       CatalogKind = "doencas"
	CatalogFamilyDiseases CatalogKind = "doencasfamiliares"
	CatalogMedications    CatalogKind = "medicamentos"
	CatalogDurations      CatalogKind = "duracoes"
	CatalogDosages        CatalogKind = "posologias"
)

type CatalogEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	CID  string `json:"cid,omitempty"`
	Free bool   `json:"free,omitempty"` // dosage entries that take free text
}

var catalogKeys = map[CatalogKind][3]string{
	CatalogAllergies:      {"id_alergia", "alergia_nome", "alergia_cid"},
	CatalogDiseases:       {"id_doenca", "doenca_nome", "doenca_cid"},
	CatalogFamilyDiseases: {"id_doenca_familiar", "doenca_familiar_nome", "doenca_familiar_cid"},
	CatalogMedications:    {"id_medicamento", "medicamento_nome", ""},
	CatalogDurations:      {"id_duracao", "descricao_duracao", ""},
	CatalogDosages:        {"id_posologia", "descricao_posologia", ""},
}

func (c *Client) Catalog(ctx context.Context, kind CatalogKind) ([]CatalogEntry, error) {
	keys, ok := catalogKeys[kind]
	if !ok {
		return nil, fmt.Errorf("unknown catalog %q", kind)
	}
	var rows []map[string]any
	if err := c.get(ctx, "/"+string(kind), nil, &rows); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := make([]CatalogEntry, 0, len(rows))
	for _, r := range rows {
		e := CatalogEntry{
			ID:   toInt64(r[keys[0]]),
			Name: toString(r[keys[1]]),
		}
		if keys[2] != "" {
			e.CID = toString(r[keys[2]])
		}
		if kind == CatalogDosages {
			e.Free = toInt64(r["posologia_livre"]) == 1
		}
		out = append(out, e)
	}
	return out, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
