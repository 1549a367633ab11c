package trees

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// timestampLayout is a fixed-width UTC layout so that lexicographic order of
// stored values equals chronological order and substr(1,7) yields "YYYY-MM".
const timestampLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrInvalidUniqueID indicates that a record identifier is empty or exceeds storage bounds.
	ErrInvalidUniqueID = errors.New("trees: invalid unique id")
)

// FormatTimestamp renders the instant in the canonical stored form.
func FormatTimestamp(instant time.Time) string {
	return instant.UTC().Format(timestampLayout)
}

// ParseTimestamp reads a stored timestamp back into a time.Time.
func ParseTimestamp(value string) (time.Time, error) {
	parsed, err := time.Parse(timestampLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("trees: invalid timestamp %q: %w", value, err)
	}
	return parsed, nil
}

// NewUniqueID validates a raw record identifier.
func NewUniqueID(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUniqueID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUniqueID, maxIdentifierLength)
	}
	return trimmed, nil
}

// Actor identifies the authenticated user performing an operation. The
// values are snapshotted into record ownership columns on every write.
type Actor struct {
	ID       int64
	Username string
	Email    string
	FullName string
	IsAdmin  bool
}

// DisplayName resolves the name stored on records written by the actor.
func (a Actor) DisplayName() string {
	if strings.TrimSpace(a.FullName) != "" {
		return a.FullName
	}
	return a.Username
}

// TreeRecord is a georeferenced survey entry. UniqueID is the externally
// stable primary key; SequenceID is the server-assigned monotonic secondary
// identifier kept for legacy clients. The descriptive attributes are opaque
// to the core logic and pass through unchanged.
type TreeRecord struct {
	SequenceID   int64  `gorm:"column:id;not null" json:"id"`
	UniqueID     string `gorm:"column:unique_id;primaryKey;size:190;not null" json:"uniqueId"`
	UserID       string `gorm:"column:user_id;size:190;not null;index" json:"userId"`
	UserName     string `gorm:"column:user_name;size:320" json:"userName"`
	UserEmail    string `gorm:"column:user_email;size:320" json:"userEmail"`
	DataCadastro string `gorm:"column:data_cadastro;size:32;not null;index" json:"dataCadastro"`
	DataEdit     string `gorm:"column:data_edit;size:32;not null" json:"dataEdit"`

	Latitude               string   `gorm:"column:latitude" json:"latitude"`
	Longitude              string   `gorm:"column:longitude" json:"longitude"`
	Quadra                 string   `gorm:"column:quadra" json:"quadra"`
	NumeroArvore           string   `gorm:"column:numero_arvore" json:"numeroArvore"`
	Cidade                 string   `gorm:"column:cidade" json:"cidade"`
	Estado                 string   `gorm:"column:estado" json:"estado"`
	CEP                    string   `gorm:"column:cep" json:"cep"`
	Bairro                 string   `gorm:"column:bairro" json:"bairro"`
	RuaPraca               string   `gorm:"column:rua_praca" json:"ruaPraca"`
	NumeroCasa             string   `gorm:"column:numero_casa" json:"numeroCasa"`
	NomePopular            string   `gorm:"column:nome_popular" json:"nomePopular"`
	NomeCientifico         string   `gorm:"column:nome_cientifico" json:"nomeCientifico"`
	Altura                 string   `gorm:"column:altura" json:"altura"`
	CAP                    string   `gorm:"column:cap" json:"cap"`
	CalcadaLargura         string   `gorm:"column:calcada_largura" json:"calcadaLargura"`
	CalcadaFaixaLivre      string   `gorm:"column:calcada_faixa_livre" json:"calcadaFaixaLivre"`
	Estacionamento         string   `gorm:"column:estacionamento" json:"estacionamento"`
	Detalhamento           string   `gorm:"column:detalhamento" json:"detalhamento"`
	Parasitas              string   `gorm:"column:parasitas" json:"parasitas"`
	AlturaCopaAcima210     string   `gorm:"column:altura_copa_acima_2_10" json:"alturaCopaAcima210"`
	CondicaoFitossanitaria string   `gorm:"column:condicao_fitossanitaria" json:"condicaoFitossanitaria"`
	PodaAtual              string   `gorm:"column:poda_atual" json:"podaAtual"`
	Tratamento             string   `gorm:"column:tratamento" json:"tratamento"`
	Probabilidade          string   `gorm:"column:probabilidade" json:"probabilidade"`
	Impacto                string   `gorm:"column:impacto" json:"impacto"`
	AreaPermeavelMaior1m2  string   `gorm:"column:area_permeavel_maior_1m2" json:"areaPermeavelMaior1m2"`
	PresencaDe             []string `gorm:"column:presenca_de;serializer:json" json:"presencaDe"`
	Conflitos              []string `gorm:"column:conflitos;serializer:json" json:"conflitos"`
	Photos                 []string `gorm:"column:photos;serializer:json" json:"photos"`
}

// TableName provides the explicit table binding for GORM.
func (TreeRecord) TableName() string {
	return "tree_records"
}

// TreeSubmission carries client-supplied record fields. Pointer fields
// distinguish "absent" from "set to empty", which partial updates rely on.
type TreeSubmission struct {
	LocalID string `json:"localId"`

	Latitude               *string  `json:"latitude"`
	Longitude              *string  `json:"longitude"`
	Quadra                 *string  `json:"quadra"`
	NumeroArvore           *string  `json:"numeroArvore"`
	Cidade                 *string  `json:"cidade"`
	Estado                 *string  `json:"estado"`
	CEP                    *string  `json:"cep"`
	Bairro                 *string  `json:"bairro"`
	RuaPraca               *string  `json:"ruaPraca"`
	NumeroCasa             *string  `json:"numeroCasa"`
	NomePopular            *string  `json:"nomePopular"`
	NomeCientifico         *string  `json:"nomeCientifico"`
	Altura                 *string  `json:"altura"`
	CAP                    *string  `json:"cap"`
	CalcadaLargura         *string  `json:"calcadaLargura"`
	CalcadaFaixaLivre      *string  `json:"calcadaFaixaLivre"`
	Estacionamento         *string  `json:"estacionamento"`
	Detalhamento           *string  `json:"detalhamento"`
	Parasitas              *string  `json:"parasitas"`
	AlturaCopaAcima210     *string  `json:"alturaCopaAcima210"`
	CondicaoFitossanitaria *string  `json:"condicaoFitossanitaria"`
	PodaAtual              *string  `json:"podaAtual"`
	Tratamento             *string  `json:"tratamento"`
	Probabilidade          *string  `json:"probabilidade"`
	Impacto                *string  `json:"impacto"`
	AreaPermeavelMaior1m2  *string  `json:"areaPermeavelMaior1m2"`
	PresencaDe             []string `json:"presencaDe"`
	Conflitos              []string `json:"conflitos"`
	Photos                 []string `json:"photos"`
}

func stringValue(field *string) string {
	if field == nil {
		return ""
	}
	return *field
}

// descriptiveFields maps every descriptive/geo column to its submitted value,
// treating absent pointers as empty strings. Used where the whole record body
// is overwritten (create, sync update).
func (s TreeSubmission) descriptiveFields() map[string]interface{} {
	fields := map[string]interface{}{
		"latitude":                 stringValue(s.Latitude),
		"longitude":                stringValue(s.Longitude),
		"quadra":                   stringValue(s.Quadra),
		"numero_arvore":            stringValue(s.NumeroArvore),
		"cidade":                   stringValue(s.Cidade),
		"estado":                   stringValue(s.Estado),
		"cep":                      stringValue(s.CEP),
		"bairro":                   stringValue(s.Bairro),
		"rua_praca":                stringValue(s.RuaPraca),
		"numero_casa":              stringValue(s.NumeroCasa),
		"nome_popular":             stringValue(s.NomePopular),
		"nome_cientifico":          stringValue(s.NomeCientifico),
		"altura":                   stringValue(s.Altura),
		"cap":                      stringValue(s.CAP),
		"calcada_largura":          stringValue(s.CalcadaLargura),
		"calcada_faixa_livre":      stringValue(s.CalcadaFaixaLivre),
		"estacionamento":           stringValue(s.Estacionamento),
		"detalhamento":             stringValue(s.Detalhamento),
		"parasitas":                stringValue(s.Parasitas),
		"altura_copa_acima_2_10":   stringValue(s.AlturaCopaAcima210),
		"condicao_fitossanitaria":  stringValue(s.CondicaoFitossanitaria),
		"poda_atual":               stringValue(s.PodaAtual),
		"tratamento":               stringValue(s.Tratamento),
		"probabilidade":            stringValue(s.Probabilidade),
		"impacto":                  stringValue(s.Impacto),
		"area_permeavel_maior_1m2": stringValue(s.AreaPermeavelMaior1m2),
		"presenca_de":              marshalStringList(s.PresencaDe),
		"conflitos":                marshalStringList(s.Conflitos),
		"photos":                   marshalStringList(s.Photos),
	}
	return fields
}

// marshalStringList encodes list attributes for column-level updates, where
// GORM's field serializer does not apply.
func marshalStringList(values []string) string {
	if values == nil {
		values = []string{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// changedFields maps only the columns the client actually supplied. Used by
// partial updates so omitted fields keep their stored values.
func (s TreeSubmission) changedFields() map[string]interface{} {
	fields := map[string]interface{}{}
	pointerColumns := map[string]*string{
		"latitude":                 s.Latitude,
		"longitude":                s.Longitude,
		"quadra":                   s.Quadra,
		"numero_arvore":            s.NumeroArvore,
		"cidade":                   s.Cidade,
		"estado":                   s.Estado,
		"cep":                      s.CEP,
		"bairro":                   s.Bairro,
		"rua_praca":                s.RuaPraca,
		"numero_casa":              s.NumeroCasa,
		"nome_popular":             s.NomePopular,
		"nome_cientifico":          s.NomeCientifico,
		"altura":                   s.Altura,
		"cap":                      s.CAP,
		"calcada_largura":          s.CalcadaLargura,
		"calcada_faixa_livre":      s.CalcadaFaixaLivre,
		"estacionamento":           s.Estacionamento,
		"detalhamento":             s.Detalhamento,
		"parasitas":                s.Parasitas,
		"altura_copa_acima_2_10":   s.AlturaCopaAcima210,
		"condicao_fitossanitaria":  s.CondicaoFitossanitaria,
		"poda_atual":               s.PodaAtual,
		"tratamento":               s.Tratamento,
		"probabilidade":            s.Probabilidade,
		"impacto":                  s.Impacto,
		"area_permeavel_maior_1m2": s.AreaPermeavelMaior1m2,
	}
	for column, value := range pointerColumns {
		if value != nil {
			fields[column] = *value
		}
	}
	if s.PresencaDe != nil {
		fields["presenca_de"] = marshalStringList(s.PresencaDe)
	}
	if s.Conflitos != nil {
		fields["conflitos"] = marshalStringList(s.Conflitos)
	}
	if s.Photos != nil {
		fields["photos"] = marshalStringList(s.Photos)
	}
	return fields
}
