package trees

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultListPage  = 1
	defaultListLimit = 50

	defaultNumeroArvore = "1"
)

const (
	opServiceNew    = "trees.service.new"
	opCreateTree    = "trees.create_tree"
	opUpdateTree    = "trees.update_tree"
	opDeleteTree    = "trees.delete_tree"
	opListTrees     = "trees.list_trees"
	opSyncTrees     = "trees.sync_trees"
	opDashboardData = "trees.dashboard_data"
)

var (
	errMissingStore      = errors.New("record store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries an operation-scoped failure code for store and
// infrastructure errors. Domain conditions use the sentinel errors instead.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation-scoped failure code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ValidationError reports client-fixable field problems blocking a create.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	return "trees: validation failed"
}

// IDProvider issues unique identifiers for records created without a
// client-local id.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the record lifecycle service.
type ServiceConfig struct {
	Store      *Store
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements the record lifecycle: create, update, delete, list,
// offline sync reconciliation, and the dashboard aggregates.
type Service struct {
	store  *Store
	clock  func() time.Time
	ids    IDProvider
	logger *zap.Logger
}

// NewService constructs the tree record service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:  cfg.Store,
		clock:  clock,
		ids:    cfg.IDProvider,
		logger: logger,
	}, nil
}

// CreateTree validates and persists a new record. The client-local id, when
// present, becomes the record's unique id; a collision fails the whole call
// without a partial write.
func (s *Service) CreateTree(ctx context.Context, submission TreeSubmission, actor Actor) (*TreeRecord, error) {
	if fieldErrors := validateSubmission(actor); len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	if submission.LocalID != "" {
		validated, err := NewUniqueID(submission.LocalID)
		if err != nil {
			return nil, newServiceError(opCreateTree, "invalid_unique_id", err)
		}
		submission.LocalID = validated

		existing, err := s.store.FindByUniqueID(ctx, submission.LocalID)
		if err != nil {
			s.logError(opCreateTree, "lookup_failed", err, zap.String("unique_id", submission.LocalID))
			return nil, newServiceError(opCreateTree, "lookup_failed", err)
		}
		if existing != nil {
			return nil, ErrDuplicateTree
		}
	}

	uniqueID := submission.LocalID
	if uniqueID == "" {
		generated, err := s.ids.NewID()
		if err != nil {
			s.logError(opCreateTree, "id_generation_failed", err)
			return nil, newServiceError(opCreateTree, "id_generation_failed", err)
		}
		uniqueID = generated
	}

	sequenceID, err := s.store.NextSequenceID(ctx)
	if err != nil {
		s.logError(opCreateTree, "sequence_failed", err, zap.String("unique_id", uniqueID))
		return nil, newServiceError(opCreateTree, "sequence_failed", err)
	}

	stamp := FormatTimestamp(s.clock())
	record := newRecordFromSubmission(submission, actor, uniqueID, sequenceID, stamp)

	if err := s.store.Insert(ctx, record); err != nil {
		if errors.Is(err, ErrDuplicateTree) {
			return nil, ErrDuplicateTree
		}
		s.logError(opCreateTree, "insert_failed", err, zap.String("unique_id", uniqueID))
		return nil, newServiceError(opCreateTree, "insert_failed", err)
	}

	return record, nil
}

// UpdateTree merges the supplied fields over the addressed record and
// refreshes data_edit. data_cadastro, unique_id, and the sequence id are
// never touched.
func (s *Service) UpdateTree(ctx context.Context, uniqueID string, update TreeSubmission) (*TreeRecord, error) {
	existing, err := s.store.FindByUniqueID(ctx, uniqueID)
	if err != nil {
		s.logError(opUpdateTree, "lookup_failed", err, zap.String("unique_id", uniqueID))
		return nil, newServiceError(opUpdateTree, "lookup_failed", err)
	}
	if existing == nil {
		return nil, ErrTreeNotFound
	}

	fields := update.changedFields()
	fields["data_edit"] = FormatTimestamp(s.clock())

	if err := s.store.UpdateFields(ctx, uniqueID, fields); err != nil {
		s.logError(opUpdateTree, "update_failed", err, zap.String("unique_id", uniqueID))
		return nil, newServiceError(opUpdateTree, "update_failed", err)
	}

	refreshed, err := s.store.FindByUniqueID(ctx, uniqueID)
	if err != nil || refreshed == nil {
		s.logError(opUpdateTree, "reload_failed", err, zap.String("unique_id", uniqueID))
		return nil, newServiceError(opUpdateTree, "reload_failed", err)
	}
	return refreshed, nil
}

// DeleteTree removes the addressed record. There is no soft delete.
func (s *Service) DeleteTree(ctx context.Context, uniqueID string) error {
	existing, err := s.store.FindByUniqueID(ctx, uniqueID)
	if err != nil {
		s.logError(opDeleteTree, "lookup_failed", err, zap.String("unique_id", uniqueID))
		return newServiceError(opDeleteTree, "lookup_failed", err)
	}
	if existing == nil {
		return ErrTreeNotFound
	}
	if err := s.store.Delete(ctx, uniqueID); err != nil {
		s.logError(opDeleteTree, "delete_failed", err, zap.String("unique_id", uniqueID))
		return newServiceError(opDeleteTree, "delete_failed", err)
	}
	return nil
}

// ListResult is one page of records plus pagination metadata.
type ListResult struct {
	Records []TreeRecord
	Total   int64
	Page    int
	Limit   int
}

// ListTrees returns filtered, paginated records ordered newest-first.
func (s *Service) ListTrees(ctx context.Context, criteria ListCriteria) (ListResult, error) {
	if criteria.Page < 1 {
		criteria.Page = defaultListPage
	}
	if criteria.Limit < 1 {
		criteria.Limit = defaultListLimit
	}

	records, total, err := s.store.ListFiltered(ctx, criteria)
	if err != nil {
		s.logError(opListTrees, "query_failed", err)
		return ListResult{}, newServiceError(opListTrees, "query_failed", err)
	}
	return ListResult{
		Records: records,
		Total:   total,
		Page:    criteria.Page,
		Limit:   criteria.Limit,
	}, nil
}

func newRecordFromSubmission(submission TreeSubmission, actor Actor, uniqueID string, sequenceID int64, stamp string) *TreeRecord {
	numeroArvore := stringValue(submission.NumeroArvore)
	if numeroArvore == "" {
		numeroArvore = defaultNumeroArvore
	}
	return &TreeRecord{
		SequenceID:   sequenceID,
		UniqueID:     uniqueID,
		UserID:       strconv.FormatInt(actor.ID, 10),
		UserName:     actor.DisplayName(),
		UserEmail:    actor.Email,
		DataCadastro: stamp,
		DataEdit:     stamp,

		Latitude:               stringValue(submission.Latitude),
		Longitude:              stringValue(submission.Longitude),
		Quadra:                 stringValue(submission.Quadra),
		NumeroArvore:           numeroArvore,
		Cidade:                 stringValue(submission.Cidade),
		Estado:                 stringValue(submission.Estado),
		CEP:                    stringValue(submission.CEP),
		Bairro:                 stringValue(submission.Bairro),
		RuaPraca:               stringValue(submission.RuaPraca),
		NumeroCasa:             stringValue(submission.NumeroCasa),
		NomePopular:            stringValue(submission.NomePopular),
		NomeCientifico:         stringValue(submission.NomeCientifico),
		Altura:                 stringValue(submission.Altura),
		CAP:                    stringValue(submission.CAP),
		CalcadaLargura:         stringValue(submission.CalcadaLargura),
		CalcadaFaixaLivre:      stringValue(submission.CalcadaFaixaLivre),
		Estacionamento:         stringValue(submission.Estacionamento),
		Detalhamento:           stringValue(submission.Detalhamento),
		Parasitas:              stringValue(submission.Parasitas),
		AlturaCopaAcima210:     stringValue(submission.AlturaCopaAcima210),
		CondicaoFitossanitaria: stringValue(submission.CondicaoFitossanitaria),
		PodaAtual:              stringValue(submission.PodaAtual),
		Tratamento:             stringValue(submission.Tratamento),
		Probabilidade:          stringValue(submission.Probabilidade),
		Impacto:                stringValue(submission.Impacto),
		AreaPermeavelMaior1m2:  stringValue(submission.AreaPermeavelMaior1m2),
		PresencaDe:             submission.PresencaDe,
		Conflitos:              submission.Conflitos,
		Photos:                 submission.Photos,
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("trees service error", attrs...)
}
