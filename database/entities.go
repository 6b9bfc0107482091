package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	loadSql "github.com/siherrmann/resolver/sql"
)

// uniqueViolation is the postgres error code for a violated unique constraint
const uniqueViolation = "23505"

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	InsertEntity(entity *model.CandidateEntity) error
	SelectEntity(id uuid.UUID) (*model.CandidateEntity, error)
	SelectActiveEntities(ctx context.Context) ([]*model.CandidateEntity, error)
	SelectEntityByIdentifier(identifierType model.IdentifierType, value string) (*model.CandidateEntity, error)
	SelectEntitiesBySearch(searchTerm string, entityType *model.EntityType, limit int) ([]*model.CandidateEntity, error)
	DeactivateEntity(id uuid.UUID) error
	LinkMentionByIdentifier(ctx context.Context, link model.IdentifierLink) (*model.ExactMatchResult, error)
}

// EntitiesDBHandler handles entity and identifier database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' and 'entity_identifiers' tables.
// If the tables already exist, it does not create them again.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*model.CandidateEntity, error) {
	entity := &model.CandidateEntity{}
	var identifiers []byte
	err := row.Scan(
		&entity.ID,
		&entity.Type,
		&entity.CanonicalName,
		&identifiers,
		&entity.Attributes,
		&entity.Confidence,
		&entity.Active,
		&entity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entity.Identifiers = map[model.IdentifierType]string{}
	if err := json.Unmarshal(identifiers, &entity.Identifiers); err != nil {
		return nil, helper.NewError("unmarshal identifiers", err)
	}
	return entity, nil
}

func scanEntities(rows *sql.Rows) ([]*model.CandidateEntity, error) {
	defer rows.Close()

	entities := []*model.CandidateEntity{}
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		entities = append(entities, entity)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}

// identifierConflict maps a unique violation to model.ErrConcurrentIdentifierConflict
func identifierConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", model.ErrConcurrentIdentifierConflict, pqErr.Constraint)
	}
	return err
}

// InsertEntity inserts a new entity together with its identifiers.
// A zero id is replaced by a random one.
func (h *EntitiesDBHandler) InsertEntity(entity *model.CandidateEntity) error {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if entity.Identifiers == nil {
		entity.Identifiers = map[model.IdentifierType]string{}
	}
	identifiers, err := json.Marshal(entity.Identifiers)
	if err != nil {
		return helper.NewError("marshal identifiers", err)
	}
	if entity.Attributes == nil {
		entity.Attributes = model.Attributes{}
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_entity($1, $2, $3, $4, $5, $6)`,
		entity.ID,
		entity.Type,
		entity.CanonicalName,
		identifiers,
		entity.Attributes,
		entity.Confidence,
	)

	inserted, err := scanEntity(row)
	if err != nil {
		return helper.NewError("insert entity", identifierConflict(err))
	}
	*entity = *inserted

	return nil
}

// SelectEntity retrieves an entity by ID
func (h *EntitiesDBHandler) SelectEntity(id uuid.UUID) (*model.CandidateEntity, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity($1)`,
		id,
	)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select entity", model.ErrEntityNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectActiveEntities retrieves every active entity, oldest first.
// It seeds the blocking index.
func (h *EntitiesDBHandler) SelectActiveEntities(ctx context.Context) ([]*model.CandidateEntity, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_active_entities()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return scanEntities(rows)
}

// SelectEntityByIdentifier retrieves the active entity holding an identifier
func (h *EntitiesDBHandler) SelectEntityByIdentifier(identifierType model.IdentifierType, value string) (*model.CandidateEntity, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_entity_by_identifier($1, $2)`,
		identifierType,
		value,
	)

	entity, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select entity by identifier", model.ErrEntityNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesBySearch searches active entities by trigram name similarity
func (h *EntitiesDBHandler) SelectEntitiesBySearch(searchTerm string, entityType *model.EntityType, limit int) ([]*model.CandidateEntity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_entities($1, $2, $3)`,
		searchTerm,
		entityType,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}

	return scanEntities(rows)
}

// DeactivateEntity marks an entity inactive and releases its identifiers
func (h *EntitiesDBHandler) DeactivateEntity(id uuid.UUID) error {
	var deactivated bool
	err := h.db.Instance.QueryRow(
		`SELECT deactivate_entity($1)`,
		id,
	).Scan(&deactivated)
	if err != nil {
		return helper.NewError("exec", err)
	}
	if !deactivated {
		return helper.NewError("deactivate entity", model.ErrEntityNotFound)
	}
	return nil
}

// LinkMentionByIdentifier links the mention to the active entity holding
// the identifier, creating entity and identifier first when allowed. All
// writes happen in one transaction; losing a concurrent create returns
// model.ErrConcurrentIdentifierConflict.
func (h *EntitiesDBHandler) LinkMentionByIdentifier(ctx context.Context, link model.IdentifierLink) (*model.ExactMatchResult, error) {
	tx, err := h.db.Instance.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, helper.NewError("begin transaction", err)
	}
	defer tx.Rollback()

	var entityID uuid.NullUUID
	result := &model.ExactMatchResult{MentionID: link.MentionID, Identifier: link.Value}
	err = tx.QueryRowContext(
		ctx,
		`SELECT * FROM link_mention_by_identifier($1, $2, $3, $4, $5, $6, $7)`,
		link.MentionID,
		link.EntityType,
		link.Type,
		link.Value,
		link.Name,
		link.NewEntityID,
		link.CreateIfNotFound,
	).Scan(
		&entityID,
		&result.IsNewEntity,
		&result.Matched,
	)
	if err != nil {
		return nil, helper.NewError("link mention by identifier", identifierConflict(err))
	}

	err = tx.Commit()
	if err != nil {
		return nil, helper.NewError("commit", identifierConflict(err))
	}

	if entityID.Valid {
		id := entityID.UUID
		result.EntityID = &id
	}
	if result.Matched {
		result.Confidence = 1.0
	}
	return result, nil
}
