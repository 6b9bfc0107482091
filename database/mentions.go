package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	loadSql "github.com/siherrmann/resolver/sql"
)

// MentionsDBHandlerFunctions defines the interface for Mentions database operations.
type MentionsDBHandlerFunctions interface {
	InsertMention(mention *model.Mention) error
	SelectMention(id uuid.UUID) (*model.Mention, error)
	SelectMentionStatus(id uuid.UUID) (*model.MentionStatus, error)
	SelectUnresolvedMentions(ctx context.Context, limit int) ([]*model.Mention, error)
	UpdateMentionResolution(ctx context.Context, result *model.ResolutionResult) error
}

// MentionsDBHandler handles mention-related database operations
type MentionsDBHandler struct {
	db *helper.Database
}

// NewMentionsDBHandler creates a new mentions database handler.
// It initializes the database connection and loads mention-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewMentionsDBHandler(db *helper.Database, force bool) (*MentionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	mentionsDbHandler := &MentionsDBHandler{
		db: db,
	}

	err := loadSql.LoadMentionsSql(mentionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load mentions sql", err)
	}

	err = mentionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized MentionsDBHandler")

	return mentionsDbHandler, nil
}

// CreateTable creates the 'mentions' table in the database.
// If the table already exists, it does not create it again.
func (h *MentionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_mentions();`)
	if err != nil {
		log.Panicf("error initializing mentions table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table mentions")

	return nil
}

func rawIdentifier(id *model.Identifier) *string {
	if id == nil {
		return nil
	}
	return &id.Raw
}

func scanMention(row rowScanner) (*model.Mention, error) {
	mention := &model.Mention{}
	var personnummer, organisationsnummer sql.NullString
	err := row.Scan(
		&mention.ID,
		&mention.Type,
		&mention.RawText,
		&mention.NormalizedText,
		&personnummer,
		&organisationsnummer,
		&mention.Attributes,
		&mention.Provenance,
		&mention.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Stored identifiers are raw input, validation happens on resolution.
	if personnummer.Valid {
		mention.Personnummer = model.NewIdentifier(personnummer.String)
	}
	if organisationsnummer.Valid {
		mention.Organisationsnummer = model.NewIdentifier(organisationsnummer.String)
	}
	return mention, nil
}

// InsertMention inserts a new unresolved mention.
// A zero id is replaced by a random one.
func (h *MentionsDBHandler) InsertMention(mention *model.Mention) error {
	if mention.ID == uuid.Nil {
		mention.ID = uuid.New()
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_mention($1, $2, $3, $4, $5, $6, $7, $8)`,
		mention.ID,
		mention.Type,
		mention.RawText,
		mention.NormalizedText,
		rawIdentifier(mention.Personnummer),
		rawIdentifier(mention.Organisationsnummer),
		mention.Attributes,
		mention.Provenance,
	)

	err := row.Scan(
		&mention.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectMention retrieves a mention by ID
func (h *MentionsDBHandler) SelectMention(id uuid.UUID) (*model.Mention, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_mention($1)`,
		id,
	)

	mention, err := scanMention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select mention", model.ErrMentionNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return mention, nil
}

// SelectMentionStatus retrieves the stored resolution state of a mention
func (h *MentionsDBHandler) SelectMentionStatus(id uuid.UUID) (*model.MentionStatus, error) {
	status := &model.MentionStatus{}
	var entityID uuid.NullUUID
	var resolvedAt sql.NullTime
	err := h.db.Instance.QueryRow(
		`SELECT * FROM select_mention_status($1)`,
		id,
	).Scan(
		&status.Status,
		&entityID,
		&status.Confidence,
		&resolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select mention status", model.ErrMentionNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	if entityID.Valid {
		status.EntityID = &entityID.UUID
	}
	if resolvedAt.Valid {
		status.ResolvedAt = &resolvedAt.Time
	}
	return status, nil
}

// SelectUnresolvedMentions retrieves up to limit unresolved mentions, oldest first
func (h *MentionsDBHandler) SelectUnresolvedMentions(ctx context.Context, limit int) ([]*model.Mention, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_unresolved_mentions($1)`,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	mentions := []*model.Mention{}
	for rows.Next() {
		mention, err := scanMention(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		mentions = append(mentions, mention)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return mentions, nil
}

// UpdateMentionResolution writes the outcome of a resolution result to its mention
func (h *MentionsDBHandler) UpdateMentionResolution(ctx context.Context, result *model.ResolutionResult) error {
	var updated bool
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT update_mention_resolution($1, $2, $3, $4, $5)`,
		result.MentionID,
		result.Decision,
		result.EntityID,
		result.Score,
		result.ResolvedAt,
	).Scan(&updated)
	if err != nil {
		return helper.NewError("exec", err)
	}
	if !updated {
		return helper.NewError("update mention resolution", model.ErrMentionNotFound)
	}
	return nil
}
