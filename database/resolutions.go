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
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	loadSql "github.com/siherrmann/resolver/sql"
)

// ResolutionsDBHandlerFunctions defines the interface for Resolutions database operations.
type ResolutionsDBHandlerFunctions interface {
	InsertResolution(ctx context.Context, result *model.ResolutionResult) error
	SelectResolutionsByMention(mentionID uuid.UUID) ([]*model.ResolutionResult, error)
	SelectLatestResolution(mentionID uuid.UUID) (*model.ResolutionResult, error)
}

// ResolutionsDBHandler handles the append only resolution log
type ResolutionsDBHandler struct {
	db *helper.Database
}

// NewResolutionsDBHandler creates a new resolutions database handler.
// It initializes the database connection and loads resolution-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewResolutionsDBHandler(db *helper.Database, force bool) (*ResolutionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	resolutionsDbHandler := &ResolutionsDBHandler{
		db: db,
	}

	err := loadSql.LoadResolutionsSql(resolutionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load resolutions sql", err)
	}

	err = resolutionsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ResolutionsDBHandler")

	return resolutionsDbHandler, nil
}

// CreateTable creates the 'resolutions' table in the database.
// If the table already exists, it does not create it again.
func (h *ResolutionsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_resolutions();`)
	if err != nil {
		log.Panicf("error initializing resolutions table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table resolutions")

	return nil
}

func scanResolution(row rowScanner) (*model.ResolutionResult, error) {
	result := &model.ResolutionResult{}
	var entityID, supersedes uuid.NullUUID
	var candidates []byte
	err := row.Scan(
		&result.ID,
		&result.MentionID,
		&result.Decision,
		&entityID,
		&result.Score,
		&candidates,
		&result.IsNewEntity,
		&result.ExactMatch,
		&result.ResolvedAt,
		&result.ResolvedBy,
		&result.Reason,
		&supersedes,
	)
	if err != nil {
		return nil, err
	}

	if entityID.Valid {
		result.EntityID = &entityID.UUID
	}
	if supersedes.Valid {
		result.Supersedes = &supersedes.UUID
	}
	if err := json.Unmarshal(candidates, &result.Candidates); err != nil {
		return nil, helper.NewError("unmarshal candidates", err)
	}
	return result, nil
}

// InsertResolution appends a result to the log. Results are never updated.
func (h *ResolutionsDBHandler) InsertResolution(ctx context.Context, result *model.ResolutionResult) error {
	candidates := result.Candidates
	if candidates == nil {
		candidates = []model.CandidateScore{}
	}
	encoded, err := json.Marshal(candidates)
	if err != nil {
		return helper.NewError("marshal candidates", err)
	}

	_, err = h.db.Instance.ExecContext(
		ctx,
		`SELECT insert_resolution($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		result.ID,
		result.MentionID,
		result.Decision,
		result.EntityID,
		result.Score,
		encoded,
		result.IsNewEntity,
		result.ExactMatch,
		result.ResolvedAt,
		result.ResolvedBy,
		result.Reason,
		result.Supersedes,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectResolutionsByMention retrieves the results of a mention, oldest first
func (h *ResolutionsDBHandler) SelectResolutionsByMention(mentionID uuid.UUID) ([]*model.ResolutionResult, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_resolutions_by_mention($1)`,
		mentionID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	results := []*model.ResolutionResult{}
	for rows.Next() {
		result, err := scanResolution(rows)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, result)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// SelectLatestResolution retrieves the newest result of a mention
func (h *ResolutionsDBHandler) SelectLatestResolution(mentionID uuid.UUID) (*model.ResolutionResult, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_latest_resolution($1)`,
		mentionID,
	)

	result, err := scanResolution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select latest resolution", model.ErrMentionNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return result, nil
}
