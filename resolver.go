package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/core/blocking"
	"github.com/siherrmann/resolver/core/exact"
	"github.com/siherrmann/resolver/core/identifier"
	"github.com/siherrmann/resolver/core/resolution"
	"github.com/siherrmann/resolver/database"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	loadSql "github.com/siherrmann/resolver/sql"
)

// Resolver bundles the database handlers with one resolution session
type Resolver struct {
	DB          *helper.Database
	Entities    *database.EntitiesDBHandler
	Mentions    *database.MentionsDBHandler
	Resolutions *database.ResolutionsDBHandler
	Index       *blocking.Index
	Exact       *exact.Resolver
	Engine      *resolution.Resolver
	// Logging
	log *slog.Logger
}

// NewResolver connects to the database, loads the SQL functions and wires
// the resolution engine. A nil resolverConfig uses the defaults.
func NewResolver(config *helper.DatabaseConfiguration, resolverConfig *model.ResolverConfig) (*Resolver, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	rc := model.DefaultResolverConfig()
	if resolverConfig != nil {
		rc = *resolverConfig
	}
	if err := rc.Validate(); err != nil {
		return nil, helper.NewError("validate resolver config", err)
	}

	// Initialize database
	db, err := helper.NewDatabase("resolver", config, logger)
	if err != nil {
		return nil, helper.NewError("connect database", err)
	}
	err = loadSql.Init(db.Instance)
	if err != nil {
		db.Close()
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Entities first, mentions reference them
	// force=false to not reload if functions already exist
	entities, err := database.NewEntitiesDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, helper.NewError("create entities handler", err)
	}

	mentions, err := database.NewMentionsDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, helper.NewError("create mentions handler", err)
	}

	resolutions, err := database.NewResolutionsDBHandler(db, false)
	if err != nil {
		db.Close()
		return nil, helper.NewError("create resolutions handler", err)
	}

	index := blocking.NewIndex(logger)
	exactResolver := exact.NewResolver(entities, identifier.NewValidator(), rc.ExactTimeout, rc.ExactRetries, logger)
	engine, err := resolution.NewResolver(rc, index, exactResolver, resolutions, logger)
	if err != nil {
		db.Close()
		return nil, helper.NewError("create resolution engine", err)
	}

	return &Resolver{
		DB:          db,
		Entities:    entities,
		Mentions:    mentions,
		Resolutions: resolutions,
		Index:       index,
		Exact:       exactResolver,
		Engine:      engine,
		log:         logger,
	}, nil
}

// Close closes the database connection
func (r *Resolver) Close() error {
	if r.DB != nil && r.DB.Instance != nil {
		return r.DB.Instance.Close()
	}
	return nil
}

// LoadIndex adds every active entity of the store to the blocking index
// and returns how many were indexed.
func (r *Resolver) LoadIndex(ctx context.Context) (int, error) {
	entities, err := r.Entities.SelectActiveEntities(ctx)
	if err != nil {
		return 0, helper.NewError("select active entities", err)
	}

	for _, e := range entities {
		if err := r.Engine.AddEntityToIndex(e); err != nil {
			return 0, helper.NewError("index entity", err)
		}
	}

	r.log.Info("Loaded blocking index", slog.Int("entities", len(entities)))
	return len(entities), nil
}

// ResolveMention resolves a single mention. The result is logged in the
// resolution table; mention and entity tables are left alone.
func (r *Resolver) ResolveMention(ctx context.Context, mention *model.Mention) (*model.ResolutionResult, error) {
	return r.Engine.ResolveMention(ctx, mention)
}

// ResolveBatch resolves mentions supplied by the caller
func (r *Resolver) ResolveBatch(ctx context.Context, mentions []*model.Mention, cluster bool) (*model.BatchResolutionResult, error) {
	return r.Engine.ResolveBatch(ctx, mentions, cluster)
}

// ResolvePending resolves up to limit stored unresolved mentions, creates
// the entities the batch decided on and writes every outcome back to its
// mention. Write-back failures are counted in the stats.
func (r *Resolver) ResolvePending(ctx context.Context, limit int) (*model.BatchResolutionResult, error) {
	mentions, err := r.Mentions.SelectUnresolvedMentions(ctx, limit)
	if err != nil {
		return nil, helper.NewError("select unresolved mentions", err)
	}

	batch, err := r.Engine.ResolveBatch(ctx, mentions, true)
	if batch == nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*model.Mention, len(mentions))
	for _, m := range mentions {
		byID[m.ID] = m
	}

	for _, res := range batch.Results {
		if res.Decision == model.DecisionNewEntity && !res.ExactMatch {
			if cerr := r.createEntity(byID[res.MentionID], res); cerr != nil {
				r.log.Warn("Could not create entity", slog.String("mention_id", res.MentionID.String()), slog.Any("error", cerr))
				batch.Stats.Failures++
				continue
			}
		}
		if uerr := r.Mentions.UpdateMentionResolution(ctx, res); uerr != nil {
			r.log.Warn("Could not update mention", slog.String("mention_id", res.MentionID.String()), slog.Any("error", uerr))
			batch.Stats.Failures++
		}
	}

	return batch, err
}

// createEntity stores and indexes the entity minted for a NEW_ENTITY result
func (r *Resolver) createEntity(mention *model.Mention, res *model.ResolutionResult) error {
	if mention == nil || res.EntityID == nil {
		return fmt.Errorf("no mention for result %s", res.ID)
	}

	entity := &model.CandidateEntity{
		ID:            *res.EntityID,
		Type:          mention.Type,
		CanonicalName: mention.Name(),
		Identifiers:   map[model.IdentifierType]string{},
		Attributes:    mention.Attributes.Clone(),
		Confidence:    1.0,
	}
	if _, err := r.Entities.SelectEntity(entity.ID); err == nil {
		// A mention of the same batch created it already.
		return nil
	} else if !errors.Is(err, model.ErrEntityNotFound) {
		return err
	}

	if err := r.Entities.InsertEntity(entity); err != nil {
		return err
	}
	return r.Engine.AddEntityToIndex(entity)
}

// SubmitHumanDecision records a reviewer's decision and writes it to the
// mention when the mention is stored.
func (r *Resolver) SubmitHumanDecision(ctx context.Context, mentionID uuid.UUID, entityID *uuid.UUID, isMatch bool, reviewerID string) (*model.ResolutionResult, error) {
	res, err := r.Engine.SubmitHumanDecision(ctx, mentionID, entityID, isMatch, reviewerID)
	if err != nil {
		return nil, err
	}

	err = r.Mentions.UpdateMentionResolution(ctx, res)
	if err != nil && !errors.Is(err, model.ErrMentionNotFound) {
		return res, helper.NewError("update mention resolution", err)
	}
	return res, nil
}

// AddEntityToIndex makes an entity available as candidate
func (r *Resolver) AddEntityToIndex(entity *model.CandidateEntity) error {
	return r.Engine.AddEntityToIndex(entity)
}

// IndexStats reports the blocking index size per strategy
func (r *Resolver) IndexStats() (model.IndexStats, error) {
	return r.Engine.IndexStats()
}
