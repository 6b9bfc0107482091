package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/resolver/core/blocking"
	"github.com/siherrmann/resolver/core/cluster"
	"github.com/siherrmann/resolver/core/compare"
	"github.com/siherrmann/resolver/core/exact"
	"github.com/siherrmann/resolver/core/identifier"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	"golang.org/x/sync/errgroup"
)

// newEntityNamespace seeds the ids minted for NEW_ENTITY decisions
var newEntityNamespace = uuid.MustParse("0d9a7c52-6b8e-4f3a-a1d4-5c2e9f7b3a68")

// ResultSink persists resolution results
type ResultSink interface {
	InsertResolution(ctx context.Context, result *model.ResolutionResult) error
}

// LatestResolutionSource looks up the newest stored result of a mention.
// A ResultSink implementing it lets human decisions supersede results of
// earlier sessions.
type LatestResolutionSource interface {
	SelectLatestResolution(mentionID uuid.UUID) (*model.ResolutionResult, error)
}

// Scorer scores one (mention, candidate) pair
type Scorer interface {
	Compare(mention *model.Mention, candidate *model.CandidateEntity) model.CandidateScore
}

// Resolver decides per mention between matching a known entity, asking a
// human and creating a new entity. It owns its blocking index; all methods
// are serialized so one Resolver can be shared.
type Resolver struct {
	mu sync.Mutex

	config model.ResolverConfig
	index  *blocking.Index
	exact  *exact.Resolver
	sink   ResultSink
	logger *slog.Logger

	// Scorer defaults to a compare.Comparator with the configured weights.
	Scorer Scorer
	// Validate checks mention identifiers before blocking.
	Validate identifier.ValidateFunc
	Now      func() time.Time

	history map[uuid.UUID][]*model.ResolutionResult
}

// NewResolver validates the configuration and creates a Resolver.
// The exact resolver and the sink are optional.
func NewResolver(config model.ResolverConfig, index *blocking.Index, exactResolver *exact.Resolver, sink ResultSink, logger *slog.Logger) (*Resolver, error) {
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("resolver configuration", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		config:   config,
		index:    index,
		exact:    exactResolver,
		sink:     sink,
		logger:   logger,
		Scorer:   compare.NewComparator(config.Weights),
		Validate: identifier.NewValidator().Validate,
		Now:      time.Now,
		history:  map[uuid.UUID][]*model.ResolutionResult{},
	}, nil
}

// outcome is a result plus what batch clustering needs to know about it
type outcome struct {
	result   *model.ResolutionResult
	entity   *model.CandidateEntity
	failures int
}

// ResolveMention resolves a single mention
func (r *Resolver) ResolveMention(ctx context.Context, mention *model.Mention) (*model.ResolutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := r.resolve(ctx, mention)
	if err != nil {
		return nil, err
	}
	r.record(ctx, out)
	return out.result, nil
}

func (r *Resolver) resolve(ctx context.Context, mention *model.Mention) (*outcome, error) {
	if r.index == nil {
		return nil, helper.NewError("resolve mention", model.ErrIndexUnavailable)
	}
	if mention == nil {
		return nil, helper.NewError("resolve mention", fmt.Errorf("mention is nil"))
	}

	if !mention.Type.Valid() {
		r.logger.Warn("Mention has unknown type", slog.String("mention_id", mention.ID.String()), slog.String("type", string(mention.Type)))
		return &outcome{
			result:   r.newResult(mention.ID, model.DecisionPendingReview, nil, 0, nil, "unknown mention type"),
			failures: 1,
		}, nil
	}

	prepared := mention.Copy()
	prepared.Personnummer = identifier.CheckWith(r.Validate, prepared.Personnummer)
	prepared.Organisationsnummer = identifier.CheckWith(r.Validate, prepared.Organisationsnummer)

	failures := 0
	_, _, hasValid := prepared.ValidIdentifier()
	if !hasValid && len(prepared.Identifiers()) > 0 {
		r.logger.Warn("Invalid identifier, falling back to fuzzy matching", slog.String("mention_id", mention.ID.String()))
	}
	if r.exact != nil && hasValid {
		out, err := r.resolveExact(ctx, prepared)
		switch {
		case err == nil && out != nil:
			return out, nil
		case errors.Is(err, model.ErrStoreUnavailable):
			return nil, err
		case errors.Is(err, model.ErrInvalidIdentifier):
			r.logger.Warn("Invalid identifier, falling back to fuzzy matching", slog.String("mention_id", mention.ID.String()))
		case err != nil:
			r.logger.Warn("Exact identifier lookup failed, falling back to fuzzy matching", slog.String("mention_id", mention.ID.String()), slog.Any("error", err))
			failures++
		}
	}

	out := r.resolveFuzzy(prepared)
	out.failures += failures
	return out, nil
}

// resolveExact returns nil without error when the identifier is unknown
// and creation is disabled.
func (r *Resolver) resolveExact(ctx context.Context, mention *model.Mention) (*outcome, error) {
	res, err := r.exact.ResolveMention(ctx, mention, r.config.CreateOnExactMiss)
	if err != nil {
		return nil, err
	}
	if !res.Matched || res.EntityID == nil {
		return nil, nil
	}

	// Entities the index does not know yet are added so later mentions
	// of the same entity find them as candidates.
	entity, known := r.index.Entity(*res.EntityID)
	if !known {
		entity, known = r.exact.Entity(*res.EntityID)
		if !known {
			entity = &model.CandidateEntity{
				ID:            *res.EntityID,
				Type:          mention.Type,
				CanonicalName: mention.Name(),
				Identifiers:   map[model.IdentifierType]string{res.Kind.Type(): res.Identifier},
				Attributes:    mention.Attributes.Clone(),
				Confidence:    1.0,
				Active:        true,
			}
		}
		if err := r.index.AddEntity(entity); err != nil {
			r.logger.Warn("Could not index exact match entity", slog.String("entity_id", entity.ID.String()), slog.Any("error", err))
		}
	}

	decision, reason := model.DecisionAutoMatch, "exact identifier match"
	if res.IsNewEntity {
		decision, reason = model.DecisionNewEntity, "entity created from identifier"
	}

	result := r.newResult(mention.ID, decision, res.EntityID, 1.0, []model.CandidateScore{{
		EntityID: entity.ID,
		Name:     entity.CanonicalName,
		Score:    1.0,
		Features: model.FeatureScores{model.FeatureIdentifier: 1},
	}}, reason)
	result.IsNewEntity = res.IsNewEntity
	result.ExactMatch = true

	return &outcome{result: result, entity: entity}, nil
}

func (r *Resolver) resolveFuzzy(mention *model.Mention) *outcome {
	candidates := r.index.GetCandidates(mention)
	if len(candidates) == 0 {
		return r.newEntity(mention, nil, "no candidates")
	}

	scores, failures := r.scoreCandidates(mention, candidates)
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].EntityID.String() < scores[j].EntityID.String()
	})

	top := scores
	if n := r.config.TopN; n > 0 && len(top) > n {
		top = top[:n]
	}

	best := scores[0]
	thresholds := r.config.ThresholdsFor(mention.Type)

	var out *outcome
	switch {
	case best.Score >= thresholds.AutoMatch:
		entityID := best.EntityID
		entity, _ := r.index.Entity(entityID)
		out = &outcome{
			result: r.newResult(mention.ID, model.DecisionAutoMatch, &entityID, best.Score, top, "score above auto match threshold"),
			entity: entity,
		}
	case best.Score >= thresholds.HumanReviewMin:
		out = &outcome{result: r.newResult(mention.ID, model.DecisionPendingReview, nil, best.Score, top, "score in review band")}
	case best.Score >= thresholds.AutoReject:
		out = &outcome{result: r.newResult(mention.ID, model.DecisionAutoReject, nil, best.Score, top, "candidates rejected below review band")}
	default:
		out = r.newEntity(mention, top, "score below auto reject threshold")
		out.result.Score = best.Score
	}

	out.failures = failures
	return out
}

// newEntity mints a deterministic entity id for the mention
func (r *Resolver) newEntity(mention *model.Mention, candidates []model.CandidateScore, reason string) *outcome {
	entityID := uuid.NewSHA1(newEntityNamespace, mention.ID[:])

	identifiers := map[model.IdentifierType]string{}
	for _, id := range mention.Identifiers() {
		if id.IsValid() {
			identifiers[id.Kind.Type()] = id.Normalized
		}
	}

	result := r.newResult(mention.ID, model.DecisionNewEntity, &entityID, 0, candidates, reason)
	result.IsNewEntity = true

	return &outcome{
		result: result,
		entity: &model.CandidateEntity{
			ID:            entityID,
			Type:          mention.Type,
			CanonicalName: mention.Name(),
			Identifiers:   identifiers,
			Attributes:    mention.Attributes.Clone(),
			Active:        true,
		},
	}
}

// scoreCandidates scores in parallel once there are enough candidates.
// A panicking comparison scores 0 and is counted as failure.
func (r *Resolver) scoreCandidates(mention *model.Mention, candidates []*model.CandidateEntity) ([]model.CandidateScore, int) {
	scores := make([]model.CandidateScore, len(candidates))
	var failures int32

	score := func(i int) {
		c := candidates[i]
		defer func() {
			if p := recover(); p != nil {
				r.logger.Warn("Scoring candidate panicked", slog.String("mention_id", mention.ID.String()), slog.String("entity_id", c.ID.String()), slog.Any("panic", fmt.Sprint(p)))
				scores[i] = model.CandidateScore{EntityID: c.ID, Name: c.CanonicalName}
				atomic.AddInt32(&failures, 1)
			}
		}()
		scores[i] = r.Scorer.Compare(mention, c)
	}

	if r.config.ScoringWorkers <= 1 || len(candidates) < r.config.ParallelScoringMin {
		for i := range candidates {
			score(i)
		}
		return scores, int(failures)
	}

	var g errgroup.Group
	g.SetLimit(r.config.ScoringWorkers)
	for i := range candidates {
		g.Go(func() error {
			score(i)
			return nil
		})
	}
	_ = g.Wait()

	return scores, int(failures)
}

func (r *Resolver) newResult(mentionID uuid.UUID, decision model.Decision, entityID *uuid.UUID, score float64, candidates []model.CandidateScore, reason string) *model.ResolutionResult {
	return &model.ResolutionResult{
		ID:         uuid.New(),
		MentionID:  mentionID,
		Decision:   decision,
		EntityID:   entityID,
		Score:      score,
		Candidates: candidates,
		ResolvedAt: r.Now().UTC(),
		ResolvedBy: model.ResolvedBySystem,
		Reason:     reason,
	}
}

// record keeps the result in the session history and hands it to the sink.
// A failing sink is counted, it never fails the resolution.
func (r *Resolver) record(ctx context.Context, out *outcome) {
	res := out.result
	r.history[res.MentionID] = append(r.history[res.MentionID], res)

	if r.sink == nil {
		return
	}
	if err := r.sink.InsertResolution(ctx, res); err != nil {
		r.logger.Warn("Could not persist resolution result", slog.String("mention_id", res.MentionID.String()), slog.Any("error", err))
		out.failures++
	}
}

// ResolveBatch resolves mentions one after another and clusters the matches.
// Cancelling ctx stops between mentions and returns the results so far
// together with the context error.
func (r *Resolver) ResolveBatch(ctx context.Context, mentions []*model.Mention, clustered bool) (*model.BatchResolutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		return nil, helper.NewError("resolve batch", model.ErrIndexUnavailable)
	}

	start := time.Now()
	batch := &model.BatchResolutionResult{
		Results:  make([]*model.ResolutionResult, 0, len(mentions)),
		Clusters: []model.MentionCluster{},
	}

	engine := cluster.NewEngine(r.config.MinClusterConfidence, r.logger)
	// Entities minted for NEW_ENTITY decisions of this batch, by entity id.
	provisional := map[uuid.UUID]*model.Mention{}
	defer func() {
		for id := range provisional {
			r.index.RemoveEntity(id)
		}
	}()

	var batchErr error
	for _, mention := range mentions {
		if err := ctx.Err(); err != nil {
			batchErr = helper.NewError("resolve batch", err)
			break
		}
		if mention == nil {
			r.logger.Warn("Skipping nil mention in batch")
			batch.Stats.Failures++
			continue
		}

		out, err := r.resolve(ctx, mention)
		if err != nil {
			batchErr = err
			break
		}
		r.record(ctx, out)

		batch.Results = append(batch.Results, out.result)
		batch.Stats.Count(out.result)
		batch.Stats.Failures += out.failures

		if clustered {
			r.cluster(engine, mention, out, provisional)
		}

		if r.config.LinkWithinBatch && out.result.Decision == model.DecisionNewEntity && !out.result.ExactMatch && out.entity != nil {
			if err := r.index.AddEntity(out.entity); err == nil {
				provisional[out.entity.ID] = mention
			}
		}
	}

	if clustered {
		set := engine.GetClusters()
		r.explain(ctx, engine, set.Clusters)
		batch.Clusters = set.Clusters
		batch.Orphans = set.Orphans
		batch.Stats.Clusters = len(set.Clusters)
		batch.Stats.Orphans = len(set.Orphans)
	}
	batch.Duration = time.Since(start)

	r.logger.Info(
		"Resolved batch",
		slog.Int("mentions", batch.Stats.Mentions),
		slog.Int("auto_matched", batch.Stats.AutoMatched),
		slog.Int("pending_review", batch.Stats.PendingReview),
		slog.Int("new_entities", batch.Stats.NewEntities),
		slog.Int("clusters", batch.Stats.Clusters),
		slog.Int("failures", batch.Stats.Failures),
		slog.Duration("duration", batch.Duration),
	)

	return batch, batchErr
}

// explain attaches the match chain of every member to its cluster.
// Trails are built for partial batches too.
func (r *Resolver) explain(ctx context.Context, engine *cluster.Engine, clusters []model.MentionCluster) {
	ctx = context.WithoutCancel(ctx)
	for i := range clusters {
		trail := map[uuid.UUID][]model.MatchLink{}
		for _, member := range clusters[i].Members {
			links, err := engine.Explain(ctx, member)
			if err != nil {
				r.logger.Warn("Could not explain cluster member", slog.String("mention_id", member.String()), slog.Any("error", err))
				continue
			}
			if len(links) > 0 {
				trail[member] = links
			}
		}
		if len(trail) > 0 {
			clusters[i].Trail = trail
		}
	}
}

// cluster feeds one outcome into the batch clustering. Matches against a
// provisional entity link the two mentions directly.
func (r *Resolver) cluster(engine *cluster.Engine, mention *model.Mention, out *outcome, provisional map[uuid.UUID]*model.Mention) {
	res := out.result
	if mention == nil {
		return
	}
	if res.Decision != model.DecisionAutoMatch && !(res.Decision == model.DecisionNewEntity && res.ExactMatch) {
		engine.AddMention(mention)
		return
	}

	if first, ok := provisional[*res.EntityID]; ok {
		engine.AddMentionMatch(first, mention, res.Score)
		return
	}
	if out.entity != nil {
		engine.AddMatch(mention, out.entity, res.Score)
		return
	}
	engine.AddMention(mention)
}

// SubmitHumanDecision records a reviewer's decision as a new result that
// supersedes the mention's latest result. The earlier result is kept.
func (r *Resolver) SubmitHumanDecision(ctx context.Context, mentionID uuid.UUID, entityID *uuid.UUID, isMatch bool, reviewerID string) (*model.ResolutionResult, error) {
	if isMatch && entityID == nil {
		return nil, helper.NewError("submit human decision", fmt.Errorf("%w: a match needs an entity id", model.ErrInvalidDecision))
	}
	if reviewerID == "" {
		return nil, helper.NewError("submit human decision", fmt.Errorf("%w: reviewer id is empty", model.ErrInvalidDecision))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prior := r.latest(mentionID)

	decision, score, reason := model.DecisionHumanReject, 0.0, "rejected by reviewer"
	var resolved *uuid.UUID
	if isMatch {
		id := *entityID
		decision, score, reason, resolved = model.DecisionHumanMatch, 1.0, "confirmed by reviewer", &id
	} else if entityID != nil {
		reason = fmt.Sprintf("reviewer rejected entity %s", entityID)
	}

	result := r.newResult(mentionID, decision, resolved, score, nil, reason)
	result.ResolvedBy = reviewerID
	if prior != nil {
		priorID := prior.ID
		result.Supersedes = &priorID
		result.Candidates = append([]model.CandidateScore(nil), prior.Candidates...)
	}

	out := &outcome{result: result}
	r.record(ctx, out)
	return result, nil
}

// latest returns the newest result of this session or, failing that, of the sink
func (r *Resolver) latest(mentionID uuid.UUID) *model.ResolutionResult {
	if h := r.history[mentionID]; len(h) > 0 {
		return h[len(h)-1]
	}
	if source, ok := r.sink.(LatestResolutionSource); ok {
		if res, err := source.SelectLatestResolution(mentionID); err == nil {
			return res
		}
	}
	return nil
}

// History returns every result recorded for a mention in this session
func (r *Resolver) History(mentionID uuid.UUID) []*model.ResolutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*model.ResolutionResult(nil), r.history[mentionID]...)
}

// AddEntityToIndex makes an entity available as candidate
func (r *Resolver) AddEntityToIndex(entity *model.CandidateEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		return helper.NewError("add entity to index", model.ErrIndexUnavailable)
	}
	return r.index.AddEntity(entity)
}

// IndexStats reports the blocking index size per strategy
func (r *Resolver) IndexStats() (model.IndexStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		return model.IndexStats{}, helper.NewError("index stats", model.ErrIndexUnavailable)
	}
	return r.index.Stats(), nil
}
