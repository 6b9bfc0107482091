package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/siherrmann/resolver"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
	"github.com/spf13/cobra"
)

// mentionInput is one mention of an input file. Identifiers are given raw,
// validation happens during resolution.
type mentionInput struct {
	ID                  *uuid.UUID       `json:"id,omitempty"`
	Type                model.EntityType `json:"mention_type"`
	RawText             string           `json:"raw_text"`
	Personnummer        string           `json:"personnummer,omitempty"`
	Organisationsnummer string           `json:"organisationsnummer,omitempty"`
	Attributes          model.Attributes `json:"attributes,omitempty"`
	Source              string           `json:"source,omitempty"`
}

// parseMentions reads a JSON array of mentions. Missing ids are generated.
func parseMentions(r io.Reader) ([]*model.Mention, error) {
	var inputs []mentionInput
	if err := json.NewDecoder(r).Decode(&inputs); err != nil {
		return nil, fmt.Errorf("failed to decode mentions: %w", err)
	}

	mentions := make([]*model.Mention, 0, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in.RawText) == "" {
			return nil, fmt.Errorf("mention %d has no raw_text", i)
		}
		m := &model.Mention{
			ID:         uuid.New(),
			Type:       model.EntityType(strings.ToUpper(string(in.Type))),
			RawText:    in.RawText,
			Attributes: in.Attributes,
			Provenance: model.Provenance{Source: in.Source},
		}
		if in.ID != nil {
			m.ID = *in.ID
		}
		if in.Personnummer != "" {
			m.Personnummer = model.NewIdentifier(in.Personnummer)
		}
		if in.Organisationsnummer != "" {
			m.Organisationsnummer = model.NewIdentifier(in.Organisationsnummer)
		}
		mentions = append(mentions, m)
	}
	return mentions, nil
}

func readMentionsFile(path string) ([]*model.Mention, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return parseMentions(f)
}

// openResolver connects with the DB_* environment and seeds the index
func openResolver(cmd *cobra.Command) (*resolver.Resolver, error) {
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, err
	}
	r, err := resolver.NewResolver(dbConfig, resolverConfig)
	if err != nil {
		return nil, err
	}
	if _, err := r.LoadIndex(cmd.Context()); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve the mentions of a JSON file",
	RunE:  runBatch,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store the mentions of a JSON file as unresolved",
	RunE:  runIngest,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Resolve stored unresolved mentions and write the outcomes back",
	RunE:  runPending,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record a reviewer decision for a mention",
	RunE:  runReview,
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search active entities by name similarity",
	RunE:  runSearch,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show blocking index statistics",
	RunE:  runStats,
}

func init() {
	batchCmd.Flags().String("file", "", "JSON file with an array of mentions")
	batchCmd.Flags().Bool("no-cluster", false, "Skip clustering")
	_ = batchCmd.MarkFlagRequired("file")

	ingestCmd.Flags().String("file", "", "JSON file with an array of mentions")
	_ = ingestCmd.MarkFlagRequired("file")

	pendingCmd.Flags().Int("limit", 1000, "Maximum number of mentions to resolve")

	reviewCmd.Flags().String("mention", "", "Mention id")
	reviewCmd.Flags().String("entity", "", "Entity id the decision is about")
	reviewCmd.Flags().Bool("match", false, "Confirm the mention refers to the entity")
	reviewCmd.Flags().Bool("reject", false, "Reject the entity for the mention")
	reviewCmd.Flags().String("reviewer", "", "Reviewer id")
	reviewCmd.MarkFlagsMutuallyExclusive("match", "reject")
	reviewCmd.MarkFlagsOneRequired("match", "reject")
	_ = reviewCmd.MarkFlagRequired("mention")
	_ = reviewCmd.MarkFlagRequired("reviewer")

	searchCmd.Flags().String("term", "", "Name to search for")
	searchCmd.Flags().String("type", "", "Restrict to an entity type")
	searchCmd.Flags().Int("limit", 10, "Maximum number of entities")
	_ = searchCmd.MarkFlagRequired("term")
}

func runBatch(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	noCluster, _ := cmd.Flags().GetBool("no-cluster")

	mentions, err := readMentionsFile(path)
	if err != nil {
		return err
	}

	r, err := openResolver(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	batch, err := r.ResolveBatch(cmd.Context(), mentions, !noCluster)
	if batch == nil {
		return err
	}
	if perr := printJSON(cmd.OutOrStdout(), batch); perr != nil {
		return perr
	}
	return err
}

func runIngest(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")

	mentions, err := readMentionsFile(path)
	if err != nil {
		return err
	}

	r, err := openResolver(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, m := range mentions {
		if err := r.Mentions.InsertMention(m); err != nil {
			return fmt.Errorf("failed to store mention %s: %w", m.ID, err)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Stored %d mentions", len(mentions)))
	return nil
}

func runPending(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	r, err := openResolver(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	batch, err := r.ResolvePending(cmd.Context(), limit)
	if batch == nil {
		return err
	}
	if perr := printJSON(cmd.OutOrStdout(), batch); perr != nil {
		return perr
	}
	return err
}

func runReview(cmd *cobra.Command, args []string) error {
	mentionFlag, _ := cmd.Flags().GetString("mention")
	entityFlag, _ := cmd.Flags().GetString("entity")
	isMatch, _ := cmd.Flags().GetBool("match")
	reviewer, _ := cmd.Flags().GetString("reviewer")

	mentionID, err := uuid.Parse(mentionFlag)
	if err != nil {
		return fmt.Errorf("invalid mention id: %w", err)
	}
	var entityID *uuid.UUID
	if entityFlag != "" {
		id, err := uuid.Parse(entityFlag)
		if err != nil {
			return fmt.Errorf("invalid entity id: %w", err)
		}
		entityID = &id
	}

	r, err := openResolver(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	res, err := r.SubmitHumanDecision(cmd.Context(), mentionID, entityID, isMatch, reviewer)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runSearch(cmd *cobra.Command, args []string) error {
	term, _ := cmd.Flags().GetString("term")
	typeFlag, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	var entityType *model.EntityType
	if typeFlag != "" {
		t := model.EntityType(strings.ToUpper(typeFlag))
		if !t.Valid() {
			return fmt.Errorf("unknown entity type %q", typeFlag)
		}
		entityType = &t
	}

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return err
	}
	r, err := resolver.NewResolver(dbConfig, resolverConfig)
	if err != nil {
		return err
	}
	defer r.Close()

	entities, err := r.Entities.SelectEntitiesBySearch(term, entityType, limit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), entities)
}

func runStats(cmd *cobra.Command, args []string) error {
	r, err := openResolver(cmd)
	if err != nil {
		return err
	}
	defer r.Close()

	stats, err := r.IndexStats()
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), stats)
}
