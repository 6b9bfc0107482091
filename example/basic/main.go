package main

import (
	"context"
	"fmt"
	"log"

	"github.com/siherrmann/resolver"
	"github.com/siherrmann/resolver/helper"
	"github.com/siherrmann/resolver/model"
)

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(ctx)

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	r, err := resolver.NewResolver(dbConfig, nil)
	if err != nil {
		log.Fatalf("Failed to create resolver: %v", err)
	}
	defer r.Close()

	// A known company without identifier
	acme := &model.CandidateEntity{
		Type:          model.EntityTypeCompany,
		CanonicalName: "Acme Holding AB",
		Attributes:    model.Attributes{model.AttributePostalCode: "11122"},
		Confidence:    1.0,
	}
	if err := r.Entities.InsertEntity(acme); err != nil {
		log.Fatalf("Failed to insert entity: %v", err)
	}

	n, err := r.LoadIndex(ctx)
	if err != nil {
		log.Fatalf("Failed to load index: %v", err)
	}
	fmt.Printf("Indexed %d entities\n", n)

	mentions := []*model.Mention{
		{
			Type:                model.EntityTypeCompany,
			RawText:             "Volvo AB",
			Organisationsnummer: model.NewIdentifier("556036-0793"),
		},
		{
			Type:       model.EntityTypeCompany,
			RawText:    "ACME Holding AB",
			Attributes: model.Attributes{model.AttributePostalCode: "111 22"},
		},
		{
			Type:    model.EntityTypeCompany,
			RawText: "Acme HB",
		},
		{
			Type:    model.EntityTypePerson,
			RawText: "Ingrid Sjöberg",
		},
	}
	names := map[string]string{}
	for _, m := range mentions {
		if err := r.Mentions.InsertMention(m); err != nil {
			log.Fatalf("Failed to insert mention: %v", err)
		}
		names[m.ID.String()] = m.RawText
	}

	// Resolve the stored mentions and write the outcomes back
	batch, err := r.ResolvePending(ctx, 100)
	if err != nil {
		log.Fatalf("Failed to resolve mentions: %v", err)
	}

	fmt.Printf("\nResolved %d mentions in %s\n", len(batch.Results), batch.Duration)
	for i, res := range batch.Results {
		entity := "-"
		if res.EntityID != nil {
			entity = res.EntityID.String()
		}
		fmt.Printf("%d. %-18s %-15s score=%.3f entity=%s\n", i+1, names[res.MentionID.String()], res.Decision, res.Score, entity)
		for _, c := range res.Candidates {
			fmt.Printf("   candidate %s score=%.3f\n", c.EntityID, c.Score)
		}
	}

	fmt.Printf("\nClusters: %d, orphans: %d\n", len(batch.Clusters), len(batch.Orphans))
	fmt.Printf("Stats: %+v\n", batch.Stats)
}
