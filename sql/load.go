package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed entities.sql
var entitiesSQL string

//go:embed mentions.sql
var mentionsSQL string

//go:embed resolutions.sql
var resolutionsSQL string

// Function lists for verification
var EntitiesFunctions = []string{
	"init_entities",
	"select_entity",
	"insert_entity",
	"select_active_entities",
	"select_entity_by_identifier",
	"search_entities",
	"deactivate_entity",
	"link_mention_by_identifier",
}

var MentionsFunctions = []string{
	"init_mentions",
	"insert_mention",
	"select_mention",
	"select_mention_status",
	"select_unresolved_mentions",
	"update_mention_resolution",
}

var ResolutionsFunctions = []string{
	"init_resolutions",
	"insert_resolution",
	"select_resolutions_by_mention",
	"select_latest_resolution",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadEntitiesSql loads entity and identifier SQL functions
func LoadEntitiesSql(db *sql.DB, force bool) error {
	return loadSql(db, "entities", entitiesSQL, EntitiesFunctions, force)
}

// LoadMentionsSql loads mention SQL functions
func LoadMentionsSql(db *sql.DB, force bool) error {
	return loadSql(db, "mentions", mentionsSQL, MentionsFunctions, force)
}

// LoadResolutionsSql loads resolution log SQL functions
func LoadResolutionsSql(db *sql.DB, force bool) error {
	return loadSql(db, "resolutions", resolutionsSQL, ResolutionsFunctions, force)
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadEntitiesSql(db, force); err != nil {
		return err
	}

	if err := LoadMentionsSql(db, force); err != nil {
		return err
	}

	if err := LoadResolutionsSql(db, force); err != nil {
		return err
	}

	return nil
}

// loadSql executes script unless force is false and all functions exist already
func loadSql(db *sql.DB, name string, script string, functions []string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Printf("SQL %s functions loaded successfully", name)
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
