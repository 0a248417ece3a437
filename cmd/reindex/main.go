package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/NiruddeshJatra/Bhara/internal/config"
	"github.com/NiruddeshJatra/Bhara/internal/database"
	"github.com/NiruddeshJatra/Bhara/internal/product"
	"github.com/NiruddeshJatra/Bhara/internal/search"
)

const pageSize = 200

// ReindexReport summarizes one full rebuild of the products index
type ReindexReport struct {
	StartedAt  time.Time `json:"started_at"`
	Duration   string    `json:"duration"`
	Reset      bool      `json:"reset"`
	Indexed    int       `json:"indexed"`
	Batches    int       `json:"batches"`
	Failures   []string  `json:"failures,omitempty"`
	TotalInDB  int64     `json:"total_in_db"`
	Successful bool      `json:"successful"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := config.LoadEnv(".env"); err != nil {
		log.Printf("Warning: Failed to load .env: %v", err)
	}
	cfg, err := config.LoadConfig(getEnv("CONFIG_PATH", "config/bhara.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeStore()

	client := search.NewSearchClient(
		getEnvOrConfig(cfg.Search.Meilisearch.Host, "MEILISEARCH_HOST", "http://meilisearch:7700"),
		getEnvOrConfig(cfg.Search.Meilisearch.APIKey, "MEILISEARCH_KEY", ""),
		store,
	)
	if err := client.InitIndex(); err != nil {
		log.Fatalf("Failed to initialize search index: %v", err)
	}

	report := &ReindexReport{StartedAt: time.Now(), Reset: os.Getenv("REINDEX_RESET") == "true"}
	if report.Reset {
		log.Println("[Reindex] Clearing products index")
		if err := client.DeleteAll(); err != nil {
			log.Fatalf("Failed to clear index: %v", err)
		}
	}

	ctx := context.Background()
	for offset := 0; ; offset += pageSize {
		products, total, err := store.ListProducts(ctx, product.ListFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			log.Fatalf("Failed to list products at offset %d: %v", offset, err)
		}
		report.TotalInDB = total
		if len(products) == 0 {
			break
		}

		report.Batches++
		if err := client.IndexProducts(products); err != nil {
			log.Printf("[Reindex] Batch at offset %d failed: %v", offset, err)
			report.Failures = append(report.Failures, fmt.Sprintf("offset %d: %v", offset, err))
			continue
		}
		report.Indexed += len(products)
		log.Printf("[Reindex] Indexed %d/%d products", report.Indexed, total)
	}

	report.Duration = time.Since(report.StartedAt).Round(time.Millisecond).String()
	report.Successful = len(report.Failures) == 0

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal report: %v", err)
	}
	fmt.Println(string(data))

	if !report.Successful {
		os.Exit(1)
	}
}

// openStore connects to the configured catalogue database
func openStore(cfg *config.Config) (product.Store, func(), error) {
	if getEnvOrConfig(cfg.Database.Type, "DB_TYPE", "mysql") == "mysql" {
		c := cfg.Database.MySQL
		db, err := database.NewGormDB(
			getEnvOrConfig(c.Host, "DB_HOST", "mysql"),
			getEnvOrConfig(portString(c.Port), "DB_PORT", "3306"),
			getEnvOrConfig(c.User, "DB_USER", "bhara"),
			getEnvOrConfig(c.Password, "DB_PASSWORD", ""),
			getEnvOrConfig(c.Database, "DB_NAME", "bhara"),
		)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	}

	c := cfg.Database.Postgres
	db, err := database.NewPostgresDB(
		getEnvOrConfig(c.Host, "DB_HOST", "db"),
		getEnvOrConfig(portString(c.Port), "DB_PORT", "5432"),
		getEnvOrConfig(c.User, "DB_USER", "bhara"),
		getEnvOrConfig(c.Password, "DB_PASSWORD", ""),
		getEnvOrConfig(c.Database, "DB_NAME", "bhara"),
	)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

func portString(port int) string {
	if port <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}
