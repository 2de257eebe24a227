package main

import (
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// Seeds users and products so the pipeline has something to order against.
// Safe to re-run: users upsert on email, products are appended.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Notice: no .env file found, using system environment variables")
	}

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("DATABASE_USER", "root"),
		getEnv("DATABASE_PASSWORD", "pass"),
		getEnv("DATABASE_HOST", "localhost"),
		getEnv("DATABASE_PORT", "5432"),
		getEnv("DATABASE_NAME", "shop_db"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("❌ Failed to reach database: %v", err)
	}

	userCount := envInt("SEED_USERS", 20)
	productCount := envInt("SEED_PRODUCTS", 20)

	log.Println("🌱 Seeding started...")

	log.Printf("  Creating %d users...", userCount)
	for i := 0; i < userCount; i++ {
		name := fmt.Sprintf("User %04d", i)
		email := fmt.Sprintf("user%04d@example.com", i)
		if _, err := db.Exec(`
			INSERT INTO users (name, email)
			VALUES ($1, $2)
			ON CONFLICT (email) DO NOTHING
		`, name, email); err != nil {
			log.Fatalf("❌ Failed to insert user: %v", err)
		}
	}

	log.Printf("  Creating %d products...", productCount)
	for i := 0; i < productCount; i++ {
		name := fmt.Sprintf("Product %04d", i)
		description := fmt.Sprintf("Seeded catalog item %04d", i)
		price := fmt.Sprintf("%.2f", float64(rand.Intn(99001)+1000)/100)
		stock := rand.Intn(91) + 10
		if _, err := db.Exec(`
			INSERT INTO products (name, description, price, stock)
			VALUES ($1, $2, $3, $4)
		`, name, description, price, stock); err != nil {
			log.Fatalf("❌ Failed to insert product: %v", err)
		}
	}

	log.Println("✅ Seeding finished successfully!")
}

func envInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("❌ Invalid %s: %v", key, err)
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
