package main

import (
	"flag"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

type orderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	UserID string      `json:"user_id"`
	Items  []orderItem `json:"items"`
}

// Fires concurrent order intents at the producer service. Useful for watching
// concurrent reservations fight over the same products.
func main() {
	baseURL := flag.String("url", "http://localhost:3001", "orders service base URL")
	userID := flag.String("user", "", "user id to order as (required)")
	products := flag.String("products", "", "comma-separated product ids (required)")
	orders := flag.Int("orders", 100, "number of orders to place")
	concurrency := flag.Int("concurrency", 10, "concurrent senders")
	maxQty := flag.Int("max-qty", 3, "maximum quantity per line item")
	flag.Parse()

	if *userID == "" || *products == "" {
		log.Fatal("❌ Both -user and -products are required")
	}
	productIDs := strings.Split(*products, ",")

	client := resty.New().
		SetBaseURL(*baseURL).
		SetTimeout(10 * time.Second)

	log.Printf("🚀 Placing %d orders with concurrency %d against %s", *orders, *concurrency, *baseURL)

	var accepted, failed int64
	jobs := make(chan int)
	var wg sync.WaitGroup

	start := time.Now()
	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				req := orderRequest{
					UserID: *userID,
					Items: []orderItem{{
						ProductID: productIDs[rand.Intn(len(productIDs))],
						Quantity:  rand.Intn(*maxQty) + 1,
					}},
				}

				resp, err := client.R().
					SetHeader("Content-Type", "application/json").
					SetBody(req).
					Post("/order")
				if err != nil {
					atomic.AddInt64(&failed, 1)
					log.Printf("❌ Request failed: %v", err)
					continue
				}
				if resp.StatusCode() == 202 {
					atomic.AddInt64(&accepted, 1)
				} else {
					atomic.AddInt64(&failed, 1)
					log.Printf("❌ Unexpected status %d: %s", resp.StatusCode(), resp.String())
				}
			}
		}()
	}

	for i := 0; i < *orders; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	log.Printf("📊 Done in %s: %d accepted, %d failed (%.1f req/s)",
		elapsed.Round(time.Millisecond), accepted, failed,
		float64(*orders)/elapsed.Seconds())
}
