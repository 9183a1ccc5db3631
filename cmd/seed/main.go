// seed inserts development sample data for local testing: a demo customer and
// one professional subscription. Idempotent: skips inserts if the demo
// customer (demo@flowlytix.dev) already exists.
//
// The raw license key is printed once; only its hash is stored.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"flowlytix/licensing/internal/config"
	customerdomain "flowlytix/licensing/internal/customer/domain"
	customerrepo "flowlytix/licensing/internal/customer/repository"
	"flowlytix/licensing/internal/db"
	"flowlytix/licensing/internal/ledger"
	subscriptionrepo "flowlytix/licensing/internal/subscription/repository"
	subscriptionservice "flowlytix/licensing/internal/subscription/service"
)

const demoEmail = "demo@flowlytix.dev"

// customerExists adapts the customer repository to the subscription service's
// existence check.
type customerExists struct {
	repo customerrepo.Repository
}

func (c customerExists) Exists(ctx context.Context, id string) (bool, error) {
	cust, err := c.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return false, err
	}
	return cust != nil, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	customers := customerrepo.NewPostgresRepository(conn)

	existing, err := customers.GetCustomerByEmail(ctx, demoEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", demoEmail)
		os.Exit(0)
	}

	now := time.Now().UTC()
	cust := &customerdomain.Customer{
		ID:        uuid.New().String(),
		Email:     demoEmail,
		Name:      "Demo Customer",
		Company:   "Flowlytix Demo",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := customers.CreateCustomer(ctx, cust); err != nil {
		log.Fatalf("create demo customer: %v", err)
	}

	subs := subscriptionservice.NewService(
		subscriptionrepo.NewPostgresRepository(conn),
		customerExists{repo: customers},
		ledger.NewPostgres(conn),
	)

	duration := 365 * 24 * time.Hour
	res, err := subs.Create(ctx, cust.ID, "professional", 0, &duration)
	if err != nil {
		log.Fatalf("create demo subscription: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Demo customer:     %s (%s)\n", cust.Name, cust.Email)
	fmt.Printf("Subscription id:   %s\n", res.Subscription.ID)
	fmt.Printf("License key:       %s\n", res.LicenseKey)
	fmt.Println("Store the license key now; it is not recoverable later.")
}
