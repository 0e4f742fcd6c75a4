package main

import (
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/ohmiler/milerdev-sub000/database"
)

// Operator report over the payments table, for when the admin API is not
// reachable (incident response, cron boxes). Read-only.
func main() {
	days := flag.Int("days", 7, "look-back window in days for the status summary")
	stuckHours := flag.Int("stuck-hours", 24, "age in hours after which a non-terminal payment counts as stuck")
	limit := flag.Int("limit", 100, "maximum stuck payments to list")
	coupons := flag.Bool("coupons", false, "include the coupon redemption report")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	store, err := database.Start()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.HealthCheck(); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}

	since := time.Now().AddDate(0, 0, -*days)
	counts, err := store.PaymentStatusCounts(since)
	if err != nil {
		log.Fatalf("Failed to query status counts: %v", err)
	}

	fmt.Printf("Payment status summary (last %d days)\n", *days)
	statuses := make([]string, 0, len(counts))
	for status := range counts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Printf("  %-10s %d\n", status, counts[status])
	}
	if len(counts) == 0 {
		fmt.Println("  (no payments in window)")
	}

	cutoff := time.Now().Add(-time.Duration(*stuckHours) * time.Hour)
	stuck, err := store.ListStuckPayments(cutoff, *limit)
	if err != nil {
		log.Fatalf("Failed to query stuck payments: %v", err)
	}

	fmt.Printf("\nStuck payments (older than %dh, oldest first)\n", *stuckHours)
	for _, p := range stuck {
		fmt.Printf("  %s  %-10s %-14s %8d  %-30s %s\n",
			p.ID, p.Status, p.Method, p.Amount, p.UserEmail, p.CreatedAt.Format(time.RFC3339))
	}
	if len(stuck) == 0 {
		fmt.Println("  (none)")
	}

	if *coupons {
		report, err := store.CouponRedemptionReport()
		if err != nil {
			log.Fatalf("Failed to query coupon redemptions: %v", err)
		}
		fmt.Println("\nCoupon redemptions")
		codes := make([]string, 0, len(report))
		for code := range report {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Printf("  %-20s %s\n", code, report[code])
		}
		if len(report) == 0 {
			fmt.Println("  (no coupons)")
		}
	}
}
