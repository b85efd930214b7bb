// Command reconcile reports loans and stock counts that disagree. It exits 1
// when anomalies are found.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/book-lending/internal/adapter/storage"
	"github.com/rl1809/book-lending/internal/config"
	"github.com/rl1809/book-lending/internal/core/service"
	"github.com/rl1809/book-lending/internal/logger"
)

func main() {
	os.Exit(run())
}

// run returns the exit code, leaving main to exit once the store is closed.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		logrus.Errorf("invalid configuration: %v", err)
		return 1
	}
	logger.Setup(cfg.LogLevel, cfg.IsProduction())

	ctx, cancel := context.WithTimeout(context.Background(), 10*cfg.StoreTimeout)
	defer cancel()

	backend, err := storage.OpenBackend(ctx, cfg)
	if err != nil {
		logrus.Errorf("failed to open %s store: %v", cfg.StoreDriver, err)
		return 1
	}
	defer func() {
		if err := backend.Close(context.Background()); err != nil {
			logrus.Errorf("close store: %v", err)
		}
	}()

	report, err := service.NewReconcileService(backend.Books, backend.Loans).Run(ctx)
	if err != nil {
		logrus.Errorf("reconcile failed: %v", err)
		return 1
	}

	fmt.Println("========== RECONCILE REPORT ==========")
	fmt.Printf("Books:            %d\n", report.Books)
	fmt.Printf("Open Loans:       %d\n", report.Loans)

	bookIDs := make([]string, 0, len(report.OpenLoans))
	for id := range report.OpenLoans {
		bookIDs = append(bookIDs, id)
	}
	sort.Strings(bookIDs)
	for _, id := range bookIDs {
		fmt.Printf("  %s: %d\n", id, report.OpenLoans[id])
	}

	for _, loan := range report.OrphanLoans {
		fmt.Printf("ORPHAN LOAN: %s (book %s, user %s)\n", loan.ID, loan.BookID, loan.UserID)
	}
	for _, book := range report.NegativeStock {
		fmt.Printf("NEGATIVE STOCK: %s quantity=%d\n", book.ID, book.Quantity)
	}
	fmt.Println("======================================")

	if !report.Healthy() {
		return 1
	}
	return 0
}
