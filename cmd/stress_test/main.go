// Command stress_test fires concurrent borrows at one book over gRPC and checks
// that the book is never over-lent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/book-lending/internal/adapter/handler/rpc"
	"github.com/rl1809/book-lending/internal/adapter/storage"
	"github.com/rl1809/book-lending/internal/config"
	"github.com/rl1809/book-lending/internal/core/domain"
	"github.com/rl1809/book-lending/internal/core/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	initialStock := flag.Int("stock", 20, "copies of the test book")
	totalRequests := flag.Int("requests", 50, "concurrent borrow calls")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Errorf("invalid configuration: %v", err)
		return 1
	}

	// The server verifies tokens with the shared secret, so one signed here passes.
	session, err := service.NewSessionService(cfg.JWTSecret, cfg.JWTTTL, storage.NewMemoryAdapter()).
		Issue("stress-test@example.com")
	if err != nil {
		logrus.Errorf("failed to issue token: %v", err)
		return 1
	}
	ctx := context.Background()
	rpcCtx := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+session.Token)

	// The book is created directly in the store the server uses.
	backend, err := storage.OpenBackend(ctx, cfg)
	if err != nil {
		logrus.Errorf("failed to open store: %v", err)
		return 1
	}
	defer backend.Close(ctx)

	bookID, err := backend.Books.CreateBook(ctx, domain.Book{
		Title:     fmt.Sprintf("stress-test-%d", time.Now().Unix()),
		Quantity:  *initialStock,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logrus.Errorf("failed to create book: %v", err)
		return 1
	}

	target := cfg.GRPCAddr
	if strings.HasPrefix(target, ":") {
		target = "localhost" + target
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logrus.Errorf("failed to connect grpc: %v", err)
		return 1
	}
	defer conn.Close()
	client := rpc.NewLendingClient(conn)

	// Counters
	var successCount, outOfStockCount, failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()
	returnDate := time.Now().AddDate(0, 0, 14).Format("2006-01-02")

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()

			_, err := client.Borrow(rpcCtx, &rpc.BorrowRequest{
				BookID:     bookID,
				UserID:     fmt.Sprintf("user-%d@example.com", user),
				ReturnDate: returnDate,
			})
			switch status.Code(err) {
			case codes.OK:
				successCount.Add(1)
			case codes.FailedPrecondition:
				outOfStockCount.Add(1)
			default:
				logrus.WithError(err).Warn("borrow failed")
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	outOfStock := outOfStockCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Book:             %s\n", bookID)
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Borrowed:         %d\n", success)
	fmt.Printf("Out Of Stock:     %d\n", outOfStock)
	fmt.Printf("Other Failures:   %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	expectSuccess := min(*initialStock, *totalRequests)
	passed := true
	if int(success) == expectSuccess && int(outOfStock) == *totalRequests-expectSuccess {
		fmt.Printf("PASS: exactly %d borrows succeeded\n", expectSuccess)
	} else {
		fmt.Printf("FAIL: expected %d borrowed/%d out of stock, got %d/%d\n",
			expectSuccess, *totalRequests-expectSuccess, success, outOfStock)
		passed = false
	}

	// Verify final quantity in the store
	book, err := backend.Books.GetBook(ctx, bookID)
	if err != nil || book == nil {
		logrus.Errorf("failed to read book back: %v", err)
		return 1
	}
	fmt.Printf("Final Quantity:   %d\n", book.Quantity)

	if book.Quantity == *initialStock-expectSuccess {
		fmt.Println("PASS: quantity matches open loans")
	} else {
		fmt.Printf("FAIL: expected quantity %d, got %d\n", *initialStock-expectSuccess, book.Quantity)
		passed = false
	}

	if !passed {
		return 1
	}
	return 0
}
