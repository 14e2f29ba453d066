package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/domain"
	"marketplace/internal/logger"
	"marketplace/internal/notification"
	"marketplace/internal/queue"
	"marketplace/internal/repository"
	"marketplace/internal/search"
	"marketplace/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: marketplace-cli <command> [flags]

Commands:
  search-configure                     apply search index settings
  search-index [--fresh] [--chunk N]   push the catalog to the search index
  jobs-process <type> [--user] [--email]
                                       run jobs of a type synchronously
  jobs-monitor [--status] [--queue] [--clear-failed]
                                       inspect or clear dead-lettered jobs
  gdpr-monitor [--check-overdue] [--cleanup-expired] [--report]
                                       data request housekeeping
  migrate-status                       show applied/pending migrations`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbService := database.New()
	db := dbService.DB()
	defer dbService.Close()

	ctx := context.Background()

	var runErr error
	switch os.Args[1] {
	case "search-configure":
		runErr = runSearchConfigure(ctx, cfg, db, log)
	case "search-index":
		runErr = runSearchIndex(ctx, cfg, db, log, os.Args[2:])
	case "jobs-process":
		runErr = runJobsProcess(ctx, cfg, db, log, os.Args[2:])
	case "jobs-monitor":
		runErr = runJobsMonitor(ctx, db, os.Args[2:])
	case "gdpr-monitor":
		runErr = runGDPRMonitor(ctx, cfg, db, log, os.Args[2:])
	case "migrate-status":
		runErr = database.MigrationStatus(db, "migrations")
	default:
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		log.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(runErr))
		os.Exit(1)
	}
}

func newProductService(cfg *config.Config, db repository.DBTX, log *zap.Logger) (service.ProductService, error) {
	if !cfg.Search.Enabled {
		return nil, fmt.Errorf("search is not enabled (set SEARCH_ENABLED=true)")
	}
	indexer := search.NewMeiliIndexer(cfg.Search)
	productRepo := repository.NewProductRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	return service.NewProductService(productRepo, categoryRepo, indexer, nil, log), nil
}

func runSearchConfigure(ctx context.Context, cfg *config.Config, db repository.DBTX, log *zap.Logger) error {
	svc, err := newProductService(cfg, db, log)
	if err != nil {
		return err
	}
	if err := svc.ConfigureIndex(ctx); err != nil {
		return err
	}
	fmt.Println("search index configured")
	return nil
}

func runSearchIndex(ctx context.Context, cfg *config.Config, db repository.DBTX, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("search-index", flag.ExitOnError)
	fresh := fs.Bool("fresh", false, "reapply index settings before indexing")
	chunk := fs.Int("chunk", 100, "number of products per indexing batch")
	fs.Parse(args)

	svc, err := newProductService(cfg, db, log)
	if err != nil {
		return err
	}

	start := time.Now()
	indexed, err := svc.Reindex(ctx, *fresh, *chunk)
	if err != nil {
		return err
	}
	fmt.Printf("indexed %d products in %s\n", indexed, time.Since(start).Round(time.Millisecond))
	return nil
}

// runJobsProcess runs jobs of one type synchronously, without the
// worker pool. Useful for reprocessing after an outage or for smoke
// testing a delivery channel.
func runJobsProcess(ctx context.Context, cfg *config.Config, db repository.DBTX, log *zap.Logger, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: jobs-process <type> [--user ID] [--email ADDR]")
	}
	jobType := args[0]

	fs := flag.NewFlagSet("jobs-process", flag.ExitOnError)
	user := fs.String("user", "", "only process jobs belonging to this user ID")
	email := fs.String("email", "", "recipient for notification jobs")
	fs.Parse(args[1:])

	switch jobType {
	case queue.TypeGDPRProcess:
		return processDataRequests(ctx, cfg, db, log, *user)

	case queue.TypeNotification:
		if *email == "" {
			return fmt.Errorf("--email is required for %s", queue.TypeNotification)
		}
		notifier := notification.New(cfg.SMTP, log)
		err := notifier.Send(ctx, notification.Notification{
			Channel:   "mail",
			Recipient: *email,
			Subject:   "Marketplace delivery check",
			Body:      "This message confirms the notification channel is working.",
		})
		if err != nil {
			return err
		}
		fmt.Printf("notification sent to %s\n", *email)
		return nil

	case queue.TypeSearchSync:
		svc, err := newProductService(cfg, db, log)
		if err != nil {
			return err
		}
		indexed, err := svc.Reindex(ctx, false, 100)
		if err != nil {
			return err
		}
		fmt.Printf("synced %d products to the search index\n", indexed)
		return nil

	default:
		return fmt.Errorf("unknown job type %q (known: %s, %s, %s)",
			jobType, queue.TypeGDPRProcess, queue.TypeNotification, queue.TypeSearchSync)
	}
}

func processDataRequests(ctx context.Context, cfg *config.Config, db repository.DBTX, log *zap.Logger, user string) error {
	svc := newGDPRService(cfg, db, log)

	pending := domain.DataRequestPending
	requests, err := svc.ListAll(ctx, &pending)
	if err != nil {
		return err
	}

	var userID uuid.UUID
	if user != "" {
		userID, err = uuid.Parse(user)
		if err != nil {
			return fmt.Errorf("invalid --user %q: %w", user, err)
		}
	}

	processed := 0
	for _, req := range requests {
		if user != "" && req.UserID != userID {
			continue
		}
		if err := svc.Process(ctx, req.ID); err != nil {
			fmt.Printf("%s  %-13s FAILED: %v\n", req.ID, req.Type, err)
			continue
		}
		fmt.Printf("%s  %-13s processed\n", req.ID, req.Type)
		processed++
	}
	fmt.Printf("processed %d of %d pending requests\n", processed, len(requests))
	return nil
}

func runJobsMonitor(ctx context.Context, db repository.DBTX, args []string) error {
	fs := flag.NewFlagSet("jobs-monitor", flag.ExitOnError)
	status := fs.Bool("status", false, "show dead-lettered job counts by type")
	queueFilter := fs.String("queue", "", "only show jobs of this type")
	clearFailed := fs.Bool("clear-failed", false, "delete all dead-lettered jobs")
	fs.Parse(args)

	failedJobRepo := repository.NewFailedJobRepository(db)

	if *clearFailed {
		n, err := failedJobRepo.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d failed jobs\n", n)
		return nil
	}

	if *status {
		counts, err := failedJobRepo.CountByType(ctx)
		if err != nil {
			return err
		}
		if *queueFilter != "" {
			fmt.Printf("%-24s %d\n", *queueFilter, counts[*queueFilter])
			return nil
		}
		if len(counts) == 0 {
			fmt.Println("no failed jobs")
			return nil
		}
		for jobType, count := range counts {
			fmt.Printf("%-24s %d\n", jobType, count)
		}
		return nil
	}

	jobs, err := failedJobRepo.List(ctx, *queueFilter, 50)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no failed jobs")
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%s  %-24s attempts=%d  %s\n",
			job.FailedAt.Format(time.RFC3339), job.JobType, job.Attempts, job.Error)
	}
	return nil
}

func newGDPRService(cfg *config.Config, db repository.DBTX, log *zap.Logger) service.GDPRService {
	return service.NewGDPRService(
		repository.NewDataRequestRepository(db),
		repository.NewUserRepository(db),
		repository.NewOrderRepository(db),
		repository.NewRefreshTokenRepository(db),
		afero.NewOsFs(),
		cfg.GDPR,
		nil,
		log,
	)
}

func runGDPRMonitor(ctx context.Context, cfg *config.Config, db repository.DBTX, log *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("gdpr-monitor", flag.ExitOnError)
	checkOverdue := fs.Bool("check-overdue", false, "list open requests older than the compliance window")
	cleanupExpired := fs.Bool("cleanup-expired", false, "remove expired export files")
	report := fs.Bool("report", false, "print request counts by status")
	fs.Parse(args)

	svc := newGDPRService(cfg, db, log)

	ran := false

	if *checkOverdue {
		ran = true
		overdue, err := svc.OverdueRequests(ctx)
		if err != nil {
			return err
		}
		if len(overdue) == 0 {
			fmt.Println("no overdue requests")
		}
		for _, req := range overdue {
			fmt.Printf("%s  %-13s %-10s requested %s (user %s)\n",
				req.ID, req.Type, req.Status, req.RequestedAt.Format("2006-01-02"), req.UserID)
		}
	}

	if *cleanupExpired {
		ran = true
		n, err := svc.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("cleaned %d expired exports\n", n)
	}

	if *report {
		ran = true
		requests, err := svc.ListAll(ctx, nil)
		if err != nil {
			return err
		}
		counts := map[string]int{}
		for _, req := range requests {
			counts[string(req.Status)]++
		}
		fmt.Printf("total requests: %d\n", len(requests))
		for status, count := range counts {
			fmt.Printf("%-12s %d\n", status, count)
		}
	}

	if !ran {
		fs.Usage()
	}
	return nil
}
