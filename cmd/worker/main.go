package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robfig/cron/v3"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/config"
	"github.com/suPer8Hu/subspace-chat/internal/db"
	"github.com/suPer8Hu/subspace-chat/internal/email"
	"github.com/suPer8Hu/subspace-chat/internal/mailer"
	"github.com/suPer8Hu/subspace-chat/internal/store/rabbitmq"
)

// failed deliveries wait this long on the retry queue
const retryDelay = 30 * time.Second

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN, &mailer.Job{}, &chat.Conversation{}, &chat.Message{})

	mail := mailer.NewService(mailer.NewRepo(gdb), nil, mailer.SMTPSender{Cfg: email.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}})
	chatSvc := chat.NewService(chat.NewRepo(gdb), nil)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	topo := rabbitmq.JobTopology(cfg.RabbitQueue)
	if err := topo.Declare(ch); err != nil {
		log.Fatalf("queue declare: %v", err)
	}
	retries := rabbitmq.NewPublisherOnChannel(ch, topo)

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(topo.Work, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := startMaintenance(ctx, cfg, chatSvc, mail)
	defer sched.Stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, workerID, mail, retries, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed, worker shutting down")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

// handleDelivery acks delivered and skipped jobs, parks retryable failures
// on the retry queue and dead-letters the rest.
func handleDelivery(ctx context.Context, workerID int, mail *mailer.Service, retries *rabbitmq.Publisher, d amqp.Delivery) {
	jobID, err := rabbitmq.DecodeJob(d.Body)
	if err != nil {
		log.Printf("worker=%d bad message: %v", workerID, err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	retry, err := mail.Handle(ctx, jobID)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Printf("worker=%d ack failed job=%s err=%v", workerID, jobID, err)
		}
		return
	}

	log.Printf("worker=%d job %s failed cost=%s retry=%t err=%v", workerID, jobID, time.Since(start), retry, err)
	if retry {
		perr := retries.PublishRetry(ctx, jobID, retryDelay)
		if perr == nil {
			_ = d.Ack(false)
			return
		}
		log.Printf("worker=%d retry publish failed job=%s err=%v", workerID, jobID, perr)
	}
	_ = d.Nack(false, false)
}

// startMaintenance schedules the count reconciler and the mail job purge.
func startMaintenance(ctx context.Context, cfg config.Config, chatSvc *chat.Service, mail *mailer.Service) *cron.Cron {
	c := cron.New()
	if _, err := c.AddFunc(cfg.ReconcileSchedule, func() {
		start := time.Now()
		n, err := chatSvc.ReconcileMessageCounts(ctx)
		if err != nil {
			log.Printf("[Maintenance] reconcile message counts: %v", err)
			return
		}
		log.Printf("[Maintenance] reconciled %d conversations cost=%s", n, time.Since(start))
	}); err != nil {
		log.Fatalf("reconcile schedule %q: %v", cfg.ReconcileSchedule, err)
	}
	if _, err := c.AddFunc(cfg.MailPurgeSchedule, func() {
		n, err := mail.Purge(ctx, cfg.MailRetention)
		if err != nil {
			log.Printf("[Maintenance] purge mail jobs: %v", err)
			return
		}
		log.Printf("[Maintenance] purged %d mail jobs", n)
	}); err != nil {
		log.Fatalf("purge schedule %q: %v", cfg.MailPurgeSchedule, err)
	}
	c.Start()
	return c
}
