package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nabil-haroun/bookably/libs/config"
	"github.com/nabil-haroun/bookably/libs/db"
	"github.com/nabil-haroun/bookably/libs/httpx"
	"github.com/nabil-haroun/bookably/libs/kafkax"
	otelx "github.com/nabil-haroun/bookably/libs/otel"
	"github.com/nabil-haroun/bookably/libs/runtime"
	"github.com/nabil-haroun/bookably/services/notification-service/internal/consumer"
	"github.com/nabil-haroun/bookably/services/notification-service/internal/email"
	"github.com/nabil-haroun/bookably/services/notification-service/internal/inbox"
	"github.com/nabil-haroun/bookably/services/notification-service/internal/outbox"
	"github.com/nabil-haroun/bookably/services/notification-service/internal/sms"
	"github.com/nabil-haroun/bookably/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// appointmentEvent is the payload scheduling writes for booked, confirmed and
// cancelled appointments.
type appointmentEvent struct {
	AppointmentID string `json:"appointment_id"`
	BusinessID    string `json:"business_id"`
	ServiceID     string `json:"service_id"`
	StaffID       string `json:"staff_id"`
	ClientID      string `json:"client_id"`
	ScheduledFor  string `json:"scheduled_for"`
	DurationMins  int    `json:"duration_mins"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
}

func composeMessage(eventType, businessName string, evt appointmentEvent) (subject, body string) {
	when := evt.ScheduledFor
	if t, err := time.Parse(time.RFC3339, evt.ScheduledFor); err == nil {
		when = t.Format("Mon, 02 Jan 2006 15:04 MST")
	}
	switch eventType {
	case "booking.appointment.confirmed.v1":
		subject = "Your appointment is confirmed"
		body = fmt.Sprintf("Your appointment on %s is confirmed. See you then!", when)
	case "booking.appointment.cancelled.v1":
		subject = "Your appointment was cancelled"
		body = fmt.Sprintf("Your appointment on %s has been cancelled.", when)
		if evt.Reason != "" {
			body += " Reason: " + evt.Reason
		}
	default:
		subject = "Your appointment is booked"
		body = fmt.Sprintf("We received your booking for %s. You will hear from us once it is confirmed.", when)
	}
	if businessName != "" {
		subject = "[" + businessName + "] " + subject
	}
	return subject, body
}

func writeReceipt(ctx context.Context, pool *db.Pool, outboxRepo *outbox.Repository, evt appointmentEvent, channel, providerID, failureReason string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	eventType := "notification.sent.v1"
	fields := map[string]any{
		"appointment_id": evt.AppointmentID,
		"business_id":    evt.BusinessID,
		"channel":        channel,
	}
	if failureReason != "" {
		eventType = "notification.failed.v1"
		fields["error_reason"] = failureReason
		fields["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		if providerID == "" {
			providerID = "unknown"
		}
		fields["provider_id"] = providerID
		fields["sent_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	if err := outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   evt.AppointmentID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	emailSender, err := email.NewSMTPSender(email.Config{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.Int("SMTP_PORT", 1025),
		From:     config.String("SMTP_FROM", "no-reply@bookably.local"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
		UseTLS:   config.String("SMTP_TLS", "false") == "true",
	})
	if err != nil {
		logger.Error("smtp client init failed", "err", err)
		panic(err)
	}

	var smsSender sms.Sender
	switch strings.ToLower(config.String("SMS_PROVIDER", "noop")) {
	case "webhook":
		smsSender = sms.NewWebhookSender(config.String("SMS_WEBHOOK_URL", ""), config.String("SMS_WEBHOOK_TOKEN", ""))
	default:
		smsSender = sms.NewNoopSender()
	}

	handle := func(ctx context.Context, msg kafka.Message) error {
		var evt appointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid appointment event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if evt.AppointmentID == "" || evt.BusinessID == "" || evt.ClientID == "" {
			logger.Error("missing appointment event fields", "topic", msg.Topic)
			return nil
		}

		contact, found, err := notificationsRepo.GetClientContact(ctx, evt.BusinessID, evt.ClientID)
		if err != nil {
			return err
		}
		if !found {
			logger.Warn("client not found; dropping notification", "client_id", evt.ClientID)
			return nil
		}
		businessName, err := notificationsRepo.GetBusinessName(ctx, evt.BusinessID)
		if err != nil {
			return err
		}
		subject, body := composeMessage(msg.Topic, businessName, evt)

		record := func(channel, recipient, providerID, failureReason string) error {
			status := "sent"
			if failureReason != "" {
				status = "failed"
			}
			if err := notificationsRepo.Insert(ctx, storage.Notification{
				AppointmentID: evt.AppointmentID,
				BusinessID:    evt.BusinessID,
				EventType:     msg.Topic,
				Channel:       channel,
				Recipient:     recipient,
				Payload:       msg.Value,
				Status:        status,
				FailureReason: failureReason,
			}); err != nil {
				return err
			}
			return writeReceipt(ctx, pool, outboxRepo, evt, channel, providerID, failureReason)
		}

		if contact.Email != "" {
			failure := ""
			if err := emailSender.Send(ctx, contact.Email, subject, body); err != nil {
				failure = err.Error()
				logger.Error("email send failed", "err", err, "recipient", contact.Email)
			}
			if err := record("email", contact.Email, emailSender.ProviderID(), failure); err != nil {
				return err
			}
		}
		if contact.Phone != "" {
			failure := ""
			if err := smsSender.Send(ctx, contact.Phone, body); err != nil {
				failure = err.Error()
				logger.Error("sms send failed", "err", err, "recipient", contact.Phone)
			}
			if err := record("sms", contact.Phone, smsSender.ProviderID(), failure); err != nil {
				return err
			}
		}
		if contact.Email == "" && contact.Phone == "" {
			logger.Warn("client has no delivery address", "client_id", evt.ClientID)
		}

		logger.Info("appointment event processed", "appointment_id", evt.AppointmentID, "event", msg.Topic)
		return nil
	}

	startConsumer := func(topic string) {
		if strings.TrimSpace(topic) == "" {
			return
		}
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: config.String("KAFKA_BROKERS", ""),
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topic:   topic,
		}, handle)
		go c.Run(ctx)
	}
	startConsumer(config.String("KAFKA_TOPIC_BOOKED", "booking.appointment.booked.v1"))
	startConsumer(config.String("KAFKA_TOPIC_CONFIRMED", "booking.appointment.confirmed.v1"))
	startConsumer(config.String("KAFKA_TOPIC_CANCELLED", "booking.appointment.cancelled.v1"))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
