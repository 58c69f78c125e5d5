// Command mailer drains the mail queue and delivers every notification over
// SMTP.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/metinatakli/cinex-booking/internal/notify"
)

func main() {
	_ = godotenv.Load()

	smtpPort, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if smtpPort == 0 {
		smtpPort = 2525
	}

	amqpURL := flag.String("amqp-url", os.Getenv("AMQP_URL"), "RabbitMQ URL")
	queue := flag.String("amqp-queue", notify.MailQueue, "RabbitMQ mail queue")
	host := flag.String("smtp-host", os.Getenv("SMTP_HOST"), "SMTP host")
	port := flag.Int("smtp-port", smtpPort, "SMTP port")
	username := flag.String("smtp-username", os.Getenv("SMTP_USERNAME"), "SMTP username")
	password := flag.String("smtp-password", os.Getenv("SMTP_PASSWORD"), "SMTP password")
	sender := flag.String("smtp-sender", "CineX <no-reply@cinex.metinatakli.net>", "SMTP sender")

	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *amqpURL == "" || *host == "" {
		logger.Error("both -amqp-url and -smtp-host are required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mailer := notify.NewSMTPMailer(*host, *port, *username, *password, *sender)
	consumer := notify.NewConsumer(*amqpURL, *queue, mailer, logger)

	logger.Info("mailer started", "queue", *queue)

	err := consumer.Run(ctx)
	if err != nil {
		logger.Error("mailer stopped", "error", err)
		os.Exit(1)
	}
}
