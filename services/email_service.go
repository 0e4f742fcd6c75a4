package services

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

// EmailService handles sending emails via SMTP
type EmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
	appURL   string
}

// NewEmailService creates a new email service instance
func NewEmailService() *EmailService {
	port := 587
	if p := os.Getenv("SMTP_PORT"); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}

	return &EmailService{
		host:     getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		port:     port,
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     getEnvOrDefault("SMTP_FROM", "noreply@milerdev.dev"),
		appURL:   getEnvOrDefault("APP_URL", "http://localhost:3000"),
	}
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.username != "" && e.password != ""
}

// SendPaymentReceiptEmail sends a purchase receipt after a payment completes
func (e *EmailService) SendPaymentReceiptEmail(toEmail, userName, itemTitle string, amount int64, currency, paymentID string) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Skipping receipt email for payment %s", paymentID)
		return fmt.Errorf("SMTP not configured")
	}

	subject := "Payment Received - MilerDev Courses"
	body := e.buildReceiptEmailBody(userName, itemTitle, amount, currency, paymentID)

	return e.sendEmail(toEmail, subject, body)
}

// SendEnrollmentEmail tells the user their courses are unlocked
func (e *EmailService) SendEnrollmentEmail(toEmail, userName, itemTitle string) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Skipping enrollment email for %s", toEmail)
		return fmt.Errorf("SMTP not configured")
	}

	subject := "You're Enrolled - MilerDev Courses"
	body := e.buildEnrollmentEmailBody(userName, itemTitle)

	return e.sendEmail(toEmail, subject, body)
}

// buildReceiptEmailBody creates the HTML email body for a payment receipt
func (e *EmailService) buildReceiptEmailBody(userName, itemTitle string, amount int64, currency, paymentID string) string {
	if userName == "" {
		userName = "Student"
	}

	// Amount is stored in minor units
	display := fmt.Sprintf("%s %.2f", currency, float64(amount)/100)

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Payment Received - MilerDev Courses</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background-color: #ffffff;
            border-radius: 8px;
            padding: 40px;
            box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1);
        }
        .logo {
            text-align: center;
            margin-bottom: 30px;
            padding-bottom: 20px;
            border-bottom: 2px solid #1a3d7c;
        }
        .logo h1 {
            color: #1a3d7c;
            font-size: 28px;
            margin: 0;
            letter-spacing: -0.5px;
        }
        h2 {
            color: #1a3d7c;
            margin-top: 0;
        }
        .receipt {
            background-color: #f5f5f5;
            border-radius: 4px;
            padding: 20px;
            margin: 20px 0;
        }
        .receipt td {
            padding: 4px 12px 4px 0;
        }
        .footer {
            margin-top: 30px;
            padding-top: 20px;
            border-top: 1px solid #eee;
            color: #999;
            font-size: 12px;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="logo">
            <h1>MilerDev Courses</h1>
        </div>
        <h2>Payment Received</h2>
        <p>Hi %s,</p>
        <p>Thanks for your purchase. We have received your payment:</p>
        <div class="receipt">
            <table>
                <tr><td>Item</td><td><strong>%s</strong></td></tr>
                <tr><td>Amount</td><td><strong>%s</strong></td></tr>
                <tr><td>Reference</td><td>%s</td></tr>
            </table>
        </div>
        <p>Your courses are available in <a href="%s/my-courses">My Courses</a>.</p>
        <div class="footer">
            This is an automated message, please do not reply.
        </div>
    </div>
</body>
</html>`, userName, itemTitle, display, paymentID, e.appURL)
}

// buildEnrollmentEmailBody creates the HTML email body for an enrollment grant
func (e *EmailService) buildEnrollmentEmailBody(userName, itemTitle string) string {
	if userName == "" {
		userName = "Student"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>You're Enrolled - MilerDev Courses</title>
</head>
<body style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #1a3d7c;">You're enrolled!</h2>
    <p>Hi %s,</p>
    <p><strong>%s</strong> has been added to your account. Start learning whenever you're ready:</p>
    <p><a href="%s/my-courses" style="display: inline-block; background-color: #1a3d7c; color: #ffffff; padding: 14px 28px; text-decoration: none; border-radius: 6px; font-weight: 600;">Go to My Courses</a></p>
    <p style="color: #999; font-size: 12px; margin-top: 30px;">This is an automated message, please do not reply.</p>
</body>
</html>`, userName, itemTitle, e.appURL)
}

func (e *EmailService) sendEmail(to, subject, htmlBody string) error {
	// Build the email message with proper headers
	headers := make(map[string]string)
	headers["From"] = fmt.Sprintf("MilerDev Courses <%s>", e.from)
	headers["Reply-To"] = "support@milerdev.dev"
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"
	headers["X-Mailer"] = "MilerDev Courses Mailer"

	var message strings.Builder
	for k, v := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	message.WriteString("\r\n")
	message.WriteString(htmlBody)

	// Connect to the SMTP server
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	tlsConfig := &tls.Config{
		InsecureSkipVerify: false,
		ServerName:         e.host,
	}

	conn, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	if err := conn.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if err := conn.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := conn.Mail(e.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	if err := conn.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}

	_, err = w.Write([]byte(message.String()))
	if err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	conn.Quit()

	log.Printf("Email sent successfully to: %s", to)
	return nil
}
