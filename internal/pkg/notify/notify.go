package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/rs/zerolog"
)

// Sink defines the interface for outgoing proposal notifications
type Sink interface {
	SendProposalReport(report ProposalReport) error
}

// ProposalReport is the outcome of one batch action, addressed to its author
type ProposalReport struct {
	ToEmail string
	ToName  string
	Action  string
	Lines   []string
}

// SMTPConfig holds configuration for SMTP server
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
	UseTLS    bool
}

// SMTPSink implements Sink over an SMTP server
type SMTPSink struct {
	config SMTPConfig
	logger zerolog.Logger
}

// NewSMTPSink creates a new SMTPSink
func NewSMTPSink(config SMTPConfig, logger zerolog.Logger) Sink {
	return &SMTPSink{
		config: config,
		logger: logger,
	}
}

// SendProposalReport sends the outcome of a batch action to its author
func (s *SMTPSink) SendProposalReport(report ProposalReport) error {
	// If username or password is empty, log the report (for development only)
	if s.config.Username == "" || s.config.Password == "" {
		s.logger.Warn().
			Str("toEmail", report.ToEmail).
			Str("action", report.Action).
			Strs("lines", report.Lines).
			Msg("SMTP credentials not configured - proposal report not sent.")

		// Return success for development purposes
		return nil
	}
	subject := fmt.Sprintf("Proposal report: %s", report.Action)

	rows := ""
	for _, line := range report.Lines {
		rows += fmt.Sprintf("<li>%s</li>\n", line)
	}

	body := fmt.Sprintf(`
		<html>
		<body>
			<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
				<h2 style="color: #333;">Proposal report</h2>
				<p>Hello %s,</p>
				<p>The action <strong>%s</strong> you requested has finished. The outcome per learning unit:</p>
				<ul>
					%s
				</ul>
				<p>Best regards,<br>The OSIS Team</p>
			</div>
		</body>
		</html>
	`, report.ToName, report.Action, rows)

	return s.sendHTMLEmail(report.ToEmail, subject, body)
}

// sendHTMLEmail sends an HTML email
func (s *SMTPSink) sendHTMLEmail(toEmail, subject, htmlBody string) error {
	// Set up authentication information
	auth := smtp.PlainAuth(
		"",
		s.config.Username,
		s.config.Password,
		s.config.Host,
	)

	// Set up email headers
	headers := make(map[string]string)
	headers["From"] = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail)
	headers["To"] = toEmail
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"

	// Construct message
	message := ""
	for key, value := range headers {
		message += fmt.Sprintf("%s: %s\r\n", key, value)
	}
	message += "\r\n" + htmlBody

	// Connect to the server, set up a connection
	serverAddress := s.config.Host + ":" + strconv.Itoa(s.config.Port)

	// Use TLS if configured
	if s.config.UseTLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: true,
			ServerName:         s.config.Host,
		}

		// Connect to the SMTP server with TLS
		conn, err := tls.Dial("tcp", serverAddress, tlsConfig)
		if err != nil {
			s.logger.Error().Err(err).Str("server", serverAddress).Msg("Failed to connect to SMTP server")
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		defer conn.Close()

		client, err := smtp.NewClient(conn, s.config.Host)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to create SMTP client")
			return fmt.Errorf("failed to create SMTP client: %w", err)
		}
		defer client.Quit()

		// Authenticate
		if err = client.Auth(auth); err != nil {
			s.logger.Error().Err(err).Msg("SMTP authentication failed")
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}

		// Set the sender and recipient
		if err = client.Mail(s.config.FromEmail); err != nil {
			return fmt.Errorf("failed to set sender: %w", err)
		}
		if err = client.Rcpt(toEmail); err != nil {
			return fmt.Errorf("failed to set recipient: %w", err)
		}

		// Send the email body
		w, err := client.Data()
		if err != nil {
			return fmt.Errorf("failed to get data writer: %w", err)
		}
		_, err = w.Write([]byte(message))
		if err != nil {
			return fmt.Errorf("failed to write email message: %w", err)
		}
		err = w.Close()
		if err != nil {
			return fmt.Errorf("failed to close data writer: %w", err)
		}

		return nil
	}

	// Simple SMTP without TLS
	err := smtp.SendMail(
		serverAddress,
		auth,
		s.config.FromEmail,
		[]string{toEmail},
		[]byte(message),
	)
	if err != nil {
		s.logger.Error().Err(err).Str("server", serverAddress).Msg("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}
