package service

import (
	"fmt"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"

	"atelier/internal/api/models"
)

// NotifierConfig is the SMTP setup for operator alerts. An empty host
// disables notifications.
type NotifierConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AlertTo  string
	UseTLS   bool
}

// NotifierService emails operators when generations fail or deployments
// go dark. Delivery is best-effort; a broken mail setup never affects
// the pipeline.
type NotifierService struct {
	cfg    NotifierConfig
	logger zerolog.Logger
}

func NewNotifierService(cfg NotifierConfig, logger zerolog.Logger) *NotifierService {
	return &NotifierService{cfg: cfg, logger: logger}
}

// Configured reports whether alerts can be sent at all.
func (slf *NotifierService) Configured() bool {
	return slf.cfg.Host != "" && slf.cfg.AlertTo != ""
}

// NotifyGenerationFailed alerts operators about a failed generation.
func (slf *NotifierService) NotifyGenerationFailed(record models.GenerationRecord, cause error) {
	subject := fmt.Sprintf("Generation #%d failed", record.ID)
	body := fmt.Sprintf(
		"Generation #%d failed.\n\nPrompt: %s\nModel: %s\nDeployment: %s\nWorkflow source: %s\nError: %v\n",
		record.ID, record.Prompt, record.ModelFilename, record.DeploymentType, record.WorkflowSource, cause)
	slf.send(subject, body)
}

// NotifyDeploymentDown alerts operators that a deployment stopped
// answering health probes.
func (slf *NotifierService) NotifyDeploymentDown(status models.DeploymentStatus) {
	subject := fmt.Sprintf("Deployment %s is unhealthy", status.Name)
	body := fmt.Sprintf(
		"Deployment %s (%s) stopped answering health probes.\nPriority: %d\n",
		status.Name, status.Type, status.Priority)
	slf.send(subject, body)
}

func (slf *NotifierService) send(subject, body string) {
	if !slf.Configured() {
		return
	}

	from := slf.cfg.From
	if from == "" {
		from = slf.cfg.Username
	}

	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to set alert sender")
		return
	}
	if err := m.To(slf.cfg.AlertTo); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to set alert recipient")
		return
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextPlain, body)

	tlsPolicy := gomail.TLSOpportunistic
	if slf.cfg.UseTLS {
		tlsPolicy = gomail.TLSMandatory
	}
	opts := []gomail.Option{
		gomail.WithPort(slf.cfg.Port),
		gomail.WithTLSPolicy(tlsPolicy),
	}
	if slf.cfg.Password != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(slf.cfg.Username),
			gomail.WithPassword(slf.cfg.Password),
		)
	}

	client, err := gomail.NewClient(slf.cfg.Host, opts...)
	if err != nil {
		slf.logger.Error().Err(err).Msg("Failed to create SMTP client for alert")
		return
	}
	if err := client.DialAndSend(m); err != nil {
		slf.logger.Error().Err(err).Str("subject", subject).Msg("Failed to send alert email")
		return
	}
	slf.logger.Info().Str("subject", subject).Msg("Alert email sent")
}
