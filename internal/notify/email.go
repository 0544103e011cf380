package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"geopark-pipeline/internal/common"
	"geopark-pipeline/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/mail.v2"
)

// placeholder credentials shipped in example configs
var placeholders = map[string]bool{
	"your_real_email@gmail.com": true,
	"your_app_password":         true,
}

// Sender delivers prepared messages; *mail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

var bodyTemplate = template.Must(template.New("body").Parse(`<html>
<body>
<p>Hello,</p>
<p>Attached is the {{.Title}} daily market report for {{.Date}}.</p>
<p>The workbook contains the latest {{.Title}} prices, benchmark prices and market capitalization.</p>
<p>Regards,<br>{{.Title}} Data Pipeline</p>
</body>
</html>`))

// EmailNotifier mails the report as an attachment over SMTP with STARTTLS.
type EmailNotifier struct {
	from       string
	recipients []string
	title      string
	sender     Sender
	enabled    bool
	now        func() time.Time
	logger     logrus.FieldLogger
}

type Option func(*EmailNotifier)

// WithSender replaces the SMTP dialer.
func WithSender(s Sender) Option {
	return func(n *EmailNotifier) { n.sender = s }
}

func WithClock(now func() time.Time) Option {
	return func(n *EmailNotifier) { n.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(n *EmailNotifier) { n.logger = l }
}

func NewEmailNotifier(cfg config.EmailConfig, title string, opts ...Option) *EmailNotifier {
	n := &EmailNotifier{
		from:       cfg.Sender,
		recipients: cfg.Recipients,
		title:      title,
		enabled:    credentialsSet(cfg) && len(cfg.Recipients) > 0,
		now:        time.Now,
		logger:     logrus.StandardLogger(),
	}
	if n.enabled {
		d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Sender, cfg.Password)
		d.StartTLSPolicy = mail.MandatoryStartTLS
		d.Timeout = 30 * time.Second
		n.sender = d
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func credentialsSet(cfg config.EmailConfig) bool {
	sender, password := strings.TrimSpace(cfg.Sender), strings.TrimSpace(cfg.Password)
	return sender != "" && password != "" && !placeholders[sender] && !placeholders[password]
}

// Enabled reports whether credentials and recipients are configured.
func (n *EmailNotifier) Enabled() bool { return n.enabled }

// Subject is the mail subject for the given day.
func (n *EmailNotifier) Subject(day time.Time) string {
	return fmt.Sprintf("%s Daily Report - %s", n.title, day.Format("2006-01-02"))
}

// Send mails the report. It returns false without error when email is disabled.
func (n *EmailNotifier) Send(reportPath string) (bool, error) {
	log := n.logger.WithField("report", reportPath)
	if !n.enabled {
		log.Info("email notifications disabled, skipping send")
		return false, nil
	}
	if _, err := os.Stat(reportPath); err != nil {
		return false, common.New(common.ErrNotify, "report file", err)
	}

	day := n.now()
	var body bytes.Buffer
	if err := bodyTemplate.Execute(&body, map[string]string{"Title": n.title, "Date": day.Format("2006-01-02")}); err != nil {
		return false, common.New(common.ErrNotify, "render body", err)
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.recipients...)
	m.SetHeader("Subject", n.Subject(day))
	m.SetBody("text/html", body.String())
	m.Attach(reportPath, mail.Rename(filepath.Base(reportPath)))

	if err := n.sender.DialAndSend(m); err != nil {
		return false, common.New(common.ErrNotify, "send email", err)
	}
	log.WithField("recipients", len(n.recipients)).Info("email sent")
	return true, nil
}
