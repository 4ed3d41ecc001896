package utils

import (
	"context"
	"fmt"
	"html"

	"github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"transfer_requests_back/models"
	"transfer_requests_back/pkg/config"
)

// Mailer delivers status notifications through Mailjet when API keys are
// configured, through SMTP when a host is configured, and only logs otherwise.
type Mailer struct {
	cfg config.Mail
}

func NewMailer(cfg config.Mail) *Mailer {
	return &Mailer{cfg: cfg}
}

const statusTemplate = `<body style="margin:0;padding:0;background:#f6f6f6;">
  <table width="100%%" cellpadding="0" cellspacing="0" border="0" style="background:#f6f6f6;">
    <tr>
      <td align="center" style="padding:32px 0;">
        <table width="100%%" cellpadding="0" cellspacing="0" border="0" style="max-width:600px;background:#f3f2f0;border-radius:28px;">
          <tr>
            <td style="padding:32px;text-align:left;font-family:Arial,sans-serif;">
              <h1 style="margin:0 0 12px 0;font-size:28px;color:#111;">Transfer request %s</h1>
              <p style="margin:0 0 24px 0;font-size:18px;color:#222;">Hello %s, your transfer request changed status.</p>
              <table cellpadding="0" cellspacing="0" border="0" style="width:100%%;margin-bottom:24px;">
                <tr><td style="font-size:16px;color:#555;padding:6px 0;">Status:</td><td style="font-size:16px;color:#111;font-weight:bold;">%s</td></tr>
                <tr><td style="font-size:16px;color:#555;padding:6px 0;">Amount:</td><td style="font-size:16px;color:#111;font-weight:bold;">%s</td></tr>
                <tr><td style="font-size:16px;color:#555;padding:6px 0;">Notes:</td><td style="font-size:16px;color:#111;">%s</td></tr>
              </table>
              <div style="text-align:center;">
                <a href="%s/transfer-requests/%s" style="display:inline-block;padding:18px 0;width:100%%;max-width:320px;background:#111;color:#fff;font-size:20px;text-decoration:none;border-radius:20px;">Open request</a>
              </div>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>`

func (m *Mailer) NotifyStatusChange(ctx context.Context, req models.TransferRequest, recipient models.User) error {
	notes := ""
	if req.Notes != nil {
		notes = *req.Notes
	}
	subject := fmt.Sprintf("Transfer request %s is now %s", req.PublicID, req.Status)
	body := fmt.Sprintf(statusTemplate,
		html.EscapeString(req.PublicID),
		html.EscapeString(recipient.Name),
		html.EscapeString(string(req.Status)),
		html.EscapeString(req.Amount.String()),
		notes, // stored sanitized
		m.cfg.AppURL,
		html.EscapeString(req.PublicID),
	)
	return m.Send(ctx, recipient.Email, recipient.Name, subject, body)
}

func (m *Mailer) Send(ctx context.Context, toEmail, toName, subject, body string) error {
	switch {
	case m.cfg.MailjetKey != "" && m.cfg.MailjetSecret != "":
		return m.sendMailjet(toEmail, toName, subject, body)
	case m.cfg.SMTPHost != "":
		return m.sendSMTP(toEmail, subject, body)
	default:
		logrus.WithFields(logrus.Fields{"to": toEmail, "subject": subject}).Info("mail delivery not configured, skipping")
		return nil
	}
}

func (m *Mailer) sendMailjet(toEmail, toName, subject, body string) error {
	mj := mailjet.NewMailjetClient(m.cfg.MailjetKey, m.cfg.MailjetSecret)
	messages := &mailjet.MessagesV31{Info: []mailjet.InfoMessagesV31{
		{
			From: &mailjet.RecipientV31{
				Email: m.cfg.From,
				Name:  m.cfg.FromName,
			},
			To: &mailjet.RecipientsV31{
				{
					Email: toEmail,
					Name:  toName,
				},
			},
			Subject:  subject,
			HTMLPart: body,
		},
	}}
	res, err := mj.SendMailV31(messages)
	if err != nil {
		return errors.Wrap(err, "mailjet send")
	}
	logrus.WithFields(logrus.Fields{"to": toEmail, "results": len(res.ResultsV31)}).Info("mail sent via mailjet")
	return nil
}

func (m *Mailer) sendSMTP(toEmail, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	d := gomail.NewDialer(m.cfg.SMTPHost, m.cfg.SMTPPort, m.cfg.SMTPUser, m.cfg.SMTPPassword)
	if err := d.DialAndSend(msg); err != nil {
		return errors.Wrap(err, "smtp send")
	}
	logrus.WithField("to", toEmail).Info("mail sent via smtp")
	return nil
}
