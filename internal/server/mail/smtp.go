package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	"github.com/avezhov/passport/internal/server/models"
	"github.com/dajohi/goemail"
)

// Client sends email through an SMTP server from a preset from-address.
//
// Client implements the Notifier interface. Email is considered disabled when
// any of the required SMTP credentials are missing; a disabled client
// resolves every send as a success without doing anything, so a dev
// deployment works without a mail server.
type Client struct {
	smtp        *goemail.SMTP
	mailName    string
	mailAddress string
	disabled    bool
}

// NewClient returns an SMTP-backed Notifier. host is "host:port".
func NewClient(host, user, password, fromAddress, fromName string, skipVerify bool) (*Client, error) {
	if host == "" || user == "" || password == "" {
		return &Client{disabled: true}, nil
	}

	h := fmt.Sprintf("smtps://%v:%v@%v", url.QueryEscape(user), url.QueryEscape(password), host)
	u, err := url.Parse(h)
	if err != nil {
		return nil, err
	}

	a, err := mail.ParseAddress(fromAddress)
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: skipVerify,
	}

	smtp, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, err
	}

	return &Client{
		smtp:        smtp,
		mailName:    fromName,
		mailAddress: a.Address,
	}, nil
}

// IsEnabled reports whether a real SMTP server is configured.
func (c *Client) IsEnabled() bool {
	return !c.disabled
}

func (c *Client) SendWelcome(ctx context.Context, user *models.User, profileURL string) error {
	subject, body := welcomeBody(user, profileURL)
	return c.sendTo(user.Email, subject, body)
}

func (c *Client) SendPasswordReset(ctx context.Context, user *models.User, resetURL string, validFor time.Duration) error {
	subject, body := passwordResetBody(user, resetURL, validFor)
	return c.sendTo(user.Email, subject, body)
}

func (c *Client) sendTo(recipient, subject, body string) error {
	if c.disabled {
		return nil
	}

	msg := goemail.NewMessage(c.mailAddress, subject, body)
	msg.SetName(c.mailName)
	msg.AddTo(recipient)

	return c.smtp.Send(msg)
}
