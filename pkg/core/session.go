package core

import (
	"errors"
	"maps"
	"strings"
)

// Well-known session properties, named after the JavaMail keys hosts usually carry.
const (
	PropHost     = "mail.smtp.host"
	PropPort     = "mail.smtp.port"
	PropFrom     = "mail.smtp.from"
	PropAuth     = "mail.smtp.auth"
	PropStartTLS = "mail.smtp.starttls.enable"
)

// ErrNoMailHost is returned when a session is requested without a transport host.
var ErrNoMailHost = errors.New("mail configuration has no " + PropHost)

// Session is an authenticated transport session handed to the MailSender.
type Session struct {
	Properties map[string]string
	Username   string
	Password   string
}

// Property returns a trimmed session property.
func (s Session) Property(key string) string {
	return strings.TrimSpace(s.Properties[key])
}

// NewSession builds a session from cfg. The property bag is copied, never altered.
func NewSession(cfg MailConfiguration) (Session, error) {
	if cfg == nil {
		return Session{}, errors.New("mail configuration is nil")
	}
	props := maps.Clone(cfg.AllProperties())
	if props == nil {
		props = map[string]string{}
	}
	if strings.TrimSpace(props[PropHost]) == "" {
		return Session{}, ErrNoMailHost
	}
	return Session{
		Properties: props,
		Username:   cfg.Username(),
		Password:   cfg.Password(),
	}, nil
}

// StaticMailConfiguration is a MailConfiguration backed by fixed values.
type StaticMailConfiguration struct {
	Properties map[string]string
	User       string
	Secret     string
}

func (c StaticMailConfiguration) AllProperties() map[string]string { return c.Properties }
func (c StaticMailConfiguration) Username() string                 { return c.User }
func (c StaticMailConfiguration) Password() string                 { return c.Secret }
