package notify

import (
	"fmt"
	"strings"
)

// ActivationPath is the route prefix that serves activation links.
const ActivationPath = "/api/users/activate/"

const activationSubject = "Activate your account"

// LinkBuilder renders absolute activation links for a public site address.
type LinkBuilder struct {
	Protocol string // "http" or "https"
	Domain   string // host[:port]
}

// ActivationLink returns e.g. "https://example.com/api/users/activate/<token>".
func (b LinkBuilder) ActivationLink(token string) string {
	proto := strings.TrimSuffix(b.Protocol, "://")
	if proto == "" {
		proto = "http"
	}
	return fmt.Sprintf("%s://%s%s%s", proto, strings.TrimSuffix(b.Domain, "/"), ActivationPath, token)
}

// ActivationMessage is the email sent after registration.
func ActivationMessage(to, link string) Message {
	return Message{
		To:      to,
		Subject: activationSubject,
		Body:    "Click the link to activate your account: " + link,
	}
}
