package auth

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// DefaultMinPasswordLength is used when the policy is built with 0.
const DefaultMinPasswordLength = 8

// minAttrLen is the shortest attribute fragment compared against passwords.
const minAttrLen = 4

var (
	allDigits = regexp.MustCompile(`^[0-9]+$`)
	attrSplit = regexp.MustCompile(`[^a-z0-9]+`)
)

// commonPasswords is a short deny list of the most reused passwords.
var commonPasswords = []string{
	"password", "password1", "password123", "passw0rd", "12345678",
	"123456789", "1234567890", "qwerty", "qwertyuiop", "qwerty123",
	"abc12345", "iloveyou", "letmein", "welcome", "welcome1",
	"admin123", "administrator", "football", "baseball", "monkey123",
	"sunshine", "princess", "dragon", "trustno1", "superman",
	"starwars", "whatever", "freedom", "michael", "shadow",
	"master", "login123", "changeme", "secret123", "11111111",
	"00000000", "87654321", "asdfghjk", "zaq12wsx", "1q2w3e4r",
}

// PasswordPolicy checks plaintext passwords against a fixed rule set and
// reports every rule that fails, not just the first.
type PasswordPolicy struct {
	minLength int
	common    []any
}

// NewPasswordPolicy builds the policy. minLength of 0 selects the default.
func NewPasswordPolicy(minLength int) *PasswordPolicy {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	common := make([]any, len(commonPasswords))
	for i, p := range commonPasswords {
		common[i] = p
	}
	return &PasswordPolicy{minLength: minLength, common: common}
}

// MinLength returns the configured minimum password length.
func (p *PasswordPolicy) MinLength() int {
	return p.minLength
}

// Check returns the list of violations for password. attrs maps a label
// ("email", "first name") to a user attribute the password must not
// resemble. An empty result means the password is acceptable.
func (p *PasswordPolicy) Check(password string, attrs map[string]string) []string {
	lowered := strings.ToLower(password)

	checks := []struct {
		value any
		rules []validation.Rule
	}{
		{password, []validation.Rule{
			validation.Length(p.minLength, 0).Error(fmt.Sprintf(
				"This password is too short. It must contain at least %d characters.", p.minLength)),
		}},
		{password, []validation.Rule{validation.By(maxBytes)}},
		{lowered, []validation.Rule{validation.NotIn(p.common...).Error("This password is too common.")}},
		{password, []validation.Rule{validation.By(notNumeric)}},
		{lowered, []validation.Rule{validation.By(notSimilarTo(attrs))}},
	}

	var violations []string
	for _, c := range checks {
		if err := validation.Validate(c.value, c.rules...); err != nil {
			violations = append(violations, err.Error())
		}
	}
	return violations
}

func maxBytes(value any) error {
	s, _ := value.(string)
	if len(s) > MaxPasswordBytes {
		return fmt.Errorf("This password is too long. It must contain at most %d bytes.", MaxPasswordBytes)
	}
	return nil
}

func notNumeric(value any) error {
	s, _ := value.(string)
	if allDigits.MatchString(s) {
		return errors.New("This password is entirely numeric.")
	}
	return nil
}

// notSimilarTo rejects a password that contains, or is contained in, any
// attribute fragment of at least four characters. Emails are split on
// punctuation so "ada.lovelace@example.com" yields "lovelace" among others.
func notSimilarTo(attrs map[string]string) validation.RuleFunc {
	return func(value any) error {
		pw, _ := value.(string)
		if pw == "" {
			return nil
		}
		for _, label := range slices.Sorted(maps.Keys(attrs)) {
			for _, part := range attrSplit.Split(strings.ToLower(attrs[label]), -1) {
				if len(part) < minAttrLen {
					continue
				}
				if strings.Contains(pw, part) || (len(pw) >= minAttrLen && strings.Contains(part, pw)) {
					return fmt.Errorf("The password is too similar to the %s.", label)
				}
			}
		}
		return nil
	}
}
