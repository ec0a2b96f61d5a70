package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = New()
}

// New builds a validator with the safe_url rule registered. Handlers share
// one instance via the package-level helpers.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("safe_url", validateSafeURL)
	return v
}

// ValidateURL checks a single URL against the safe_url rule.
func ValidateURL(u string) error {
	if err := validate.Var(u, "required,safe_url"); err != nil {
		return fmt.Errorf("invalid URL %q: %w", u, err)
	}
	return nil
}

// ValidateStruct validates a request DTO using its validate tags.
func ValidateStruct(s any) error {
	return validate.Struct(s)
}

func validateSafeURL(fl validator.FieldLevel) bool {
	urlStr := fl.Field().String()

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.Host == "" {
		return false
	}

	host := u.Hostname()

	forbiddenHosts := []string{
		"localhost",
		"127.0.0.1",
		"::1",
		"0.0.0.0",
		"169.254.169.254",
	}

	for _, forbidden := range forbiddenHosts {
		if strings.EqualFold(host, forbidden) {
			return false
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() {
			return false
		}
	}

	return true
}
