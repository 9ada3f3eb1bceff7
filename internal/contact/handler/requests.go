package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"linkid/internal/contact/models"
	dErrors "linkid/pkg/domain-errors"
)

// IdentifyRequest is the body of POST /identify.
type IdentifyRequest struct {
	Email       *string      `json:"email"`
	PhoneNumber *PhoneNumber `json:"phoneNumber"`
}

// PhoneNumber accepts either a JSON string or a JSON number. Clients send
// both, so numbers are kept in their literal decimal form.
type PhoneNumber string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PhoneNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("phoneNumber: empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("phoneNumber: %w", err)
		}
		*p = PhoneNumber(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("phoneNumber must be a string or a number")
		}
		*p = PhoneNumber(n.String())
		return nil
	}
}

// Validate trims both fields, treats blanks as absent and requires at least
// one of them.
func (r *IdentifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	r.Email = trimmed(r.Email)
	if r.PhoneNumber != nil {
		s := strings.TrimSpace(string(*r.PhoneNumber))
		if s == "" {
			r.PhoneNumber = nil
		} else {
			v := PhoneNumber(s)
			r.PhoneNumber = &v
		}
	}
	if r.Email == nil && r.PhoneNumber == nil {
		return dErrors.New(dErrors.CodeBadRequest, "email or phoneNumber is required")
	}
	return nil
}

// ToModel converts the validated body into the service request.
func (r *IdentifyRequest) ToModel() models.IdentifyRequest {
	out := models.IdentifyRequest{Email: r.Email}
	if r.PhoneNumber != nil {
		s := string(*r.PhoneNumber)
		out.PhoneNumber = &s
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
