/*
Package advisory consults an external legal-guidance oracle.

PURPOSE:
  Families and desk officers see an informal explanation of whether an
  offence is bailable. The oracle is non-authoritative, slow and sometimes
  down, so every call goes through Guard: enforced timeout, no retries and a
  fixed fallback on any failure. Nothing here touches the ledger.

KEY TYPES:
  Oracle:       Summarize / AssessEligibility against some backend
  Eligibility:  Structured opinion, validated by ParseEligibility
  Guard:        Timeout + fallback wrapper used by the HTTP layer
  GeminiClient: Oracle backed by the hosted generative model (genai SDK)

SEE ALSO:
  - api/handlers.go: Guidance and eligibility endpoints
*/
package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Oracle interface {
	// Summarize returns a plain-language explanation of the offence.
	Summarize(ctx context.Context, offence string) (string, error)
	// AssessEligibility returns a structured bail-eligibility opinion.
	AssessEligibility(ctx context.Context, offence string) (Eligibility, error)
}

type Eligibility struct {
	IsBailable     bool   `json:"isBailable"`
	Reason         string `json:"reason"`
	LegalReference string `json:"legalReference,omitempty"`
	SuggestedRange string `json:"suggestedRange,omitempty"`
}

// Fallbacks used whenever the oracle cannot answer.
const FallbackSummary = "Legal information currently unavailable. Please consult the duty officer."

// FallbackEligibility treats the offence as bailable pending manual review so
// registration is never blocked.
var FallbackEligibility = Eligibility{
	IsBailable:     true,
	Reason:         "Manual verification required",
	LegalReference: "Section 123 CPC",
}

// ErrMalformedResponse means the oracle answered but not in the agreed shape.
var ErrMalformedResponse = errors.New("malformed oracle response")

// ParseEligibility validates an eligibility opinion. isBailable (bool) and
// reason (string) are required; legalReference and suggestedRange (also
// accepted as suggestedBailRange) are optional strings.
func ParseEligibility(data []byte) (Eligibility, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Eligibility{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var e Eligibility
	if err := requireField(raw, "isBailable", &e.IsBailable); err != nil {
		return Eligibility{}, err
	}
	if err := requireField(raw, "reason", &e.Reason); err != nil {
		return Eligibility{}, err
	}
	if err := optionalString(raw, "legalReference", &e.LegalReference); err != nil {
		return Eligibility{}, err
	}
	if err := optionalString(raw, "suggestedRange", &e.SuggestedRange); err != nil {
		return Eligibility{}, err
	}
	if e.SuggestedRange == "" {
		if err := optionalString(raw, "suggestedBailRange", &e.SuggestedRange); err != nil {
			return Eligibility{}, err
		}
	}
	return e, nil
}

func requireField(raw map[string]json.RawMessage, name string, dst any) error {
	v, ok := raw[name]
	if !ok || string(v) == "null" {
		return fmt.Errorf("%w: missing %s", ErrMalformedResponse, name)
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: %s has wrong type", ErrMalformedResponse, name)
	}
	return nil
}

func optionalString(raw map[string]json.RawMessage, name string, dst *string) error {
	v, ok := raw[name]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: %s has wrong type", ErrMalformedResponse, name)
	}
	return nil
}
