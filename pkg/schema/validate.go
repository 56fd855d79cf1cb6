package schema

import (
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	addressRe = regexp.MustCompile(`^0x[a-f0-9]{40}$`)
	txHashRe  = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	digitsRe  = regexp.MustCompile(`^[0-9]+$`)
)

// StatusUpdate is the payload of an UpdateEventStatus request.
type StatusUpdate struct {
	Actor  string    `json:"actor" validate:"required,strict=evmaddr"`
	ID     string    `json:"id" validate:"required,strict=uuid"`
	Status Status    `json:"status" validate:"required,oneof=started approved submitted attested completed failed"`
	Tx     *TxUpdate `json:"tx,omitempty"`
}

// ValidationError lists every problem found in a payload, one short path per entry
// (e.g. "token.amount" or "extra:root.foo").
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid payload: " + strings.Join(e.Problems, ", ")
}

// Validator checks inbound payloads. In strict mode identifiers, addresses,
// hashes, amounts, URLs and timestamps must also match their canonical formats;
// otherwise only shape and enum membership are enforced.
type Validator struct {
	strict bool
	v      *validator.Validate
}

// NewValidator builds a Validator.
func NewValidator(strict bool) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	val := &Validator{strict: strict, v: v}
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("strict", val.checkFormat)
	return val
}

// Strict reports whether format checks are enabled.
func (val *Validator) Strict() bool { return val.strict }

func (val *Validator) checkFormat(fl validator.FieldLevel) bool {
	if !val.strict {
		return true
	}
	s := fl.Field().String()
	switch fl.Param() {
	case "uuid":
		return isUUID(s)
	case "evmaddr":
		return addressRe.MatchString(s)
	case "txhash":
		return txHashRe.MatchString(s)
	case "digits":
		return digitsRe.MatchString(s)
	case "url":
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	case "datetime":
		_, err := time.Parse(time.RFC3339Nano, s)
		return err == nil
	}
	return false
}

// isUUID accepts the canonical 36-character form with an RFC 4122 variant and version 1-5.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	if id.Variant() != uuid.RFC4122 {
		return false
	}
	v := id.Version()
	return v >= 1 && v <= 5
}

// Event validates a decoded event.
func (val *Validator) Event(ev *EventRecord) error {
	return val.check(ev)
}

// StatusUpdate validates a decoded status update.
func (val *Validator) StatusUpdate(u *StatusUpdate) error {
	return val.check(u)
}

// DecodeEvent checks raw for unknown keys, decodes it and validates the result.
func (val *Validator) DecodeEvent(raw []byte) (EventRecord, error) {
	var ev EventRecord
	if err := val.decode(raw, eventKeys, &ev); err != nil {
		return ev, err
	}
	return ev, val.Event(&ev)
}

// DecodeStatusUpdate checks raw for unknown keys, decodes it and validates the result.
func (val *Validator) DecodeStatusUpdate(raw []byte) (StatusUpdate, error) {
	var u StatusUpdate
	if err := val.decode(raw, statusKeys, &u); err != nil {
		return u, err
	}
	return u, val.StatusUpdate(&u)
}

func (val *Validator) decode(raw []byte, allowed keySet, target any) error {
	problems, err := unknownKeys(raw, allowed)
	if err != nil {
		return &ValidationError{Problems: []string{"not_object"}}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &ValidationError{Problems: []string{typeErr.Field}}
		}
		return &ValidationError{Problems: []string{"not_object"}}
	}
	return nil
}

func (val *Validator) check(target any) error {
	err := val.v.Struct(target)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	seen := make(map[string]bool, len(verrs))
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		p := fieldPath(fe.Namespace())
		if !seen[p] {
			seen[p] = true
			problems = append(problems, p)
		}
	}
	return &ValidationError{Problems: problems}
}

// fieldPath turns "EventRecord.signals.items[0]" into "signals.items".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if i := strings.IndexByte(ns, '['); i >= 0 {
		ns = ns[:i]
	}
	return ns
}
