package process

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CreateRequest asks for the instance of a new application. When PostingID
// and ApplicantID are both zero they are resolved through the
// ApplicationDirectory.
type CreateRequest struct {
	ApplicationID int64 `json:"applicationId,string" validate:"required,gt=0"`
	PostingID     int64 `json:"postingId,string,omitempty" validate:"omitempty,gt=0"`
	ApplicantID   int64 `json:"applicantId,string,omitempty" validate:"omitempty,gt=0"`
}

// Validate checks field constraints.
func (r *CreateRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	if (r.PostingID == 0) != (r.ApplicantID == 0) {
		return &ValidationError{Msg: "postingId and applicantId must be given together"}
	}
	return nil
}

// TransitionBody is the wire form of a transition request.
type TransitionBody struct {
	ToStage string `json:"toStage" validate:"required"`
	Reason  string `json:"reason,omitempty" validate:"max=500"`
	Note    string `json:"note,omitempty" validate:"max=2000"`
}

// Request validates b and converts it, attributing the move to actor.
func (b *TransitionBody) Request(actor *int64) (TransitionRequest, error) {
	if err := validate.Struct(b); err != nil {
		return TransitionRequest{}, validationError(err)
	}
	to, err := ParseStage(b.ToStage)
	if err != nil {
		return TransitionRequest{}, err
	}
	return TransitionRequest{To: to, ActorID: actor, Reason: b.Reason, Note: b.Note}, nil
}

// PostingSetRequest asks for the combined stats of several postings.
type PostingSetRequest struct {
	PostingIDs IDList `json:"postingIds" validate:"max=1000,dive,gt=0"`
}

// Validate checks field constraints.
func (r *PostingSetRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError turns validator output into a *ValidationError naming the
// first failing field.
func validationError(err error) error {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		fe := fields[0]
		return &ValidationError{Msg: fmt.Sprintf("validation error: %s - %s", fe.Field(), fe.Tag())}
	}
	return &ValidationError{Msg: "validation error: invalid request"}
}

// IDList is a list of ids carried as JSON strings, like every single id field.
// Bare numbers are still accepted on input.
type IDList []int64

func (l IDList) MarshalJSON() ([]byte, error) {
	out := make([]string, len(l))
	for i, id := range l {
		out[i] = strconv.FormatInt(id, 10)
	}
	return json.Marshal(out)
}

func (l *IDList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*l = nil
		return nil
	}
	ids := make(IDList, 0, len(raw))
	for i, item := range raw {
		text := string(item)
		if len(item) > 0 && item[0] == '"' {
			if err := json.Unmarshal(item, &text); err != nil {
				return err
			}
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return fmt.Errorf("id %d: %q is not an integer", i, text)
		}
		ids = append(ids, id)
	}
	*l = ids
	return nil
}
