package apierr

import (
	"encoding/json"
	"errors"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// Fault is the input of Classify: exactly one of TransportFault,
// GenericFault or UnknownFault.
type Fault interface {
	isFault()
}

// TransportFault is a non-2xx response (or token endpoint failure) raised by
// the API client layer.
type TransportFault struct {
	StatusCode int
	Payload    Payload
	Message    string
}

// GenericFault is any other error with a message.
type GenericFault struct {
	Message string
}

// UnknownFault is a failure with nothing to report.
type UnknownFault struct{}

func (TransportFault) isFault() {}
func (GenericFault) isFault()   {}
func (UnknownFault) isFault()   {}

// Payload is the structured error body returned by Google endpoints. The
// Calendar API nests it under an "error" object; the OAuth token endpoint
// uses a bare "error" string code.
type Payload struct {
	// Code is the string form of "error" (e.g. "invalid_grant").
	Code    string
	Message string
	Details []Detail
	// Raw is the undecoded body, kept for diagnostics.
	Raw []byte
}

// Detail is one entry of the "errors" array of an API error body.
type Detail struct {
	Message  string `json:"message"`
	Reason   string `json:"reason"`
	Location string `json:"location"`
	Domain   string `json:"domain"`
}

// ParsePayload decodes an error body in either of the shapes Google uses.
// Undecodable bodies yield a Payload carrying only Raw.
func ParsePayload(body []byte) Payload {
	p := Payload{Raw: body}
	if len(body) == 0 {
		return p
	}

	var envelope struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return p
	}

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		p.Code = code
		p.Message = envelope.ErrorDescription
		return p
	}

	var nested struct {
		Message string   `json:"message"`
		Status  string   `json:"status"`
		Errors  []Detail `json:"errors"`
	}
	if err := json.Unmarshal(envelope.Error, &nested); err == nil {
		p.Message = nested.Message
		p.Details = nested.Errors
	}
	return p
}

// FaultOf inspects err and returns the variant Classify should act on.
// Errors from the Calendar client (*googleapi.Error) and from the OAuth token
// endpoint (*oauth2.RetrieveError) are transport faults, wherever they sit in
// the wrap chain.
func FaultOf(err error) Fault {
	if err == nil {
		return UnknownFault{}
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		p := ParsePayload([]byte(gerr.Body))
		if p.Message == "" {
			p.Message = gerr.Message
		}
		if len(p.Details) == 0 {
			for _, item := range gerr.Errors {
				p.Details = append(p.Details, Detail{Message: item.Message, Reason: item.Reason})
			}
		}
		return TransportFault{StatusCode: gerr.Code, Payload: p, Message: gerr.Error()}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		p := ParsePayload(rerr.Body)
		if p.Code == "" {
			p.Code = rerr.ErrorCode
		}
		if p.Message == "" {
			p.Message = rerr.ErrorDescription
		}
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return TransportFault{StatusCode: status, Payload: p, Message: rerr.Error()}
	}

	if msg := err.Error(); msg != "" {
		return GenericFault{Message: msg}
	}
	return UnknownFault{}
}
