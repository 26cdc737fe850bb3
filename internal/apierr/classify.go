package apierr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// userRateLimitMarker identifies a 429 caused by per-user quota, which for
// installed-app credentials usually means no quota project was attached.
const userRateLimitMarker = "User Rate Limit Exceeded"

const reauthMessage = "Authentication token is invalid or expired. " +
	"Please re-run the authentication process (e.g., `calendar-mcp auth add <account>`)."

// Classify translates err into a caller-facing error. It never fails and is
// idempotent: an error that is already classified is returned unchanged, so
// a failure is translated exactly once however many layers it crosses.
func Classify(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	e := ClassifyFault(FaultOf(err))
	e.Cause = err
	return e
}

// ClassifyFault is the decision tree behind Classify. For transport faults
// the rules are evaluated in order and the first match wins.
func ClassifyFault(f Fault) *Error {
	switch f := f.(type) {
	case TransportFault:
		return classifyTransport(f)
	case GenericFault:
		if f.Message == "" {
			return &Error{Category: Internal, Message: "An unknown error occurred"}
		}
		return &Error{Category: Internal, Message: "Internal error: " + f.Message}
	default:
		return &Error{Category: Internal, Message: "An unknown error occurred"}
	}
}

func classifyTransport(f TransportFault) *Error {
	p := f.Payload

	switch {
	case p.Code == "invalid_grant":
		return &Error{Category: Auth, Message: reauthMessage}

	case f.StatusCode == http.StatusBadRequest:
		details := joinDetails(p.Details)
		var msg string
		switch {
		case details != "":
			msg = fmt.Sprintf("Bad Request: %s. Details: %s", orDefault(p.Message, "Invalid request parameters"), details)
		case p.Message != "":
			msg = "Bad Request: " + p.Message
		default:
			msg = "Bad Request: Invalid request parameters. Raw error: " + rawDump(p)
		}
		return &Error{Category: InvalidRequest, Message: msg}

	case f.StatusCode == http.StatusForbidden:
		return &Error{Category: InvalidRequest, Message: "Access denied: " + orDefault(p.Message, "Insufficient permissions")}

	case f.StatusCode == http.StatusNotFound:
		return &Error{Category: InvalidRequest, Message: "Resource not found: " + orDefault(p.Message, "The requested calendar or event does not exist")}

	case f.StatusCode == http.StatusTooManyRequests:
		if strings.Contains(p.Message, userRateLimitMarker) {
			return &Error{Category: RateLimit, Message: quotaProjectMessage(p.Message)}
		}
		return &Error{Category: Internal, Message: strings.TrimSpace("Rate limit exceeded. Please try again later. " + p.Message)}

	case f.StatusCode >= http.StatusInternalServerError:
		return &Error{Category: Internal, Message: "Google API server error: " + orDefault(p.Message, f.Message)}
	}

	msg := "Google API error: " + orDefault(p.Message, f.Message)
	if details := joinDetails(p.Details); details != "" {
		msg += ". Details: " + details
	}
	return &Error{Category: InvalidRequest, Message: msg}
}

func quotaProjectMessage(original string) string {
	return `Rate limit exceeded. This may be due to missing quota project configuration.

Ensure your OAuth credentials include project_id information:
1. Check that your credentials.json file contains project_id
2. Re-download credentials from Google Cloud Console if needed
3. The file should have format: {"installed": {"project_id": "your-project-id", ...}}

Original error: ` + original
}

// joinDetails renders each detail as "message-or-reason (location)".
func joinDetails(details []Detail) string {
	parts := make([]string, 0, len(details))
	for _, d := range details {
		s := orDefault(d.Message, d.Reason)
		if d.Location != "" {
			s += " (" + d.Location + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}

func rawDump(p Payload) string {
	if len(p.Raw) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, p.Raw, "", "  "); err == nil {
			return buf.String()
		}
		return string(p.Raw)
	}
	return fmt.Sprintf("%+v", p)
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
