package calendar

import (
	"time"

	"google.golang.org/api/calendar/v3"
)

// The types below are the structured (JSON) results of the calendar tools.
// They are projections of the Calendar API resources with stable, documented
// field names.

// DateTime is an event boundary: DateTime for timed events, Date for all-day
// events.
type DateTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Person is an event creator or organizer.
type Person struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Self        bool   `json:"self,omitempty"`
}

// Attendee is one event guest and their response.
type Attendee struct {
	Email            string `json:"email"`
	DisplayName      string `json:"displayName,omitempty"`
	ResponseStatus   string `json:"responseStatus,omitempty"`
	Optional         bool   `json:"optional,omitempty"`
	Organizer        bool   `json:"organizer,omitempty"`
	Self             bool   `json:"self,omitempty"`
	Resource         bool   `json:"resource,omitempty"`
	Comment          string `json:"comment,omitempty"`
	AdditionalGuests int64  `json:"additionalGuests,omitempty"`
}

// Reminder is a single reminder override.
type Reminder struct {
	Method  string `json:"method"`
	Minutes int64  `json:"minutes"`
}

// Reminders is an event's reminder configuration.
type Reminders struct {
	UseDefault bool       `json:"useDefault"`
	Overrides  []Reminder `json:"overrides,omitempty"`
}

// Source is the origin an event was created from.
type Source struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// Attachment is a file attached to an event.
type Attachment struct {
	FileURL  string `json:"fileUrl,omitempty"`
	Title    string `json:"title,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	IconLink string `json:"iconLink,omitempty"`
	FileID   string `json:"fileId,omitempty"`
}

// EntryPoint is one way of joining a conference.
type EntryPoint struct {
	EntryPointType string `json:"entryPointType,omitempty"`
	URI            string `json:"uri,omitempty"`
	Label          string `json:"label,omitempty"`
	Pin            string `json:"pin,omitempty"`
	AccessCode     string `json:"accessCode,omitempty"`
	MeetingCode    string `json:"meetingCode,omitempty"`
	Passcode       string `json:"passcode,omitempty"`
	Password       string `json:"password,omitempty"`
}

// Conference is the video/phone conference attached to an event.
type Conference struct {
	ConferenceID string       `json:"conferenceId,omitempty"`
	Solution     string       `json:"solution,omitempty"`
	EntryPoints  []EntryPoint `json:"entryPoints,omitempty"`
}

// ExtendedProperties are the private and shared key/value pairs of an event.
type ExtendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
	Shared  map[string]string `json:"shared,omitempty"`
}

// Event is the structured form of a calendar event.
type Event struct {
	ID                      string              `json:"id"`
	CalendarID              string              `json:"calendarId,omitempty"`
	Summary                 string              `json:"summary,omitempty"`
	Description             string              `json:"description,omitempty"`
	Location                string              `json:"location,omitempty"`
	Start                   DateTime            `json:"start"`
	End                     DateTime            `json:"end"`
	Status                  string              `json:"status,omitempty"`
	HTMLLink                string              `json:"htmlLink,omitempty"`
	Created                 string              `json:"created,omitempty"`
	Updated                 string              `json:"updated,omitempty"`
	ColorID                 string              `json:"colorId,omitempty"`
	Creator                 *Person             `json:"creator,omitempty"`
	Organizer               *Person             `json:"organizer,omitempty"`
	Attendees               []Attendee          `json:"attendees,omitempty"`
	Recurrence              []string            `json:"recurrence,omitempty"`
	RecurringEventID        string              `json:"recurringEventId,omitempty"`
	OriginalStartTime       *DateTime           `json:"originalStartTime,omitempty"`
	Transparency            string              `json:"transparency,omitempty"`
	Visibility              string              `json:"visibility,omitempty"`
	ICalUID                 string              `json:"iCalUID,omitempty"`
	Sequence                int64               `json:"sequence,omitempty"`
	Reminders               *Reminders          `json:"reminders,omitempty"`
	Source                  *Source             `json:"source,omitempty"`
	Attachments             []Attachment        `json:"attachments,omitempty"`
	EventType               string              `json:"eventType,omitempty"`
	Conference              *Conference         `json:"conferenceData,omitempty"`
	ExtendedProperties      *ExtendedProperties `json:"extendedProperties,omitempty"`
	HangoutLink             string              `json:"hangoutLink,omitempty"`
	AnyoneCanAddSelf        bool                `json:"anyoneCanAddSelf,omitempty"`
	GuestsCanInviteOthers   *bool               `json:"guestsCanInviteOthers,omitempty"`
	GuestsCanModify         bool                `json:"guestsCanModify,omitempty"`
	GuestsCanSeeOtherGuests *bool               `json:"guestsCanSeeOtherGuests,omitempty"`
	PrivateCopy             bool                `json:"privateCopy,omitempty"`
	Locked                  bool                `json:"locked,omitempty"`
}

func convertDateTime(dt *calendar.EventDateTime) DateTime {
	if dt == nil {
		return DateTime{}
	}
	return DateTime{DateTime: dt.DateTime, Date: dt.Date, TimeZone: dt.TimeZone}
}

func convertReminders(overrides []*calendar.EventReminder) []Reminder {
	if len(overrides) == 0 {
		return nil
	}
	out := make([]Reminder, 0, len(overrides))
	for _, r := range overrides {
		method := r.Method
		if method == "" {
			method = "popup"
		}
		out = append(out, Reminder{Method: method, Minutes: r.Minutes})
	}
	return out
}

// convertEvent projects an API event. calendarID is recorded when known.
func convertEvent(e *calendar.Event, calendarID string) Event {
	out := Event{
		ID:                      e.Id,
		CalendarID:              calendarID,
		Summary:                 e.Summary,
		Description:             e.Description,
		Location:                e.Location,
		Start:                   convertDateTime(e.Start),
		End:                     convertDateTime(e.End),
		Status:                  e.Status,
		HTMLLink:                e.HtmlLink,
		Created:                 e.Created,
		Updated:                 e.Updated,
		ColorID:                 e.ColorId,
		Recurrence:              e.Recurrence,
		RecurringEventID:        e.RecurringEventId,
		Transparency:            e.Transparency,
		Visibility:              e.Visibility,
		ICalUID:                 e.ICalUID,
		Sequence:                e.Sequence,
		EventType:               e.EventType,
		HangoutLink:             e.HangoutLink,
		AnyoneCanAddSelf:        e.AnyoneCanAddSelf,
		GuestsCanInviteOthers:   e.GuestsCanInviteOthers,
		GuestsCanModify:         e.GuestsCanModify,
		GuestsCanSeeOtherGuests: e.GuestsCanSeeOtherGuests,
		PrivateCopy:             e.PrivateCopy,
		Locked:                  e.Locked,
	}
	if e.Creator != nil {
		out.Creator = &Person{Email: e.Creator.Email, DisplayName: e.Creator.DisplayName, Self: e.Creator.Self}
	}
	if e.Organizer != nil {
		out.Organizer = &Person{Email: e.Organizer.Email, DisplayName: e.Organizer.DisplayName, Self: e.Organizer.Self}
	}
	for _, a := range e.Attendees {
		out.Attendees = append(out.Attendees, Attendee{
			Email:            a.Email,
			DisplayName:      a.DisplayName,
			ResponseStatus:   a.ResponseStatus,
			Optional:         a.Optional,
			Organizer:        a.Organizer,
			Self:             a.Self,
			Resource:         a.Resource,
			Comment:          a.Comment,
			AdditionalGuests: a.AdditionalGuests,
		})
	}
	if e.OriginalStartTime != nil {
		ost := convertDateTime(e.OriginalStartTime)
		out.OriginalStartTime = &ost
	}
	if e.Reminders != nil {
		out.Reminders = &Reminders{
			UseDefault: e.Reminders.UseDefault,
			Overrides:  convertReminders(e.Reminders.Overrides),
		}
	}
	if e.Source != nil {
		out.Source = &Source{URL: e.Source.Url, Title: e.Source.Title}
	}
	for _, att := range e.Attachments {
		out.Attachments = append(out.Attachments, Attachment{
			FileURL:  att.FileUrl,
			Title:    att.Title,
			MimeType: att.MimeType,
			IconLink: att.IconLink,
			FileID:   att.FileId,
		})
	}
	if cd := e.ConferenceData; cd != nil {
		conf := &Conference{ConferenceID: cd.ConferenceId}
		if cd.ConferenceSolution != nil {
			conf.Solution = cd.ConferenceSolution.Name
		}
		for _, ep := range cd.EntryPoints {
			conf.EntryPoints = append(conf.EntryPoints, EntryPoint{
				EntryPointType: ep.EntryPointType,
				URI:            ep.Uri,
				Label:          ep.Label,
				Pin:            ep.Pin,
				AccessCode:     ep.AccessCode,
				MeetingCode:    ep.MeetingCode,
				Passcode:       ep.Passcode,
				Password:       ep.Password,
			})
		}
		out.Conference = conf
	}
	if xp := e.ExtendedProperties; xp != nil && (len(xp.Private) > 0 || len(xp.Shared) > 0) {
		out.ExtendedProperties = &ExtendedProperties{Private: xp.Private, Shared: xp.Shared}
	}
	return out
}

func convertEvents(items []*calendar.Event, calendarID string) []Event {
	out := make([]Event, 0, len(items))
	for _, e := range items {
		out = append(out, convertEvent(e, calendarID))
	}
	return out
}

// startInstant returns the instant an event starts: timed events by their
// timestamp, all-day events at midnight UTC of their date.
func startInstant(e Event) (time.Time, bool) {
	if e.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, e.Start.DateTime); err == nil {
			return t, true
		}
	}
	if e.Start.Date != "" {
		if t, err := time.Parse(dateLayout, e.Start.Date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// compareStart orders events by start; events without a usable start sort
// last.
func compareStart(a, b Event) int {
	ta, oka := startInstant(a)
	tb, okb := startInstant(b)
	switch {
	case oka && okb:
		return ta.Compare(tb)
	case oka:
		return -1
	case okb:
		return 1
	}
	return 0
}

// CalendarInfo is the structured form of a calendar list entry.
type CalendarInfo struct {
	ID               string     `json:"id"`
	Account          string     `json:"account,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	SummaryOverride  string     `json:"summaryOverride,omitempty"`
	Description      string     `json:"description,omitempty"`
	Location         string     `json:"location,omitempty"`
	TimeZone         string     `json:"timeZone,omitempty"`
	ColorID          string     `json:"colorId,omitempty"`
	BackgroundColor  string     `json:"backgroundColor,omitempty"`
	ForegroundColor  string     `json:"foregroundColor,omitempty"`
	Hidden           bool       `json:"hidden,omitempty"`
	Selected         bool       `json:"selected,omitempty"`
	AccessRole       string     `json:"accessRole,omitempty"`
	Primary          bool       `json:"primary,omitempty"`
	Deleted          bool       `json:"deleted,omitempty"`
	DefaultReminders []Reminder `json:"defaultReminders,omitempty"`
}

func convertCalendar(c *calendar.CalendarListEntry, account string) CalendarInfo {
	return CalendarInfo{
		ID:               c.Id,
		Account:          account,
		Summary:          c.Summary,
		SummaryOverride:  c.SummaryOverride,
		Description:      c.Description,
		Location:         c.Location,
		TimeZone:         c.TimeZone,
		ColorID:          c.ColorId,
		BackgroundColor:  c.BackgroundColor,
		ForegroundColor:  c.ForegroundColor,
		Hidden:           c.Hidden,
		Selected:         c.Selected,
		AccessRole:       c.AccessRole,
		Primary:          c.Primary,
		Deleted:          c.Deleted,
		DefaultReminders: convertReminders(c.DefaultReminders),
	}
}
