package calendar

import (
	"context"
	"fmt"
	"strings"

	"github.com/thegrumpylion/calendar-mcp/internal/apierr"
	"google.golang.org/api/calendar/v3"
)

// PrimaryCalendar is the alias the Calendar API accepts for an account's own
// calendar.
const PrimaryCalendar = "primary"

// Entry is the part of a calendar list entry that name resolution looks at.
// Only ID is stable; Summary and SummaryOverride are display labels and may
// collide across entries.
type Entry struct {
	ID              string
	Summary         string
	SummaryOverride string
}

// label renders e for the list of available calendars in a not-found error.
func (e Entry) label() string {
	if e.SummaryOverride != "" && e.SummaryOverride != e.Summary {
		return fmt.Sprintf("%q / %q (%s)", e.SummaryOverride, e.Summary, e.ID)
	}
	return fmt.Sprintf("%q (%s)", e.Summary, e.ID)
}

// CalendarLister fetches a full snapshot of the account's calendar list.
type CalendarLister interface {
	ListCalendars(ctx context.Context) ([]Entry, error)
}

// serviceLister lists calendars through the Calendar API, following pages.
type serviceLister struct {
	svc *calendar.Service
}

func (l serviceLister) ListCalendars(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := l.svc.CalendarList.List().
		Fields("nextPageToken", "items(id,summary,summaryOverride)").
		Pages(ctx, func(page *calendar.CalendarList) error {
			for _, item := range page.Items {
				entries = append(entries, Entry{
					ID:              item.Id,
					Summary:         item.Summary,
					SummaryOverride: item.SummaryOverride,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}
	return entries, nil
}

// IsCanonical reports whether raw is already a calendar ID: the primary alias
// or anything containing "@". Canonical values are never looked up.
func IsCanonical(raw string) bool {
	return raw == PrimaryCalendar || strings.Contains(raw, "@")
}

// Resolver maps human-supplied calendar names to calendar IDs.
//
// Names are matched in this order, first match wins:
//
//  1. summaryOverride, exact
//  2. summaryOverride, case-insensitive
//  3. summary, exact
//  4. summary, case-insensitive
//
// When several entries share a label, the first one in list order wins.
//
// Each call works on its own freshly fetched snapshot; nothing is cached.
type Resolver struct {
	lister CalendarLister
}

// NewResolver returns a Resolver backed by l.
func NewResolver(l CalendarLister) *Resolver {
	return &Resolver{lister: l}
}

// Resolve returns the calendar ID for raw. Canonical IDs are returned as-is
// without fetching the calendar list.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apierr.Errorf(apierr.InvalidInput, "At least one valid calendar identifier is required")
	}
	if IsCanonical(raw) {
		return raw, nil
	}

	entries, err := r.fetch(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := newNameIndex(entries).lookup(raw); ok {
		return id, nil
	}
	return "", apierr.Errorf(apierr.NotFound,
		"Calendar %q not found. Available calendars: %s. Use 'list_calendars' tool to see all available calendars.",
		raw, available(entries))
}

// ResolveMany resolves every non-blank entry of raws, preserving order.
// Entries are trimmed and blank ones dropped, so canonical ids come back
// without surrounding whitespace. The calendar list is fetched at most once, and
// not at all when every entry is canonical. If any name cannot be resolved
// the whole call fails, naming each unresolved input.
func (r *Resolver) ResolveMany(ctx context.Context, raws []string) ([]string, error) {
	inputs := make([]string, 0, len(raws))
	lookup := false
	for _, raw := range raws {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		inputs = append(inputs, raw)
		if !IsCanonical(raw) {
			lookup = true
		}
	}
	if len(inputs) == 0 {
		return nil, apierr.Errorf(apierr.InvalidInput, "At least one valid calendar identifier is required")
	}
	if !lookup {
		return inputs, nil
	}

	entries, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}
	idx := newNameIndex(entries)

	ids := make([]string, 0, len(inputs))
	var missing []string
	for _, raw := range inputs {
		if IsCanonical(raw) {
			ids = append(ids, raw)
			continue
		}
		if id, ok := idx.lookup(raw); ok {
			ids = append(ids, id)
			continue
		}
		missing = append(missing, fmt.Sprintf("%q", raw))
	}
	if len(missing) > 0 {
		return nil, apierr.Errorf(apierr.NotFound,
			"Calendar(s) not found: %s. Available calendars: %s. Use 'list_calendars' tool to see all available calendars.",
			strings.Join(missing, ", "), available(entries))
	}
	return ids, nil
}

func (r *Resolver) fetch(ctx context.Context) ([]Entry, error) {
	entries, err := r.lister.ListCalendars(ctx)
	if err != nil {
		return nil, apierr.Classify(err)
	}
	return entries, nil
}

// nameIndex holds one lookup table per matching tier, in tier order.
type nameIndex [4]map[string]string

func newNameIndex(entries []Entry) nameIndex {
	var idx nameIndex
	for i := range idx {
		idx[i] = make(map[string]string, len(entries))
	}
	put := func(m map[string]string, key, id string) {
		if _, ok := m[key]; !ok {
			m[key] = id
		}
	}
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		if e.SummaryOverride != "" {
			put(idx[0], e.SummaryOverride, e.ID)
			put(idx[1], strings.ToLower(e.SummaryOverride), e.ID)
		}
		if e.Summary != "" {
			put(idx[2], e.Summary, e.ID)
			put(idx[3], strings.ToLower(e.Summary), e.ID)
		}
	}
	return idx
}

func (idx nameIndex) lookup(name string) (string, bool) {
	folded := strings.ToLower(name)
	for tier, m := range idx {
		key := name
		if tier%2 == 1 {
			key = folded
		}
		if id, ok := m[key]; ok {
			return id, true
		}
	}
	return "", false
}

func available(entries []Entry) string {
	if len(entries) == 0 {
		return "none"
	}
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.label()
	}
	return strings.Join(labels, ", ")
}
