package route

import (
	"fmt"
	"strings"

	"github.com/willowglen/reportpdf/internal/domain"
)

// Route binds one (report kind, mode) pair to its trigger and status
// topics. The base segment follows the centralized topic scheme: draft
// triggers use the plain reportform topic, final triggers the signature
// variant, and status topics append "_status" to the base.
type Route struct {
	Kind domain.ReportKind
	Mode domain.Mode
	Base string

	prefix string
}

func (r Route) TriggerTopic(reportID string) string {
	return fmt.Sprintf("%s/%s/%s", r.prefix, r.Base, reportID)
}

// TriggerPattern is the subscription filter with a single-level wildcard
// in the report-id position.
func (r Route) TriggerPattern() string {
	return fmt.Sprintf("%s/%s/+", r.prefix, r.Base)
}

func (r Route) StatusTopic(reportID string) string {
	return fmt.Sprintf("%s/%s_status/%s", r.prefix, r.Base, reportID)
}

// Table is the immutable routing registration built once at startup.
// Adding a report kind is one entry in the bases map plus a renderer
// registration in main.
type Table struct {
	prefix string
	routes []Route
	byBase map[string]Route
}

var bases = map[domain.ReportKind]map[domain.Mode]string{
	domain.ReportKindCM: {
		domain.ModeDraft: "cm_reportform_pdf",
		domain.ModeFinal: "cm_reportform_signature_pdf",
	},
	domain.ReportKindServerPM: {
		domain.ModeDraft: "server_pm_reportform_pdf",
		domain.ModeFinal: "server_pm_reportform_signature_pdf",
	},
	domain.ReportKindRTUPM: {
		domain.ModeDraft: "rtu_pm_reportform_pdf",
		domain.ModeFinal: "rtu_pm_reportform_signature_pdf",
	},
}

func NewTable(prefix string) *Table {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "controltower"
	}

	table := &Table{
		prefix: prefix,
		byBase: make(map[string]Route),
	}
	for _, kind := range []domain.ReportKind{domain.ReportKindCM, domain.ReportKindServerPM, domain.ReportKindRTUPM} {
		for _, mode := range []domain.Mode{domain.ModeDraft, domain.ModeFinal} {
			route := Route{
				Kind:   kind,
				Mode:   mode,
				Base:   bases[kind][mode],
				prefix: prefix,
			}
			table.routes = append(table.routes, route)
			table.byBase[route.Base] = route
		}
	}
	return table
}

func (t *Table) All() []Route {
	routes := make([]Route, len(t.routes))
	copy(routes, t.routes)
	return routes
}

func (t *Table) Lookup(kind domain.ReportKind, mode domain.Mode) (Route, bool) {
	base, ok := bases[kind][mode]
	if !ok {
		return Route{}, false
	}
	route, ok := t.byBase[base]
	return route, ok
}

// Match reverse-routes a concrete trigger topic to its route and report
// id. Topics that do not fit "{prefix}/{base}/{reportID}" or name an
// unregistered base do not match.
func (t *Table) Match(topic string) (Route, string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return Route{}, "", false
	}

	reportID := parts[len(parts)-1]
	base := parts[len(parts)-2]
	prefix := strings.Join(parts[:len(parts)-2], "/")
	if prefix != t.prefix || reportID == "" {
		return Route{}, "", false
	}

	route, ok := t.byBase[base]
	if !ok {
		return Route{}, "", false
	}
	return route, reportID, true
}
