package fetch

import (
	"fmt"
	"strings"

	"github.com/willowglen/reportpdf/internal/domain"
)

// normalize flattens the kind-specific API response into the renderer
// envelope. Section and column order is fixed here; renderers emit the
// envelope verbatim, which keeps repeated renders byte-identical.
func normalize(kind domain.ReportKind, reportID string, raw any) (domain.ReportPayload, error) {
	data, ok := raw.(map[string]any)
	if !ok {
		return domain.ReportPayload{}, fmt.Errorf("response is not a JSON object")
	}

	switch kind {
	case domain.ReportKindCM:
		return normalizeCM(reportID, data), nil
	case domain.ReportKindServerPM:
		return normalizeServerPM(reportID, data), nil
	case domain.ReportKindRTUPM:
		return normalizeRTUPM(reportID, data), nil
	default:
		return domain.ReportPayload{}, fmt.Errorf("unsupported report kind %q", kind)
	}
}

func normalizeCM(reportID string, data map[string]any) domain.ReportPayload {
	form := getMap(data, "cmReportForm")

	payload := domain.ReportPayload{
		Kind:     domain.ReportKindCM,
		ReportID: reportID,
		JobNo:    jobNo(data, reportID),
		Title:    "Corrective Maintenance Report",
		Header:   headerFields(data, form),
	}

	payload.Sections = append(payload.Sections, domain.Section{
		Title: "Issue Summary",
		Fields: []domain.Field{
			{Label: "Report Title", Value: getString(form, "reportTitle")},
			{Label: "Issue Reported", Value: getString(form, "issueReportedDescription")},
			{Label: "Issue Found", Value: getString(form, "issueFoundDescription")},
			{Label: "Action Taken", Value: getString(form, "actionTakenDescription")},
			{Label: "Further Action", Value: getString(form, "furtherActionTakenName")},
			{Label: "Form Status", Value: getString(form, "formStatusName")},
		},
	})

	payload.Sections = append(payload.Sections, domain.Section{
		Title: "Response Timeline",
		Fields: []domain.Field{
			{Label: "Failure Detected", Value: getString(form, "failureDetectedDate")},
			{Label: "Response", Value: getString(form, "responseDate")},
			{Label: "Arrival", Value: getString(form, "arrivalDate")},
			{Label: "Completion", Value: getString(form, "completionDate")},
		},
	})

	materials := tableFromList(getList(data, "materialUsed"), "Material Used", []column{
		{"Description", []string{"materialDescription", "description"}},
		{"Old Serial No", []string{"oldSerialNo"}},
		{"New Serial No", []string{"newSerialNo"}},
		{"Remark", []string{"remark"}},
	})
	signoff := domain.Section{
		Title: "Sign Off",
		Fields: []domain.Field{
			{Label: "Attended By", Value: getString(form, "attendedBy")},
			{Label: "Approved By", Value: getString(form, "approvedBy")},
		},
		Remarks: getString(form, "remark"),
	}
	if len(materials.Rows) > 0 {
		payload.Sections = append(payload.Sections, domain.Section{Title: "Materials", Tables: []domain.Table{materials}})
	}
	payload.Sections = append(payload.Sections, signoff)
	return payload
}

func normalizeServerPM(reportID string, data map[string]any) domain.ReportPayload {
	form := getMap(data, "pmReportFormServer")

	payload := domain.ReportPayload{
		Kind:     domain.ReportKindServerPM,
		ReportID: reportID,
		JobNo:    jobNo(data, reportID),
		Title:    "Server Preventive Maintenance Report",
		Header:   headerFields(data, form),
	}

	resultColumns := []column{
		{"Item", []string{"itemName", "serverName", "checkItem", "name"}},
		{"Result", []string{"resultStatusName", "result", "status"}},
		{"Remarks", []string{"remarks", "remark"}},
	}
	checkTables := []struct {
		key   string
		title string
	}{
		{"pmServerHealths", "Server Health"},
		{"pmServerHardDriveHealths", "Hard Drive Health"},
		{"pmServerDiskUsageHealths", "Disk Usage"},
		{"pmServerCPUAndMemoryUsages", "CPU and Memory Usage"},
		{"pmServerNetworkHealths", "Network Health"},
		{"pmServerMonthlyDatabaseCreations", "Monthly Database Creation"},
		{"pmServerDatabaseBackups", "Database Backup"},
		{"pmServerTimeSyncs", "Time Synchronization"},
		{"pmServerHotFixes", "Hot Fixes"},
		{"pmServerFailOvers", "Fail Over"},
		{"pmServerASAFirewalls", "ASA Firewall"},
		{"pmServerSoftwarePatchSummaries", "Software Patch Summary"},
	}

	checks := domain.Section{Title: "Maintenance Checks"}
	for _, check := range checkTables {
		table := tableFromList(getList(data, check.key), check.title, resultColumns)
		if len(table.Rows) > 0 {
			checks.Tables = append(checks.Tables, table)
		}
	}
	payload.Sections = append(payload.Sections, checks)

	payload.Sections = append(payload.Sections, domain.Section{
		Title: "Sign Off",
		Fields: []domain.Field{
			{Label: "Attended By", Value: getString(form, "attendedBy")},
			{Label: "Witnessed By", Value: getString(form, "witnessedBy")},
			{Label: "Start Date", Value: getString(form, "startDate")},
			{Label: "Completion Date", Value: getString(form, "completionDate")},
		},
		Remarks: getString(form, "remarks"),
	})
	return payload
}

func normalizeRTUPM(reportID string, data map[string]any) domain.ReportPayload {
	form := getMap(data, "pmReportFormRTU")

	payload := domain.ReportPayload{
		Kind:     domain.ReportKindRTUPM,
		ReportID: reportID,
		JobNo:    jobNo(data, reportID),
		Title:    "RTU Preventive Maintenance Report",
		Header:   headerFields(data, form),
	}

	resultColumns := []column{
		{"Check", []string{"checkItem", "itemName", "name"}},
		{"Result", []string{"resultStatusName", "result", "status"}},
		{"Remarks", []string{"remarks", "remark"}},
	}
	equipment := domain.Section{Title: "Equipment Checks"}
	for _, check := range []struct {
		keys  []string
		title string
	}{
		{[]string{"pmMainRtuCabinet"}, "Main RTU Cabinet"},
		{[]string{"pmChamberMagneticContact"}, "Chamber Magnetic Contact"},
		{[]string{"pmRTUCabinetCooling", "pmrtuCabinetCooling"}, "Cabinet Cooling"},
		{[]string{"pmDVREquipment", "pmdvrEquipment"}, "DVR Equipment"},
	} {
		table := tableFromList(getList(data, check.keys...), check.title, resultColumns)
		if len(table.Rows) > 0 {
			equipment.Tables = append(equipment.Tables, table)
		}
	}
	payload.Sections = append(payload.Sections, equipment)

	payload.Sections = append(payload.Sections, domain.Section{
		Title: "Sign Off",
		Fields: []domain.Field{
			{Label: "Attended By", Value: getString(form, "attendedBy")},
			{Label: "Approved By", Value: getString(form, "approvedBy")},
			{Label: "Start Date", Value: getString(form, "startDate")},
			{Label: "Completion Date", Value: getString(form, "completionDate")},
		},
		Remarks: getString(form, "remarks"),
	})
	return payload
}

func headerFields(data, form map[string]any) []domain.Field {
	reportForm := getMap(data, "reportForm")
	return []domain.Field{
		{Label: "Job No", Value: jobNo(data, "")},
		{Label: "Customer", Value: firstString(form, reportForm, "customer")},
		{Label: "Project No", Value: firstString(form, reportForm, "projectNo")},
		{Label: "System", Value: getString(data, "systemNameWarehouseName")},
		{Label: "Station", Value: getString(data, "stationNameWarehouseName")},
		{Label: "Report Type", Value: getString(data, "reportFormTypeName")},
	}
}

func jobNo(data map[string]any, fallback string) string {
	if v := getString(data, "jobNo"); v != "" {
		return v
	}
	if v := getString(getMap(data, "reportForm"), "jobNo"); v != "" {
		return v
	}
	return fallback
}

func firstString(primary, secondary map[string]any, keys ...string) string {
	if v := getString(primary, keys...); v != "" {
		return v
	}
	return getString(secondary, keys...)
}

type column struct {
	label string
	keys  []string
}

func tableFromList(items []any, title string, columns []column) domain.Table {
	table := domain.Table{Title: title}
	for _, col := range columns {
		table.Columns = append(table.Columns, col.label)
	}
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := make([]string, 0, len(columns))
		for _, col := range columns {
			row = append(row, getString(entry, col.keys...))
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// getValue reads a key tolerating the casing drift between API versions
// (camelCase vs PascalCase).
func getValue(data map[string]any, keys ...string) any {
	if data == nil {
		return nil
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		for _, variant := range []string{key, lowerFirst(key), upperFirst(key)} {
			if v, ok := data[variant]; ok {
				return v
			}
		}
	}
	return nil
}

func getString(data map[string]any, keys ...string) string {
	switch v := getValue(data, keys...).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getMap(data map[string]any, keys ...string) map[string]any {
	if v, ok := getValue(data, keys...).(map[string]any); ok {
		return v
	}
	return nil
}

func getList(data map[string]any, keys ...string) []any {
	if v, ok := getValue(data, keys...).([]any); ok {
		return v
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
