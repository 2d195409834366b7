// Package export renders the metadata and processed-data stores as
// downloadable CSV, JSON and HTML documents.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"html/template"
	"strconv"
	"strings"

	"stg-database/internal/experiment"
)

// Source is the slice of the record store the exporters read.
type Source interface {
	List() []experiment.Experiment
	ConditionEntries() []experiment.ConditionEntry
}

var metadataColumns = []string{
	"Key", "User", "Exp ID", "Exp Date", "Animal Date", "Experimenter", "Lab",
	"Temp (C)", "Tank Temp (C)", "Species", "Intra Sol.", "Saline",
	"Conditions", "Files", "Nerves", "Neurons", "Flags", "Notes",
}

var conditionColumns = []string{
	"cond_ID", "name",
	"temp", "pyl_hz", "pyl_cycvar", "pyl_niqr",
	"gas_hz", "gas_cycvar", "gas_niqr",
	"pd_off", "pd_spikes",
	"lp_on", "lp_off", "lp_spikes",
	"py_on", "py_off", "py_spikes",
	"vd_on", "vd_off", "vd_spikes",
	"lg_off", "lg_spikes",
	"dg_on", "dg_off", "dg_spikes",
	"gm_on", "gm_off", "gm_spikes",
	"mg_on", "mg_off", "mg_spikes",
	"blank1", "blank2", "blank3",
}

func metadataRow(e experiment.Experiment, includeNotes bool) []string {
	row := []string{
		e.Key(), e.Owner, e.ExpID, e.ExpDate, e.AnimalDate, e.Experimenter, e.Lab,
		formatNumber(e.Temp), formatNumber(e.TankTemp),
		e.Species, e.IntraSol, e.Saline,
		strconv.Itoa(e.ConditionCount), strconv.Itoa(e.FileCount),
		e.Nerves, e.Neurons, e.Flags,
	}
	if includeNotes {
		row = append(row, e.Notes)
	}
	return row
}

func conditionRow(entry experiment.ConditionEntry) []string {
	row := make([]string, 0, len(conditionColumns))
	row = append(row, entry.Key, entry.Condition.Name)
	for _, v := range entry.Condition.Values() {
		row = append(row, formatNumber(v))
	}
	return row
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// MetadataCSV renders every metadata record, one row per experiment,
// ordered by experiment date. The notes column can be left out for the
// compact variant.
func MetadataCSV(src Source, includeNotes bool) ([]byte, error) {
	header := metadataColumns
	if !includeNotes {
		header = metadataColumns[:len(metadataColumns)-1]
	}
	rows := [][]string{header}
	for _, e := range src.List() {
		rows = append(rows, metadataRow(e, includeNotes))
	}
	return writeCSV(rows)
}

// ProcDataCSV renders every condition record keyed by condition id.
func ProcDataCSV(src Source) ([]byte, error) {
	rows := [][]string{conditionColumns}
	for _, entry := range src.ConditionEntries() {
		rows = append(rows, conditionRow(entry))
	}
	return writeCSV(rows)
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MetadataJSON renders the metadata records as an array of named-field
// objects rather than the fixed-position store format.
func MetadataJSON(src Source) ([]byte, error) {
	return json.MarshalIndent(experiment.ToResponses(src.List()), "", "  ")
}

type conditionObject struct {
	CondID string `json:"cond_id"`
	experiment.ConditionResponse
}

// ProcDataJSON renders the condition records as named-field objects with
// their condition id and dense index attached.
func ProcDataJSON(src Source) ([]byte, error) {
	entries := src.ConditionEntries()
	out := make([]conditionObject, 0, len(entries))
	for _, entry := range entries {
		out = append(out, conditionObject{
			CondID:            entry.Key,
			ConditionResponse: experiment.ToConditionResponse(indexFromKey(entry.Key), entry.Condition),
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// indexFromKey recovers the dense index from a condition key of the form
// <experiment key>_<index>.
func indexFromKey(key string) int {
	pos := strings.LastIndex(key, "_")
	if pos < 0 {
		return 0
	}
	n, err := strconv.Atoi(key[pos+1:])
	if err != nil {
		return 0
	}
	return n
}

var tableTemplate = template.Must(template.New("table").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Title}}</title>
<style>
table { border-collapse: collapse; }
th, td { border: 1px solid #999; padding: 4px 8px; text-align: left; }
th { background: #eee; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr>{{range .Header}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
</body>
</html>
`))

type tableData struct {
	Title  string
	Header []string
	Rows   [][]string
}

func renderTable(title string, header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	err := tableTemplate.Execute(&buf, tableData{Title: title, Header: header, Rows: rows})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MetadataHTML renders the metadata store as a browsable table.
func MetadataHTML(src Source) ([]byte, error) {
	var rows [][]string
	for _, e := range src.List() {
		rows = append(rows, metadataRow(e, true))
	}
	return renderTable("Experiment Metadata", metadataColumns, rows)
}

// ProcDataHTML renders the processed-data store as a browsable table.
func ProcDataHTML(src Source) ([]byte, error) {
	var rows [][]string
	for _, entry := range src.ConditionEntries() {
		rows = append(rows, conditionRow(entry))
	}
	return renderTable("Processed Data", conditionColumns, rows)
}
