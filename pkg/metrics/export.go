package metrics

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrUnknownFormat is returned by SaveToFile for formats outside
// {json, csv, stats}.
var ErrUnknownFormat = errors.New("metrics: unknown export format")

func fmtValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func metricsToJSON(samples []MetricData) string {
	var b strings.Builder
	b.WriteString("{\n  \"metrics\": [\n")
	for i, m := range samples {
		b.WriteString("    {\n")
		b.WriteString("      \"name\": \"" + m.Name + "\",\n")
		b.WriteString("      \"type\": \"" + m.Type.String() + "\",\n")
		b.WriteString("      \"value\": " + fmtValue(m.Value) + ",\n")
		b.WriteString("      \"unit\": \"" + m.Unit + "\",\n")
		b.WriteString("      \"category\": \"" + m.Category + "\"\n")
		b.WriteString("    }")
		if i < len(samples)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  ]\n}\n")
	return b.String()
}

func metricsToCSV(samples []MetricData) string {
	var b strings.Builder
	b.WriteString("name,type,value,unit,category\n")
	for _, m := range samples {
		b.WriteString(m.Name + "," + m.Type.String() + "," + fmtValue(m.Value) + "," + m.Unit + "," + m.Category + "\n")
	}
	return b.String()
}

// ExportJSON renders every stored sample (timestamp-ordered) as JSON with
// three fractional digits per value.
func (c *Collector) ExportJSON() string {
	return metricsToJSON(c.AllMetrics())
}

// ExportCSV renders every stored sample as CSV with a header row.
func (c *Collector) ExportCSV() string {
	return metricsToCSV(c.AllMetrics())
}

// ExportStatisticsJSON renders the per-name aggregates as JSON, name-sorted
// for stable output.
func (c *Collector) ExportStatisticsJSON() string {
	stats := c.AllStatistics()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("{\n  \"statistics\": [\n")
	for i, name := range names {
		s := stats[name]
		b.WriteString("    {\n")
		b.WriteString("      \"name\": \"" + name + "\",\n")
		b.WriteString("      \"count\": " + strconv.FormatUint(s.Count, 10) + ",\n")
		b.WriteString("      \"sum\": " + fmtValue(s.Sum) + ",\n")
		b.WriteString("      \"min\": " + fmtValue(s.Min) + ",\n")
		b.WriteString("      \"max\": " + fmtValue(s.Max) + ",\n")
		b.WriteString("      \"mean\": " + fmtValue(s.Mean) + "\n")
		b.WriteString("    }")
		if i < len(names)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  ]\n}\n")
	return b.String()
}

// SaveToFile writes one export to path. format selects the payload: "json"
// and "csv" write the sample export, "stats" writes the statistics export.
func (c *Collector) SaveToFile(path, format string) error {
	var payload string
	switch format {
	case "json":
		payload = c.ExportJSON()
	case "csv":
		payload = c.ExportCSV()
	case "stats":
		payload = c.ExportStatisticsJSON()
	default:
		return ErrUnknownFormat
	}
	return os.WriteFile(path, []byte(payload), 0o644)
}

// DumpStatistics writes a human-readable summary of every aggregate.
func (c *Collector) DumpStatistics(w io.Writer) {
	stats := c.AllStatistics()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\n===== Profiling Statistics =====\n")
	fmt.Fprintf(w, "Total metrics recorded: %d\n\n", c.TotalRecorded())
	for _, name := range names {
		s := stats[name]
		fmt.Fprintf(w, "%s:\n", name)
		fmt.Fprintf(w, "  Count: %d\n", s.Count)
		fmt.Fprintf(w, "  Min:   %s\n", fmtValue(s.Min))
		fmt.Fprintf(w, "  Max:   %s\n", fmtValue(s.Max))
		fmt.Fprintf(w, "  Mean:  %s\n", fmtValue(s.Mean))
		fmt.Fprintf(w, "  Sum:   %s\n\n", fmtValue(s.Sum))
	}
}
