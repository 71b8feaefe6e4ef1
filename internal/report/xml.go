package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

type xmlProfile struct {
	XMLName   xml.Name      `xml:"profile"`
	Script    string        `xml:"script,attr"`
	Generated string        `xml:"generated,attr"`
	Elapsed   int64         `xml:"elapsed_ns,attr"`
	Generator string        `xml:"generator,attr,omitempty"`
	Functions []xmlFunction `xml:"function"`
	Calls     []xmlCall     `xml:"call,omitempty"`
}

type xmlFunction struct {
	Type             string `xml:"type,attr"`
	Name             string `xml:"name,attr"`
	Address          string `xml:"address,attr"`
	Calls            int64  `xml:"calls,attr"`
	SelfTime         int64  `xml:"self_time,attr"`
	SelfTimePercent  string `xml:"self_time_percent,attr"`
	TotalTime        int64  `xml:"total_time,attr"`
	TotalTimePercent string `xml:"total_time_percent,attr"`
	AverageTime      int64  `xml:"average_time,attr"`
}

type xmlCall struct {
	Caller    string `xml:"caller,attr"`
	Callee    string `xml:"callee,attr"`
	Calls     int64  `xml:"calls,attr"`
	TotalTime int64  `xml:"total_time,attr"`
}

// XMLWriter renders a machine-readable profile. Times are in nanoseconds.
type XMLWriter struct{}

func (XMLWriter) Write(w io.Writer, r Report) error {
	doc := xmlProfile{
		Script:    r.Script,
		Generated: r.Generated.UTC().Format(time.RFC3339),
		Elapsed:   int64(r.Snapshot.Elapsed),
		Generator: r.Generator,
	}
	for _, row := range Rows(r.Snapshot) {
		doc.Functions = append(doc.Functions, xmlFunction{
			Type:             row.Function.Kind.String(),
			Name:             row.Function.Name,
			Address:          fmt.Sprintf("0x%X", uint64(row.Function.Address)),
			Calls:            row.Calls,
			SelfTime:         int64(row.Self),
			SelfTimePercent:  fmt.Sprintf("%.2f", row.SelfPercent),
			TotalTime:        int64(row.Total),
			TotalTimePercent: fmt.Sprintf("%.2f", row.TotalPercent),
			AverageTime:      int64(row.Average),
		})
	}
	for _, e := range r.Snapshot.Edges() {
		doc.Calls = append(doc.Calls, xmlCall{
			Caller:    callerName(e),
			Callee:    e.Callee.Name,
			Calls:     e.NumCalls,
			TotalTime: int64(e.TotalTime),
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode xml report: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
