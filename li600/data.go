package li600

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// One measurement record worth of raw instrument channels, already resolved
// to numeric values.
type Observation struct {
	Tref  float64 // C (reference air temperature at the inlet)
	Tleaf float64 // C (leaf temperature)
	RhR   float64 // % (inlet relative humidity)
	RhS   float64 // % (outlet relative humidity)
	Flow  float64 // umol/s (inlet flow rate)
	FlowS float64 // umol/s (outlet flow rate; deemed unreliable by LI-COR, kept for pass-through)
	Patm  float64 // kPa (atmospheric pressure)
	Gsw   float64 // mol/m^2/s (conductance as reported by the instrument)

	EApparent    float64 // mmol/m^2/s (apparent transpiration, only some exports carry it)
	HasEApparent bool
}

// Data read from an LI-600 CSV export.
//
// The original cells are kept verbatim so the corrected file reproduces the
// input columns untouched; the parsed channel columns below feed the row
// corrector. Row i of every slice is row i of the input file.
type Li600Data struct {
	header []string   // original column names
	rows   [][]string // original cell values

	Tref  []float64 // C
	Tleaf []float64 // C
	RhR   []float64 // %
	RhS   []float64 // %
	Flow  []float64 // umol/s
	FlowS []float64 // umol/s (nil when the column is absent)
	Patm  []float64 // kPa
	Gsw   []float64 // mol/m^2/s

	EApparent []float64 // mmol/m^2/s (nil when the column is absent)

	// appended by Correct
	GswCorrected      []float64 // mol/m^2/s
	TInCorrected      []float64 // C
	TaChambCorrected  []float64 // C
	TOutCorrected     []float64 // C
	WChambCorrected   []float64 // mol/mol
	StomatalSidedness []float64
}

var requiredColumns = []string{"gsw", "Tref", "Tleaf", "rh_r", "rh_s", "flow", "P_atm"}

// """Read an LI-600 CSV export.
//
// The instrument writes a triple header (first row groups, second row names,
// third row units); plain single-header files are accepted too. The header
// row is located by the presence of the required column names and a
// following units row is skipped when its cells are not numeric.
//
// Returns:
//
//	*Li600Data, or an error when a required column is missing or a cell of a
//	required column does not parse as a number. Ingestion errors fail the
//	whole run; no partial table is returned.
//
// """
func ReadLi600CSV(r io.Reader) (*Li600Data, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	headerIdx := -1
	for i, rec := range records {
		if containsAll(rec, requiredColumns) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header row with the required columns %v", requiredColumns)
	}

	header := records[headerIdx]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	body := records[headerIdx+1:]
	// units row directly under the names row (e.g. "mol m-2 s-1" under gsw)
	if len(body) > 0 && len(body[0]) > col["gsw"] {
		if _, err := strconv.ParseFloat(body[0][col["gsw"]], 64); err != nil {
			body = body[1:]
		}
	}

	n := len(body)
	d := &Li600Data{
		header: header,
		rows:   body,
		Tref:   make([]float64, n),
		Tleaf:  make([]float64, n),
		RhR:    make([]float64, n),
		RhS:    make([]float64, n),
		Flow:   make([]float64, n),
		Patm:   make([]float64, n),
		Gsw:    make([]float64, n),
	}

	parse := func(dst []float64, name string) error {
		j := col[name]
		for i, rec := range body {
			if j >= len(rec) {
				return fmt.Errorf("column %s: row %d has only %d cells", name, i+1, len(rec))
			}
			v, err := strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return fmt.Errorf("column %s: row %d: %q is not numeric", name, i+1, rec[j])
			}
			dst[i] = v
		}
		return nil
	}

	if err := parse(d.Gsw, "gsw"); err != nil {
		return nil, err
	}
	if err := parse(d.Tref, "Tref"); err != nil {
		return nil, err
	}
	if err := parse(d.Tleaf, "Tleaf"); err != nil {
		return nil, err
	}
	if err := parse(d.RhR, "rh_r"); err != nil {
		return nil, err
	}
	if err := parse(d.RhS, "rh_s"); err != nil {
		return nil, err
	}
	if err := parse(d.Flow, "flow"); err != nil {
		return nil, err
	}
	if err := parse(d.Patm, "P_atm"); err != nil {
		return nil, err
	}

	// optional channels; a parse failure here is treated like absence of the
	// column rather than a fatal error
	if _, ok := col["E_apparent"]; ok {
		d.EApparent = make([]float64, n)
		if err := parse(d.EApparent, "E_apparent"); err != nil {
			d.EApparent = nil
		}
	}
	if _, ok := col["flow_s"]; ok {
		d.FlowS = make([]float64, n)
		if err := parse(d.FlowS, "flow_s"); err != nil {
			d.FlowS = nil
		}
	}

	return d, nil
}

// Number of data rows.
func (d *Li600Data) Len() int {
	return len(d.rows)
}

// Observation assembles the parsed channels of row i.
func (d *Li600Data) Observation(i int) Observation {
	obs := Observation{
		Tref:  d.Tref[i],
		Tleaf: d.Tleaf[i],
		RhR:   d.RhR[i],
		RhS:   d.RhS[i],
		Flow:  d.Flow[i],
		Patm:  d.Patm[i],
		Gsw:   d.Gsw[i],
	}
	if d.FlowS != nil {
		obs.FlowS = d.FlowS[i]
	}
	if d.EApparent != nil {
		obs.EApparent = d.EApparent[i]
		obs.HasEApparent = true
	}
	return obs
}

// CSV format: the input columns verbatim, then the corrected columns.
func (d *Li600Data) ToCSV(buf *bytes.Buffer) {
	for i, name := range d.header {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString(name)
	}
	buf.WriteString(",gsw_corrected")
	buf.WriteString(",T_in_corrected")
	buf.WriteString(",Ta_chamb_corrected")
	buf.WriteString(",T_out_corrected")
	buf.WriteString(",W_chamb_corrected")
	buf.WriteString(",stomatal_sidedness")
	buf.WriteString("\n")

	writeFloat := func(v float64) {
		buf.WriteString(",")
		buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	for i, rec := range d.rows {
		for j, cell := range rec {
			if j > 0 {
				buf.WriteString(",")
			}
			buf.WriteString(cell)
		}
		writeFloat(d.GswCorrected[i])
		writeFloat(d.TInCorrected[i])
		writeFloat(d.TaChambCorrected[i])
		writeFloat(d.TOutCorrected[i])
		writeFloat(d.WChambCorrected[i])
		writeFloat(d.StomatalSidedness[i])
		buf.WriteString("\n")
	}
}

func containsAll(rec []string, names []string) bool {
	for _, name := range names {
		found := false
		for _, cell := range rec {
			if cell == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
