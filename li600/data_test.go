package li600

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tripleHeaderCSV = `Sys,Sys,GasEx,GasEx,GasEx,GasEx,GasEx,GasEx,GasEx
obs,Time,gsw,Tref,Tleaf,rh_r,rh_s,flow,P_atm
#,hh:mm:ss,mol m-2 s-1,C,C,%,%,umol s-1,kPa
1,09:15:02,0.3,25,25,50,45,400,95
2,09:15:12,0.3,25,25,50,45,400,95
3,09:15:22,0.3,25,25,50,45,400,95
4,09:15:32,0.3,25,25,50,45,400,95
5,09:15:42,0.3,25,25,50,45,400,95
`

const plainHeaderCSV = `gsw,Tref,Tleaf,rh_r,rh_s,flow,P_atm,E_apparent,flow_s
0.25,23,22.5,50,52,744,101.3,4.2,741
0.31,23.1,22.6,50,53,744,101.2,5.0,740
`

func Test_ReadLi600CSV_TripleHeader(t *testing.T) {
	d, err := ReadLi600CSV(strings.NewReader(tripleHeaderCSV))
	assert.NoError(t, err)
	assert.Equal(t, 5, d.Len())

	assert.Equal(t, 0.3, d.Gsw[0])
	assert.Equal(t, 25.0, d.Tref[4])
	assert.Equal(t, 50.0, d.RhR[2])
	assert.Equal(t, 45.0, d.RhS[2])
	assert.Equal(t, 400.0, d.Flow[0])
	assert.Equal(t, 95.0, d.Patm[0])

	obs := d.Observation(0)
	assert.False(t, obs.HasEApparent)
	assert.Equal(t, 0.3, obs.Gsw)
}

func Test_ReadLi600CSV_PlainHeader(t *testing.T) {
	d, err := ReadLi600CSV(strings.NewReader(plainHeaderCSV))
	assert.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	obs := d.Observation(1)
	assert.True(t, obs.HasEApparent)
	assert.Equal(t, 5.0, obs.EApparent)
	assert.Equal(t, 740.0, obs.FlowS)
	assert.Equal(t, 22.6, obs.Tleaf)
}

func Test_ReadLi600CSV_MissingColumn(t *testing.T) {
	csv := `gsw,Tref,rh_r,rh_s,flow,P_atm
0.3,25,50,45,400,95
`
	_, err := ReadLi600CSV(strings.NewReader(csv))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "required columns")
}

func Test_ReadLi600CSV_NonNumericCell(t *testing.T) {
	csv := `gsw,Tref,Tleaf,rh_r,rh_s,flow,P_atm
0.3,25,25,50,45,400,95
0.3,over,25,50,45,400,95
`
	_, err := ReadLi600CSV(strings.NewReader(csv))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Tref")
	assert.Contains(t, err.Error(), "over")
}

func Test_ReadLi600CSV_Empty(t *testing.T) {
	_, err := ReadLi600CSV(strings.NewReader(""))
	assert.Error(t, err)
}

func Test_ToCSV_AppendsCorrectedColumns(t *testing.T) {
	d, err := ReadLi600CSV(strings.NewReader(tripleHeaderCSV))
	assert.NoError(t, err)

	_, err = Correct(d, DefaultParams(), false)
	assert.NoError(t, err)

	var buf bytes.Buffer
	d.ToCSV(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 1+5)

	header := strings.Split(lines[0], ",")
	assert.Equal(t, "gsw_corrected", header[len(header)-6])
	assert.Equal(t, "stomatal_sidedness", header[len(header)-1])

	for _, line := range lines[1:] {
		assert.Len(t, strings.Split(line, ","), len(header))
	}

	// original cells are written back untouched, in order
	assert.True(t, strings.HasPrefix(lines[1], "1,09:15:02,0.3,25,25,50,45,400,95,"))
	assert.True(t, strings.HasPrefix(lines[5], "5,09:15:42,"))
}

// End to end over the documented 5-row scenario: corrected gsw identical
// across the identical rows and strictly below the uncorrected 0.3.
func Test_EndToEnd_ReferenceScenario(t *testing.T) {
	d, err := ReadLi600CSV(strings.NewReader(tripleHeaderCSV))
	assert.NoError(t, err)

	summary, err := Correct(d, DefaultParams(), false)
	assert.NoError(t, err)
	assert.Equal(t, 5, summary.Rows)
	assert.Equal(t, 0, summary.FallbackRows)

	for i := 0; i < 5; i++ {
		assert.Equal(t, d.GswCorrected[0], d.GswCorrected[i])
		assert.Less(t, d.GswCorrected[i], 0.3)
		assert.Equal(t, 1.0, d.StomatalSidedness[i])
		assert.Greater(t, d.WChambCorrected[i], 0.0)
		assert.Less(t, d.WChambCorrected[i], 1.0)
	}
}
