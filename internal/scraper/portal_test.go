package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTable = `
<table id="table1">
  <thead>
    <tr><th>Last Name</th><th>First Name</th><th>Email</th><th>Due</th><th>Web Site</th><th>Action</th></tr>
  </thead>
  <tbody>
    <tr><td>Smith</td><td>John</td><td>jsmith@gmail.com</td><td>$50.00</td><td>http://www.jsmith.com</td><td>edit</td></tr>
    <tr><td>Bach</td><td>Frank</td><td>fbach@yahoo.com</td><td>$51.00</td><td>http://www.frank.com</td><td>edit</td></tr>
    <tr><td>Doe</td><td>Jason</td><td>jdoe@hotmail.com</td><td>$4,000.00</td><td>http://www.jdoe.com</td><td>edit</td></tr>
  </tbody>
</table>`

func TestParseRecordsTable(t *testing.T) {
	records, err := ParseRecordsTable(sampleTable)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "John Smith", records[0].PatientName)
	assert.Equal(t, "50.00", records[0].AuthNumber)
	assert.Equal(t, "Pending", records[0].Status)

	// Thousands separators are stripped from the auth number.
	assert.Equal(t, "4000.00", records[2].AuthNumber)
}

func TestParseRecordsTable_SkipsIncompleteRows(t *testing.T) {
	html := `
<table id="table1">
  <tbody>
    <tr><td>OnlyOneCell</td></tr>
    <tr><td></td><td></td><td>x@y.com</td><td>$1.00</td></tr>
    <tr><td>Smith</td><td>John</td><td>jsmith@gmail.com</td><td>$50.00</td></tr>
  </tbody>
</table>`
	records, err := ParseRecordsTable(html)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "John Smith", records[0].PatientName)
}

func TestParseRecordsTable_Empty(t *testing.T) {
	records, err := ParseRecordsTable(`<table id="table1"><tbody></tbody></table>`)
	require.NoError(t, err)
	assert.Empty(t, records)
}
