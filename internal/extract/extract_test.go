package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/markasorgu/api/schemas"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

// -- Search Extraction Tests --

func TestSearchRecords_LimitAndOrder(t *testing.T) {
	html := loadFixture(t, "search_acme.html")

	got := SearchRecords(html, 3)

	want := []schemas.BrandRecord{
		{ApplicationNo: "2021/000101", MarkaName: "ACME", HolderName: "ACME GIDA A.Ş.", ApplicationDate: "04.01.2021", CurrentStatus: "TESCİL EDİLDİ", NiceClasses: "29 / 30"},
		{ApplicationNo: "2021/000102", MarkaName: "ACME PLUS", HolderName: "ACME TEKSTİL LTD. ŞTİ.", ApplicationDate: "05.01.2021", CurrentStatus: "YAYINDA", NiceClasses: "25"},
		{ApplicationNo: "2021/000104", MarkaName: "ACME KIDS", HolderName: "ÇOCUK DÜNYASI A.Ş.", ApplicationDate: "06.01.2021", CurrentStatus: "RED", NiceClasses: "28 / 35"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SearchRecords() mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchRecords_Bounds(t *testing.T) {
	html := loadFixture(t, "search_acme.html")

	testCases := []struct {
		name  string
		limit int
		want  int
	}{
		{"limit above qualifying rows", 100, 5},
		{"exact", 5, 5},
		{"one", 1, 1},
		{"zero", 0, 0},
		{"negative", -4, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := SearchRecords(html, tc.limit)
			assert.Len(t, got, tc.want)
			assert.NotNil(t, got)
		})
	}
}

func TestSearchRecords_ShortRowsSkipped(t *testing.T) {
	html := loadFixture(t, "search_acme.html")

	for _, rec := range SearchRecords(html, 100) {
		assert.NotEqual(t, "2021/000103", rec.ApplicationNo, "row with four cells must not be extracted")
	}
}

func TestSearchRecords_Idempotent(t *testing.T) {
	html := loadFixture(t, "search_acme.html")

	first := SearchRecords(html, 10)
	second := SearchRecords(html, 10)
	assert.Empty(t, cmp.Diff(first, second))
}

func TestSearchRecords_HeaderRowAlwaysSkipped(t *testing.T) {
	// A data-shaped first row is still treated as the header.
	row := "<tr>" + strings.Repeat("<td>x</td>", 8) + "</tr>"
	html := "<table>" + row + row + "</table>"

	assert.Len(t, SearchRecords(html, 10), 1)
}

func TestSearchRecords_Degenerate(t *testing.T) {
	assert.Empty(t, SearchRecords("", 10))
	assert.Empty(t, SearchRecords("<html><body><p>Sonuç bulunamadı</p></body></html>", 10))
	assert.Empty(t, SearchRecords("<table><tr><td>only header", 10))
}

// -- Detail Extraction Tests --

func TestDetail_LabelValuePairs(t *testing.T) {
	d := Detail(loadFixture(t, "detail.html"))

	assert.True(t, d.Found)
	assert.Equal(t, "2021/000101", d.MarkaBilgileri["Başvuru Numarası"])
	assert.Equal(t, "04.01.2021", d.MarkaBilgileri["Başvuru Tarihi"], "second pair of a four cell row")
	assert.Equal(t, "ACME", d.MarkaBilgileri["Marka Adı"])
	assert.Equal(t, "ACME GIDA A.Ş. İSTANBUL", d.MarkaBilgileri["Sahip Bilgileri"], "th cells count as labels")
	assert.Equal(t, "29 / 30", d.MarkaBilgileri["Nice Sınıfları"])
	assert.Equal(t, "Tebliğ Tarihi", d.MarkaBilgileri["Tarih"], "process header row still yields its first pair")

	assert.NotContains(t, d.MarkaBilgileri, "Tescil Numarası", "empty values are dropped")
	assert.NotContains(t, d.MarkaBilgileri, "Son İşlem", "labels mentioning the process log are excluded")
	assert.NotContains(t, d.MarkaBilgileri, "İşlem")
	assert.NotContains(t, d.MarkaBilgileri, "Boş", "single cell rows contribute nothing")
}

func TestDetail_ProcessLogFromLastTable(t *testing.T) {
	d := Detail(loadFixture(t, "detail.html"))

	want := []schemas.ProcessEntry{
		{Tarih: "04.01.2021", TebligTarihi: "-", Islem: "BAŞVURU", Aciklama: "Elektronik başvuru"},
		{Tarih: "15.02.2021", TebligTarihi: "20.02.2021", Islem: "YAYIN", Aciklama: ""},
		{Tarih: "30.03.2021", TebligTarihi: "-", Islem: "TESCİL", Aciklama: "Tescil edildi"},
	}
	if diff := cmp.Diff(want, d.IslemBilgileri); diff != "" {
		t.Errorf("IslemBilgileri mismatch (-want +got):\n%s", diff)
	}
}

func TestDetail_LastWriteWins(t *testing.T) {
	html := `<table>
		<tr><td>Durum</td><td>BAŞVURU</td></tr>
		<tr><td>Durum</td><td>TESCİL</td></tr>
	</table>`

	d := Detail(html)
	assert.Equal(t, "TESCİL", d.MarkaBilgileri["Durum"])
}

func TestDetail_Degenerate(t *testing.T) {
	testCases := []struct {
		name string
		html string
	}{
		{"empty", ""},
		{"no tables", "<div>Kayıt yok</div>"},
		{"truncated", "<table><tr><td>Marka"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := Detail(tc.html)
			require.NotNil(t, d.MarkaBilgileri)
			require.NotNil(t, d.IslemBilgileri)
			assert.Empty(t, d.IslemBilgileri)
		})
	}
}

func TestDetail_Idempotent(t *testing.T) {
	html := loadFixture(t, "detail.html")
	assert.Empty(t, cmp.Diff(Detail(html), Detail(html)))
}
