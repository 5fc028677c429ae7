package schemas

// -- Record Schemas --

// BrandRecord is one row of the trademark search results table.
// Every field defaults to the empty string when its cell is missing.
type BrandRecord struct {
	MarkaName       string `json:"markaName"`
	ApplicationNo   string `json:"applicationNo"`
	HolderName      string `json:"holderName"`
	ApplicationDate string `json:"applicationDate"`
	CurrentStatus   string `json:"currentStatus"`
	NiceClasses     string `json:"niceClasses"`
}

// ProcessEntry is one row of the process log (İşlem Bilgileri) in the detail view.
type ProcessEntry struct {
	Tarih        string `json:"tarih"`
	TebligTarihi string `json:"tebligTarihi"`
	Islem        string `json:"islem"`
	Aciklama     string `json:"aciklama"`
}

// DetailResult is the profile extracted from a single record's detail view.
type DetailResult struct {
	// MarkaBilgileri maps a label from the detail tables to its value. Last write wins.
	MarkaBilgileri map[string]string `json:"markaBilgileri"`
	// IslemBilgileri is the process log in source row order.
	IslemBilgileri []ProcessEntry `json:"islemBilgileri"`
	// Found is false when the search produced no DETAY control for the application number.
	Found bool `json:"-"`
}

// NewDetailResult returns an empty, found result with non-nil collections.
func NewDetailResult() DetailResult {
	return DetailResult{
		MarkaBilgileri: make(map[string]string),
		IslemBilgileri: make([]ProcessEntry, 0),
		Found:          true,
	}
}

// NotFoundDetail is the structured outcome for an application number with no match.
func NotFoundDetail() DetailResult {
	d := NewDetailResult()
	d.Found = false
	return d
}
