package schemas_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/markasorgu/api/schemas"
)

func TestNewSearchQuery(t *testing.T) {
	t.Parallel()

	t.Run("applies default limit", func(t *testing.T) {
		q, err := schemas.NewSearchQuery("  ACME ", 0)
		require.NoError(t, err)
		assert.Equal(t, "ACME", q.Text)
		assert.Equal(t, schemas.DefaultSearchLimit, q.Limit)
	})

	t.Run("keeps a positive limit", func(t *testing.T) {
		q, err := schemas.NewSearchQuery("ACME", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, q.Limit)
	})

	t.Run("clamps oversized limit", func(t *testing.T) {
		q, err := schemas.NewSearchQuery("ACME", 10_000)
		require.NoError(t, err)
		assert.Equal(t, schemas.MaxSearchLimit, q.Limit)
	})

	t.Run("rejects blank text", func(t *testing.T) {
		_, err := schemas.NewSearchQuery("   ", 5)
		require.Error(t, err)
		assert.True(t, errors.Is(err, schemas.ErrValidation))
		assert.Contains(t, err.Error(), "Arama terimi gerekli")
	})
}

func TestNewDetailQuery(t *testing.T) {
	t.Parallel()

	q, err := schemas.NewDetailQuery(" 2023/012345 ")
	require.NoError(t, err)
	assert.Equal(t, "2023/012345", q.ApplicationNo)

	_, err = schemas.NewDetailQuery("")
	require.ErrorIs(t, err, schemas.ErrValidation)
	assert.Contains(t, err.Error(), "Başvuru numarası gerekli")
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	sq, err := schemas.NewSearchQuery("ACME", 3)
	require.NoError(t, err)
	search := schemas.NewSearchTask(sq)
	assert.NotEmpty(t, search.ID)
	assert.Equal(t, schemas.TaskSearch, search.Kind)
	assert.NoError(t, search.Validate())

	dq, err := schemas.NewDetailQuery("2023/1")
	require.NoError(t, err)
	detail := schemas.NewDetailTask(dq)
	assert.NotEqual(t, search.ID, detail.ID, "task IDs should be unique")
	assert.NoError(t, detail.Validate())

	assert.ErrorIs(t, schemas.Task{Kind: schemas.TaskSearch}.Validate(), schemas.ErrValidation)
	assert.ErrorIs(t, schemas.Task{Kind: schemas.TaskDetail}.Validate(), schemas.ErrValidation)
	assert.ErrorIs(t, schemas.Task{Kind: "BOGUS"}.Validate(), schemas.ErrValidation)
}

// TestDetailResultJSON checks the wire names and that empty collections never serialize as null.
func TestDetailResultJSON(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(schemas.NotFoundDetail())
	require.NoError(t, err)
	assert.JSONEq(t, `{"markaBilgileri":{},"islemBilgileri":[]}`, string(raw))

	d := schemas.NewDetailResult()
	assert.True(t, d.Found)
	d.IslemBilgileri = append(d.IslemBilgileri, schemas.ProcessEntry{Tarih: "01.01.2024", Islem: "Başvuru"})
	raw, err = json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tebligTarihi":""`)
	assert.Contains(t, string(raw), `"islem":"Başvuru"`)
}

func TestBrandRecordJSONTags(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(schemas.BrandRecord{MarkaName: "ACME", ApplicationNo: "2024/1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"markaName":"ACME","applicationNo":"2024/1","holderName":"","applicationDate":"","currentStatus":"","niceClasses":""}`, string(raw))
}
