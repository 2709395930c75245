package builtin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestSearchBillsToolExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bills", r.URL.Path)
		query := r.URL.Query()
		assert.Equal(t, "11", query.Get("屆"))
		assert.Equal(t, "2", query.Get("會期"))
		assert.Equal(t, "法律案", query.Get("議案類別"))
		assert.Equal(t, "王美惠", query.Get("提案人"))
		assert.Equal(t, `"稅"`, query.Get("q"))
		assert.Equal(t, "提案來源,議案類別,議案狀態", query.Get("agg"))
		_, _ = io.WriteString(w, `{"total":1,"bills":[{"議案編號":"202110001","議案名稱":"所得稅法修正草案"}]}`)
	}))
	defer server.Close()

	tool := &SearchBillsTool{API: newTestClient(server)}
	raw, err := tool.Execute(context.Background(), json.RawMessage(`{"session":"2","bill_type":"法律案","proposer":"王美惠","keyword":"稅"}`))
	require.NoError(t, err)
	assert.Equal(t, "所得稅法修正草案", gjson.GetBytes(raw, "bills.0.議案名稱").String())
}

func TestSearchBillsToolExecute_OmitsUnsetFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "9", query.Get("屆"))
		for _, key := range []string{"會期", "議案類別", "提案人", "q"} {
			assert.False(t, query.Has(key), key)
		}
		_, _ = io.WriteString(w, `{"total":0,"bills":[]}`)
	}))
	defer server.Close()

	tool := &SearchBillsTool{API: newTestClient(server)}
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"term":9,"keyword":"  "}`))
	require.NoError(t, err)
}

func TestSearchBillsToolExecute_InvalidInput(t *testing.T) {
	tool := &SearchBillsTool{API: &lyClient{}}
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"session":"second"}`))
	require.Error(t, err)
}
