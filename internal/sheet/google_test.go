package sheet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func TestGoogleTable_ReadAppendDelete(t *testing.T) {
	var mu sync.Mutex
	var appended, batch []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, ":batchUpdate"):
			batch = append(batch, string(body))
			_, _ = w.Write([]byte(`{"spreadsheetId":"sid","replies":[{}]}`))
		case strings.HasSuffix(path, ":append"):
			appended = append(appended, string(body))
			_, _ = w.Write([]byte(`{"spreadsheetId":"sid"}`))
		case strings.Contains(path, "!1:1"):
			_, _ = w.Write([]byte(`{"range":"log!1:1","values":[["time","id"]]}`))
		case strings.Contains(path, "!A2:Z"):
			_, _ = w.Write([]byte(`{"range":"log!A2:Z","values":[["t1","a"],["t2"]]}`))
		case strings.HasSuffix(path, "/spreadsheets/sid"):
			_, _ = w.Write([]byte(`{"spreadsheetId":"sid","sheets":[{"properties":{"sheetId":0,"title":"log"}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	srv, err := sheets.NewService(ctx, option.WithEndpoint(server.URL+"/"), option.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	tbl, err := NewGoogleBook(srv, "sid").Table(ctx, "log", []string{"time", "id"})
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	rows, err := tbl.Rows(ctx)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[0][1] != "a" || Cell(rows[1], 1) != "" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if err := tbl.Append(ctx, []string{"t3", "c"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tbl.Delete(ctx, 0); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(appended) != 1 || !strings.Contains(appended[0], `"t3"`) {
		t.Fatalf("append body: %v", appended)
	}
	if len(batch) != 1 {
		t.Fatalf("batch calls: %v", batch)
	}
	var req struct {
		Requests []struct {
			DeleteDimension struct {
				Range map[string]any `json:"range"`
			} `json:"deleteDimension"`
		} `json:"requests"`
	}
	if err := json.Unmarshal([]byte(batch[0]), &req); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	rng := req.Requests[0].DeleteDimension.Range
	if _, ok := rng["sheetId"]; !ok {
		t.Fatalf("sheetId 0 must be sent explicitly: %v", rng)
	}
	if rng["startIndex"] != float64(1) || rng["endIndex"] != float64(2) {
		t.Fatalf("data row 0 is sheet row index 1: %v", rng)
	}
}
