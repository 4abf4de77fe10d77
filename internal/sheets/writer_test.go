package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var header = []string{"repository", "contributor", "date", "commits"}

func TestMemoryWriter(t *testing.T) {
	testCases := []struct {
		name     string
		batches  []Batch
		expected [][]string
	}{
		{
			name:     "first write sets the header",
			batches:  []Batch{{Sheet: "s", Header: header, Rows: [][]string{{"r", "a", "2025-05-01", "1"}}}},
			expected: [][]string{header, {"r", "a", "2025-05-01", "1"}},
		},
		{
			name: "matching header appends",
			batches: []Batch{
				{Sheet: "s", Header: header, Rows: [][]string{{"r", "a", "2025-05-01", "1"}}},
				{Sheet: "s", Header: header, Rows: [][]string{{"r", "b", "2025-05-02", "2"}}},
			},
			expected: [][]string{header, {"r", "a", "2025-05-01", "1"}, {"r", "b", "2025-05-02", "2"}},
		},
		{
			name: "clear replaces",
			batches: []Batch{
				{Sheet: "s", Header: header, Rows: [][]string{{"r", "a", "2025-05-01", "1"}}},
				{Sheet: "s", Header: header, Rows: [][]string{{"r", "b", "2025-05-02", "2"}}, Clear: true},
			},
			expected: [][]string{header, {"r", "b", "2025-05-02", "2"}},
		},
		{
			name: "header change replaces",
			batches: []Batch{
				{Sheet: "s", Header: []string{"old"}, Rows: [][]string{{"x"}}},
				{Sheet: "s", Header: header, Rows: [][]string{{"r", "b", "2025-05-02", "2"}}},
			},
			expected: [][]string{header, {"r", "b", "2025-05-02", "2"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewMemoryWriter()
			for _, b := range tc.batches {
				require.NoError(t, w.WriteBatch(context.Background(), b))
			}

			assert.Equal(t, tc.expected, w.Sheet("s"))
			assert.Equal(t, len(tc.batches), w.Batches())
		})
	}
}

// fakeSheetsServer implements the subset of the Sheets v4 API the writer uses.
type fakeSheetsServer struct {
	mu          sync.Mutex
	titles      []string
	rows        [][]interface{}
	calls       []string
	failReplace bool
}

type batchUpdateBody struct {
	Requests []struct {
		AddSheet *struct {
			Properties struct {
				Title string `json:"title"`
			} `json:"properties"`
		} `json:"addSheet"`
		AppendDimension *struct {
			Length int64 `json:"length"`
		} `json:"appendDimension"`
		UpdateCells *struct {
			Rows []struct {
				Values []struct {
					UserEnteredValue struct {
						StringValue string `json:"stringValue"`
					} `json:"userEnteredValue"`
				} `json:"values"`
			} `json:"rows"`
		} `json:"updateCells"`
	} `json:"requests"`
}

func (f *fakeSheetsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var body batchUpdateBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Requests) > 0 && body.Requests[0].AddSheet != nil {
			f.calls = append(f.calls, "addSheet")
			f.titles = append(f.titles, body.Requests[0].AddSheet.Properties.Title)
			_, _ = w.Write([]byte(`{"replies":[{"addSheet":{"properties":{"sheetId":7,"title":"activity","gridProperties":{"rowCount":2}}}}]}`))
			return
		}
		f.calls = append(f.calls, "replace")
		if f.failReplace {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid request"}}`))
			return
		}
		var rows [][]interface{}
		for _, req := range body.Requests {
			if req.AppendDimension != nil {
				f.calls = append(f.calls, "grow")
			}
			if req.UpdateCells == nil {
				continue
			}
			for _, row := range req.UpdateCells.Rows {
				var values []interface{}
				for _, cell := range row.Values {
					values = append(values, cell.UserEnteredValue.StringValue)
				}
				rows = append(rows, values)
			}
		}
		f.rows = rows
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && !strings.Contains(path, "/values/"):
		f.calls = append(f.calls, "get")
		var sheets []map[string]any
		for _, title := range f.titles {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": title}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sheets": sheets})
	case r.Method == http.MethodGet:
		f.calls = append(f.calls, "header")
		var values [][]interface{}
		if len(f.rows) > 0 {
			values = f.rows[:1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": values})
	case strings.HasSuffix(path, ":append"):
		f.calls = append(f.calls, "append")
		f.rows = append(f.rows, decodeValues(r)...)
		_, _ = w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func decodeValues(r *http.Request) [][]interface{} {
	var body struct {
		Values [][]interface{} `json:"values"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body.Values
}

func newTestWriter(t *testing.T, fake *fakeSheetsServer) *GoogleWriter {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	w, err := NewGoogleWriter(context.Background(), "sid", zap.NewNop(),
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(server.Client()),
	)
	require.NoError(t, err)
	return w
}

func TestGoogleWriter_WriteBatch(t *testing.T) {
	testCases := []struct {
		name          string
		titles        []string
		rows          [][]interface{}
		clear         bool
		expectedCalls []string
		expectedRows  int
	}{
		{
			name:          "missing sheet is created, grown and written in one update",
			expectedCalls: []string{"get", "addSheet", "header", "replace", "grow"},
			expectedRows:  3,
		},
		{
			name:          "matching header appends once",
			titles:        []string{"activity"},
			rows:          [][]interface{}{{"repository", "contributor", "date", "commits"}, {"r", "x", "2025-04-30", "1"}},
			expectedCalls: []string{"get", "header", "append"},
			expectedRows:  4,
		},
		{
			name:          "clear skips the header check",
			titles:        []string{"activity"},
			rows:          [][]interface{}{{"repository", "contributor", "date", "commits"}, {"r", "x", "2025-04-30", "1"}},
			clear:         true,
			expectedCalls: []string{"get", "replace"},
			expectedRows:  3,
		},
		{
			name:          "stale header is replaced",
			titles:        []string{"activity"},
			rows:          [][]interface{}{{"old header"}},
			expectedCalls: []string{"get", "header", "replace"},
			expectedRows:  3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeSheetsServer{titles: tc.titles, rows: tc.rows}
			w := newTestWriter(t, fake)

			err := w.WriteBatch(context.Background(), Batch{
				Sheet:  "activity",
				Header: header,
				Rows:   [][]string{{"org/a", "alice", "2025-05-01", "2"}, {"org/a", "bob", "2025-05-02", "1"}},
				Clear:  tc.clear,
			})

			require.NoError(t, err)
			assert.Equal(t, tc.expectedCalls, fake.calls)
			assert.Len(t, fake.rows, tc.expectedRows)
		})
	}
}

func TestGoogleWriter_FailedReplaceKeepsRows(t *testing.T) {
	existing := [][]interface{}{{"repository", "contributor", "date", "commits"}, {"r", "x", "2025-04-30", "1"}}
	fake := &fakeSheetsServer{titles: []string{"activity"}, rows: existing, failReplace: true}
	w := newTestWriter(t, fake)

	err := w.WriteBatch(context.Background(), Batch{
		Sheet:  "activity",
		Header: header,
		Rows:   [][]string{{"org/a", "alice", "2025-05-01", "2"}},
		Clear:  true,
	})

	require.Error(t, err)
	assert.Equal(t, []string{"get", "replace"}, fake.calls)
	assert.Equal(t, existing, fake.rows)
}
