package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patients"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", DefaultLimit, 0},
		{"custom", "?limit=5&offset=10", 5, 10},
		{"max limit", "?limit=1000", MaxLimit, 0},
		{"negative offset", "?offset=-4", DefaultLimit, 0},
		{"garbage", "?limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromContext(contextFor(tt.query))
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want %d/%d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 2})
	if !page.HasMore || page.Total != 5 {
		t.Errorf("expected more pages, got %+v", page)
	}

	last := NewPage([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	if last.HasMore {
		t.Error("expected last page")
	}
}

func TestNewPage_EmptyIsArray(t *testing.T) {
	b, err := json.Marshal(NewPage[int](nil, 0, Params{Limit: DefaultLimit}))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"data":[],"total":0,"limit":20,"offset":0,"has_more":false}`
	if string(b) != want {
		t.Errorf("got %s", b)
	}
}
