package export

import (
	"context"
	"errors"
	"testing"

	"github.com/bharatemr/practice/internal/platform/browser"
	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/pkg/pagination"
)

type person struct {
	Name string
	Age  int
}

var people = Sheet[person]{
	Name: "People",
	Columns: []Column[person]{
		{Header: "Name", Width: 20, Value: func(p person) any { return p.Name }},
		{Header: "Age", Value: func(p person) any { return p.Age }},
	},
}

func TestWrite(t *testing.T) {
	data, err := Write(people, []person{{"Meera", 36}, {"", 41}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	rows, err := ReadRows(data)
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Name" || rows[0][1] != "Age" {
		t.Errorf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "Meera" || rows[1][1] != "36" {
		t.Errorf("unexpected first row %v", rows[1])
	}
	if rows[2][0] != "" || rows[2][1] != "41" {
		t.Errorf("expected empty cell to stay blank, got %v", rows[2])
	}
}

func TestWrite_EmptyHasHeaderOnly(t *testing.T) {
	data, err := Write(people, nil)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := ReadRows(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("expected header only, got %d rows", len(rows))
	}
}

func testSchema() *query.Schema {
	return query.MustSchema(query.Config{SortKeys: []string{"name"}, DefaultSort: "name", DefaultPageSize: 10})
}

func TestCollect_WalksAllPages(t *testing.T) {
	all := make([]person, 23)
	for i := range all {
		all[i] = person{Age: i}
	}
	var pages []int
	fetch := browser.FetcherFunc[person](func(_ context.Context, q query.State) (*pagination.Page[person], error) {
		pages = append(pages, q.Page)
		p := pagination.Params{Page: q.Page, PageSize: q.PageSize}
		start, end := p.Window(len(all))
		return pagination.NewPage(all[start:end], len(all), p), nil
	})

	s := testSchema()
	st := s.ApplyUpdate(s.Defaults(), query.SetPage(2))
	rows, err := Collect[person](context.Background(), fetch, s, st)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 23 || rows[22].Age != 22 {
		t.Errorf("expected all 23 rows in order, got %d", len(rows))
	}
	if len(pages) != 3 || pages[0] != 1 {
		t.Errorf("expected pages 1..3, got %v", pages)
	}
}

func TestCollect_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	fetch := browser.FetcherFunc[person](func(context.Context, query.State) (*pagination.Page[person], error) {
		return nil, boom
	})
	s := testSchema()
	if _, err := Collect[person](context.Background(), fetch, s, s.Defaults()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
