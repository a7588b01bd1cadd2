package sheet

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/sheets/v4"
)

// GoogleBook is a Google Sheets spreadsheet; each table is one sheet tab.
type GoogleBook struct {
	srv           *sheets.Service
	spreadsheetID string
}

func NewGoogleBook(srv *sheets.Service, spreadsheetID string) *GoogleBook {
	return &GoogleBook{srv: srv, spreadsheetID: spreadsheetID}
}

func (b *GoogleBook) Table(ctx context.Context, name string, header []string) (Table, error) {
	ss, err := b.srv.Spreadsheets.Get(b.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	var sheetID int64 = -1
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == name {
			sheetID = s.Properties.SheetId
			break
		}
	}
	if sheetID < 0 {
		resp, err := b.srv.Spreadsheets.BatchUpdate(b.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("add sheet %s: %w", name, err)
		}
		if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
			return nil, fmt.Errorf("add sheet %s: empty reply", name)
		}
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}
	t := &googleTable{srv: b.srv, spreadsheetID: b.spreadsheetID, name: name, sheetID: sheetID}
	if err := t.ensureHeader(ctx, header); err != nil {
		return nil, err
	}
	return t, nil
}

type googleTable struct {
	srv           *sheets.Service
	spreadsheetID string
	name          string
	sheetID       int64
}

func (t *googleTable) Name() string { return t.name }

// a1 quotes the sheet name for A1 notation.
func (t *googleTable) a1(rng string) string {
	return "'" + strings.ReplaceAll(t.name, "'", "''") + "'!" + rng
}

func (t *googleTable) ensureHeader(ctx context.Context, header []string) error {
	vr, err := t.srv.Spreadsheets.Values.Get(t.spreadsheetID, t.a1("1:1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header %s: %w", t.name, err)
	}
	if len(vr.Values) > 0 && len(vr.Values[0]) > 0 {
		return nil
	}
	_, err = t.srv.Spreadsheets.Values.Update(t.spreadsheetID, t.a1("A1"), toValueRange(header)).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header %s: %w", t.name, err)
	}
	return nil
}

func (t *googleTable) Rows(ctx context.Context) ([][]string, error) {
	vr, err := t.srv.Spreadsheets.Values.Get(t.spreadsheetID, t.a1("A2:Z")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.name, err)
	}
	out := make([][]string, len(vr.Values))
	for i, r := range vr.Values {
		row := make([]string, len(r))
		for j, c := range r {
			row[j] = fmt.Sprint(c)
		}
		out[i] = row
	}
	return out, nil
}

func (t *googleTable) Append(ctx context.Context, row []string) error {
	_, err := t.srv.Spreadsheets.Values.Append(t.spreadsheetID, t.a1("A1"), toValueRange(row)).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", t.name, err)
	}
	return nil
}

func (t *googleTable) Update(ctx context.Context, index int, row []string) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, index)
	}
	rng := t.a1(fmt.Sprintf("A%d", index+2))
	_, err := t.srv.Spreadsheets.Values.Update(t.spreadsheetID, rng, toValueRange(row)).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	return nil
}

func (t *googleTable) Delete(ctx context.Context, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, index)
	}
	_, err := t.srv.Spreadsheets.BatchUpdate(t.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         t.sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(index + 1),
					EndIndex:        int64(index + 2),
					ForceSendFields: []string{"SheetId"},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete %s row %d: %w", t.name, index, err)
	}
	return nil
}

func toValueRange(row []string) *sheets.ValueRange {
	vals := make([]interface{}, len(row))
	for i, v := range row {
		vals[i] = v
	}
	return &sheets.ValueRange{Values: [][]interface{}{vals}}
}
