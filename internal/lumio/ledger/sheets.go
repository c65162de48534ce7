package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// callTimeout bounds every Sheets API call.
const callTimeout = 30 * time.Second

// Sheets is the Google Sheets v4 implementation of Ledger. Rows are
// (日期, 項目, 金額, 備註) in one worksheet.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string

	mu         sync.Mutex
	headerSeen bool
}

// NewSheets returns a Ledger writing to worksheet of spreadsheetID.
func NewSheets(ctx context.Context, spreadsheetID, worksheet string, opts ...option.ClientOption) (*Sheets, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("ledger: spreadsheet id is required")
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ledger: new sheets service: %w", err)
	}
	if worksheet == "" {
		worksheet = "records"
	}
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, worksheet: worksheet}, nil
}

// a1 qualifies a cell range with the worksheet name.
func (s *Sheets) a1(cells string) string {
	return "'" + strings.ReplaceAll(s.worksheet, "'", "''") + "'!" + cells
}

// Append writes e as a new row, inserting the header first when the
// worksheet does not start with it.
func (s *Sheets) Append(ctx context.Context, e SpendEntry) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := s.ensureHeader(ctx); err != nil {
		return err
	}
	row := &sheets.ValueRange{Values: [][]interface{}{{
		e.DateString(),
		e.Category,
		e.Amount.InexactFloat64(),
		e.Note,
	}}}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.a1("A:D"), row).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

func (s *Sheets) ensureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headerSeen {
		return nil
	}

	res, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("A1:A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("ledger: read header: %w", err)
	}
	first := ""
	if len(res.Values) > 0 && len(res.Values[0]) > 0 {
		first = fmt.Sprint(res.Values[0][0])
	}
	if first == Header[0] {
		s.headerSeen = true
		return nil
	}
	if first != "" {
		if err := s.insertTopRow(ctx); err != nil {
			return err
		}
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.a1("A1:D1"), &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("ledger: write header: %w", err)
	}
	s.headerSeen = true
	return nil
}

// insertTopRow shifts existing rows down by one.
func (s *Sheets) insertTopRow(ctx context.Context) error {
	doc, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("ledger: read spreadsheet: %w", err)
	}
	var sheetID int64 = -1
	for _, sh := range doc.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.worksheet {
			sheetID = sh.Properties.SheetId
			break
		}
	}
	if sheetID < 0 {
		return fmt.Errorf("ledger: worksheet %q not found", s.worksheet)
	}

	_, err = s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      0,
					EndIndex:        1,
					// Zero values are dropped by omitempty otherwise.
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("ledger: insert header row: %w", err)
	}
	return nil
}

// Records returns every data row, mapping columns by the header names.
func (s *Sheets) Records(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	res, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("A:D")).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("ledger: read records: %w", err)
	}
	return parseRows(res.Values), nil
}

func parseRows(rows [][]interface{}) []Record {
	if len(rows) == 0 {
		return nil
	}
	dateCol, catCol, amtCol := 0, 1, 2
	start := 0
	if len(rows[0]) > 0 && fmt.Sprint(rows[0][0]) == Header[0] {
		for i, cell := range rows[0] {
			switch fmt.Sprint(cell) {
			case Header[0]:
				dateCol = i
			case Header[1]:
				catCol = i
			case Header[2]:
				amtCol = i
			}
		}
		start = 1
	}

	out := make([]Record, 0, len(rows)-start)
	for _, row := range rows[start:] {
		out = append(out, Record{
			Date:     cellString(row, dateCol),
			Category: cellString(row, catCol),
			Amount:   cellDecimal(row, amtCol),
		})
	}
	return out
}

func cellString(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

// cellDecimal reads a numeric cell. Unparsable cells count as zero.
func cellDecimal(row []interface{}, i int) decimal.Decimal {
	if i >= len(row) {
		return decimal.Zero
	}
	switch v := row[i].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		s := strings.NewReplacer(",", "", "$", "", " ", "").Replace(v)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
