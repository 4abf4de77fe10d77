package sheets

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// GoogleWriter writes batches to a Google spreadsheet.
type GoogleWriter struct {
	service       *sheets.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleWriter creates a writer for spreadsheetID. Authentication comes
// from opts, normally option.WithCredentialsFile.
func NewGoogleWriter(ctx context.Context, spreadsheetID string, logger *zap.Logger, opts ...option.ClientOption) (*GoogleWriter, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleWriter{service: service, spreadsheetID: spreadsheetID, logger: logger}, nil
}

// WriteBatch creates the sheet when missing. When Clear is set or the first
// row differs from the header, the sheet content is replaced by header plus
// rows in one atomic spreadsheet update; otherwise the rows are appended in
// one call.
func (w *GoogleWriter) WriteBatch(ctx context.Context, batch Batch) error {
	props, err := w.ensureSheet(ctx, batch.Sheet)
	if err != nil {
		return err
	}
	sheetRange := quoteSheet(batch.Sheet)

	replace := batch.Clear
	if !replace {
		current, err := w.service.Spreadsheets.Values.Get(w.spreadsheetID, sheetRange+"!1:1").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("read header of %s: %w", batch.Sheet, err)
		}
		replace = len(current.Values) == 0 || !slices.Equal(cellsToStrings(current.Values[0]), batch.Header)
	}

	if replace {
		request := &sheets.BatchUpdateSpreadsheetRequest{Requests: replaceRequests(props, batch)}
		if _, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, request).Context(ctx).Do(); err != nil {
			return fmt.Errorf("write %s: %w", batch.Sheet, err)
		}
		w.logger.Info("Replaced sheet content", zap.String("sheet", batch.Sheet), zap.Int("rows", len(batch.Rows)))
		return nil
	}

	if len(batch.Rows) == 0 {
		return nil
	}
	_, err = w.service.Spreadsheets.Values.Append(w.spreadsheetID, sheetRange+"!A1", &sheets.ValueRange{Values: rowsToCells(batch.Rows)}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", batch.Sheet, err)
	}
	w.logger.Info("Appended rows to sheet", zap.String("sheet", batch.Sheet), zap.Int("rows", len(batch.Rows)))
	return nil
}

// replaceRequests clears every value of the sheet and writes header plus
// rows from A1. The spreadsheet API applies the requests together or not at all.
func replaceRequests(props *sheets.SheetProperties, batch Batch) []*sheets.Request {
	data := make([]*sheets.RowData, 0, len(batch.Rows)+1)
	data = append(data, rowData(batch.Header))
	for _, row := range batch.Rows {
		data = append(data, rowData(row))
	}

	var requests []*sheets.Request
	if props.GridProperties != nil && int64(len(data)) > props.GridProperties.RowCount {
		requests = append(requests, &sheets.Request{
			AppendDimension: &sheets.AppendDimensionRequest{
				SheetId:   props.SheetId,
				Dimension: "ROWS",
				Length:    int64(len(data)) - props.GridProperties.RowCount,
			},
		})
	}
	return append(requests,
		&sheets.Request{UpdateCells: &sheets.UpdateCellsRequest{
			Range:  &sheets.GridRange{SheetId: props.SheetId, ForceSendFields: []string{"SheetId"}},
			Fields: "userEnteredValue",
		}},
		&sheets.Request{UpdateCells: &sheets.UpdateCellsRequest{
			Start:  &sheets.GridCoordinate{SheetId: props.SheetId, ForceSendFields: []string{"SheetId"}},
			Rows:   data,
			Fields: "userEnteredValue",
		}},
	)
}

// ensureSheet returns the properties of the sheet titled title, adding the
// sheet when it does not exist.
func (w *GoogleWriter) ensureSheet(ctx context.Context, title string) (*sheets.SheetProperties, error) {
	spreadsheet, err := w.service.Spreadsheets.Get(w.spreadsheetID).
		Fields("sheets.properties(sheetId,title,gridProperties.rowCount)").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return sheet.Properties, nil
		}
	}
	request := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		}},
	}
	resp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, request).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("add sheet %s: %w", title, err)
	}
	w.logger.Info("Created sheet", zap.String("sheet", title))
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		return resp.Replies[0].AddSheet.Properties, nil
	}
	return &sheets.SheetProperties{Title: title}, nil
}

func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func stringsToCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}

func rowData(row []string) *sheets.RowData {
	cells := make([]*sheets.CellData, len(row))
	for i, v := range row {
		value := v
		cells[i] = &sheets.CellData{UserEnteredValue: &sheets.ExtendedValue{StringValue: &value}}
	}
	return &sheets.RowData{Values: cells}
}

func rowsToCells(rows [][]string) [][]interface{} {
	cells := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells[i] = stringsToCells(row)
	}
	return cells
}

func cellsToStrings(cells []interface{}) []string {
	row := make([]string, len(cells))
	for i, v := range cells {
		row[i] = fmt.Sprint(v)
	}
	return row
}
