// Package sheets implements the source.Transport contract against the
// Google Sheets values API. It is deliberately thin: one attempt per call,
// no caching; the source.Adapter owns retries.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadflow_backend/internal/source"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

type Client struct {
	baseURL       string
	spreadsheetID string
	sheetName     string
	token         string
	http          *http.Client
	log           *logger.Logger
}

func NewClient(cfg config.SourceConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.GetSourceBaseURL(), "/"),
		spreadsheetID: cfg.GetSourceSpreadsheetID(),
		sheetName:     cfg.GetSourceSheetName(),
		token:         cfg.GetSourceToken(),
		http:          &http.Client{Timeout: 15 * time.Second},
		log:           log,
	}
}

type valuesResponse struct {
	Values [][]string `json:"values"`
}

type valuesUpdate struct {
	Values [][]string `json:"values"`
}

// FetchAll reads the whole sheet and maps columns by header name, so column
// reordering in the spreadsheet does not break the engine.
func (c *Client) FetchAll(ctx context.Context) ([]source.RowData, error) {
	values, err := c.getValues(ctx)
	if err != nil {
		return nil, err
	}
	if len(values) <= 1 {
		return nil, nil
	}

	index := headerIndex(values[0])
	rows := make([]source.RowData, 0, len(values)-1)
	for _, cells := range values[1:] {
		row := rowFromCells(cells, index)
		if strings.TrimSpace(row.ID) == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteField locates the row by ID, updates the requested cell and stamps
// Last_Update in the same batch.
func (c *Client) WriteField(ctx context.Context, rowID, field, value string) error {
	values, err := c.getValues(ctx)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("sheet %q is empty", c.sheetName)
	}

	index := headerIndex(values[0])
	fieldCol, ok := index[field]
	if !ok {
		return fmt.Errorf("unknown column %q", field)
	}
	idCol, ok := index[source.FieldID]
	if !ok {
		return fmt.Errorf("sheet %q has no ID column", c.sheetName)
	}

	rowNumber := 0
	for i, cells := range values[1:] {
		if idCol < len(cells) && strings.TrimSpace(cells[idCol]) == rowID {
			rowNumber = i + 2 // 1-based, header is row 1
			break
		}
	}
	if rowNumber == 0 {
		return fmt.Errorf("row %q not found", rowID)
	}

	if err := c.putCell(ctx, fieldCol, rowNumber, value); err != nil {
		return err
	}

	if field != source.FieldLastUpdate {
		if updateCol, ok := index[source.FieldLastUpdate]; ok {
			if err := c.putCell(ctx, updateCol, rowNumber, source.FormatTime(time.Now())); err != nil {
				return err
			}
		}
	}

	c.log.Debug("source field written", "row_id", rowID, "field", field)
	return nil
}

func (c *Client) getValues(ctx context.Context) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s",
		c.baseURL, c.spreadsheetID, url.PathEscape(c.sheetName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sheets API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed valuesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode sheets response: %w", err)
	}
	return parsed.Values, nil
}

func (c *Client) putCell(ctx context.Context, col, rowNumber int, value string) error {
	cell := fmt.Sprintf("%s!%s%d", c.sheetName, columnLetter(col), rowNumber)
	endpoint := fmt.Sprintf("%s/spreadsheets/%s/values/%s?valueInputOption=RAW",
		c.baseURL, c.spreadsheetID, url.PathEscape(cell))

	body, err := json.Marshal(valuesUpdate{Values: [][]string{{value}}})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sheets write failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sheets API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	return index
}

func rowFromCells(cells []string, index map[string]int) source.RowData {
	get := func(field string) string {
		col, ok := index[field]
		if !ok || col >= len(cells) {
			return ""
		}
		return cells[col]
	}
	return source.RowData{
		ID:                get(source.FieldID),
		Name:              get(source.FieldName),
		Phone:             get(source.FieldPhone),
		Seller:            get(source.FieldSeller),
		Source:            get(source.FieldSource),
		CreatedAt:         get(source.FieldCreatedAt),
		Status:            get(source.FieldStatus),
		Call1Time:         get(source.FieldCall1Time),
		Call2Time:         get(source.FieldCall2Time),
		Call3Time:         get(source.FieldCall3Time),
		NextFollowup:      get(source.FieldNextFollowup),
		FirstClassDate:    get(source.FieldFirstClassDate),
		FirstClassConfirm: get(source.FieldFirstClassConfirm),
		Comment:           get(source.FieldComment),
		LastUpdate:        get(source.FieldLastUpdate),
	}
}

// columnLetter converts a zero-based column index to its A1 letter form.
func columnLetter(col int) string {
	letters := ""
	for col >= 0 {
		letters = string(rune('A'+col%26)) + letters
		col = col/26 - 1
	}
	return letters
}
