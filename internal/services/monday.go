package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/Ananth-NQI/kb-request-bot/internal/config"
)

const createItemMutation = `mutation ($boardId: ID!, $itemName: String!, $columnValues: JSON!) {
  create_item (board_id: $boardId, item_name: $itemName, column_values: $columnValues) {
    id
    url
  }
}`

const addFileMutation = `mutation ($file: File!) {
  add_file_to_column (item_id: %s, column_id: %s, file: $file) {
    id
  }
}`

const boardHealthQuery = `query ($boardId: [ID!]) { boards (ids: $boardId) { id } }`

// MondayClient talks to the Monday.com GraphQL API.
type MondayClient struct {
	apiURL     string
	fileURL    string
	token      string
	boardID    string
	httpClient *http.Client
	fileClient *http.Client
}

// NewMondayClient creates a board client for cfg.
func NewMondayClient(cfg config.MondayConfig) *MondayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	fileTimeout := cfg.FileTimeout
	if fileTimeout <= 0 {
		fileTimeout = 90 * time.Second
	}
	return &MondayClient{
		apiURL:     cfg.APIURL,
		fileURL:    cfg.FileURL,
		token:      cfg.Token,
		boardID:    cfg.BoardID,
		httpClient: &http.Client{Timeout: timeout},
		fileClient: &http.Client{Timeout: fileTimeout},
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data         json.RawMessage `json:"data"`
	Errors       []graphQLError  `json:"errors"`
	ErrorMessage string          `json:"error_message"`
	ErrorCode    string          `json:"error_code"`
}

func (r *graphQLResponse) err() error {
	if len(r.Errors) > 0 {
		msgs := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			msgs[i] = e.Message
		}
		return fmt.Errorf("monday: %s", strings.Join(msgs, "; "))
	}
	if r.ErrorMessage != "" {
		return fmt.Errorf("monday: %s (%s)", r.ErrorMessage, r.ErrorCode)
	}
	return nil
}

func (m *MondayClient) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", m.token)
	h.Set("API-Version", "2024-10")
	return h
}

func (m *MondayClient) query(ctx context.Context, query string, vars map[string]any, out any) error {
	var resp graphQLResponse
	req := graphQLRequest{Query: query, Variables: vars}
	if err := doJSON(ctx, m.httpClient, ServiceBoard, http.MethodPost, m.apiURL, m.header(), req, &resp); err != nil {
		return err
	}
	if err := resp.err(); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decode monday data: %w", err)
		}
	}
	return nil
}

// CreateItem creates a board item and returns its id and URL.
func (m *MondayClient) CreateItem(ctx context.Context, item BoardItem) (*BoardRecord, error) {
	columns, err := json.Marshal(item.Columns)
	if err != nil {
		return nil, fmt.Errorf("encode column values: %w", err)
	}

	var data struct {
		CreateItem struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"create_item"`
	}
	vars := map[string]any{
		"boardId":      m.boardID,
		"itemName":     item.Name,
		"columnValues": string(columns),
	}
	if err := m.query(ctx, createItemMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.CreateItem.ID == "" {
		return nil, fmt.Errorf("monday: create_item returned no id")
	}
	return &BoardRecord{ID: data.CreateItem.ID, URL: data.CreateItem.URL}, nil
}

// UploadFile attaches file to the item's file column.
func (m *MondayClient) UploadFile(ctx context.Context, itemID, columnID string, file *Attachment) error {
	if _, err := strconv.ParseInt(itemID, 10, 64); err != nil {
		return fmt.Errorf("invalid item id %q", itemID)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	query := fmt.Sprintf(addFileMutation, itemID, strconv.Quote(columnID))
	if err := w.WriteField("query", query); err != nil {
		return err
	}

	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="variables[file]"; filename=%q`, file.Name))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	partHeader.Set("Content-Type", contentType)
	part, err := w.CreatePart(partHeader)
	if err != nil {
		return err
	}
	if _, err := part.Write(file.Content); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.fileURL, &body)
	if err != nil {
		return fmt.Errorf("build monday file request: %w", err)
	}
	req.Header = m.header()
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp graphQLResponse
	if err := send(m.fileClient, ServiceFileUpload, req, &resp); err != nil {
		return err
	}
	return resp.err()
}

// Health checks that the board is reachable with the configured token.
func (m *MondayClient) Health(ctx context.Context) ComponentHealth {
	if m.token == "" || m.boardID == "" {
		return ComponentHealth{Status: HealthUnhealthy, Message: "MONDAY_API_TOKEN or MONDAY_BOARD_ID not configured"}
	}

	var data struct {
		Boards []struct {
			ID string `json:"id"`
		} `json:"boards"`
	}
	if err := m.query(ctx, boardHealthQuery, map[string]any{"boardId": []string{m.boardID}}, &data); err != nil {
		return ComponentHealth{Status: HealthUnhealthy, Message: err.Error()}
	}
	if len(data.Boards) == 0 {
		return ComponentHealth{Status: HealthUnhealthy, Message: "board " + m.boardID + " not found"}
	}
	return ComponentHealth{Status: HealthHealthy}
}
