package whatsapp

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

	"waprofiles/pkg/constants"
	"waprofiles/pkg/whatsapp/types"
)

// APIError is a non-2xx response from WAHA. Message is the text WAHA returned.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// apiClient is a thin JSON client for the WAHA REST API.
type apiClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func newAPIClient(baseURL, apiKey string, timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultHTTPTimeoutSec) * time.Second
	}
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	var errResp types.WAHAErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Text() != "" {
		return &APIError{StatusCode: status, Message: errResp.Text()}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: fmt.Sprintf("request failed with status %d: %s", status, text)}
}

func (c *apiClient) sendText(ctx context.Context, session, chatID, text string) (*types.SentMessage, error) {
	req := types.SendMessageRequest{ChatID: chatID, Text: text, Session: session}

	var resp types.WAHAMessageResponse
	if err := c.do(ctx, http.MethodPost, types.APIBase+types.EndpointSendText, nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.ToSentMessage(), nil
}

func (c *apiClient) getContacts(ctx context.Context, session string) ([]types.Contact, error) {
	query := url.Values{"session": []string{session}}

	var contacts []types.Contact
	if err := c.do(ctx, http.MethodGet, types.APIBase+types.EndpointContactsAll, query, nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *apiClient) getChats(ctx context.Context, session string) ([]types.Chat, error) {
	var chats []types.Chat
	path := fmt.Sprintf("%s/%s%s", types.APIBase, url.PathEscape(session), types.EndpointChats)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (c *apiClient) getQRValue(ctx context.Context, session string) (string, error) {
	query := url.Values{"format": []string{"raw"}}
	path := fmt.Sprintf("%s/%s%s", types.APIBase, url.PathEscape(session), types.EndpointAuthQR)

	var qr types.QRValue
	if err := c.do(ctx, http.MethodGet, path, query, nil, &qr); err != nil {
		return "", err
	}
	if qr.Value == "" {
		return "", fmt.Errorf("empty pairing code for session %s", session)
	}
	return qr.Value, nil
}
