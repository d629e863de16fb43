package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
)

// DefaultTimeout covers the slow summarize+transcribe round trip; the
// backend runs speech recognition synchronously.
const DefaultTimeout = 10 * time.Minute

// Client talks to the lesson analysis backend.
type Client struct {
	client  *http.Client
	baseURL string
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		client:  httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type lessonSummaryResponse struct {
	SpeechSegments      []model.Segment `json:"speech_segments"`
	CorrectedTranscript string          `json:"corrected_transcript"`
	Summary             string          `json:"summary"`
}

// ProcessLesson uploads a recorded lesson and returns the summary and timed
// speech segments the backend produced from it.
func (c *Client) ProcessLesson(ctx context.Context, audioPath string) (*model.LessonData, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("writing audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/lesson-summary", body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading lesson audio: %w", err)
	}
	defer resp.Body.Close()

	data, err := readSuccessBody(resp)
	if err != nil {
		return nil, err
	}

	var parsed lessonSummaryResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding lesson summary response: %w", err)
	}

	return &model.LessonData{
		SpeechSegments: parsed.SpeechSegments,
		Summary:        parsed.Summary,
	}, nil
}

// readSuccessBody returns the response body for 2xx responses and a
// ServerError carrying the status and trimmed body otherwise.
func readSuccessBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(data))
		const maxMsg = 512
		if len(msg) > maxMsg {
			msg = msg[:maxMsg]
		}
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}
	return data, nil
}
