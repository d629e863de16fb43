package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lessonsync/lessonsync/pkg/lessonsync/model"
)

// DirectiveRequest is the body sent to the directive parsing endpoint.
type DirectiveRequest struct {
	Text string `json:"text"`
}

type directiveResponse struct {
	Annotations []model.Directive `json:"annotations"`
}

// BuildDirectiveRequest wraps a transcript for the parse-directives call.
// A blank transcript is a caller error: the orchestrator is expected to
// treat it as "no annotations" without a round trip.
func BuildDirectiveRequest(fullTranscript string) (DirectiveRequest, error) {
	if strings.TrimSpace(fullTranscript) == "" {
		return DirectiveRequest{}, ErrBlankTranscript
	}
	return DirectiveRequest{Text: fullTranscript}, nil
}

// ParseDirectives sends the transcript to the backend and returns the
// validated directive list. Entries with a non-positive measure or blank
// directive text are dropped; only a structurally unparsable response fails.
func (c *Client) ParseDirectives(ctx context.Context, fullTranscript string) ([]model.Directive, error) {
	request, err := BuildDirectiveRequest(fullTranscript)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshaling directive request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/parse-directives", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting directives: %w", err)
	}
	defer resp.Body.Close()

	data, err := readSuccessBody(resp)
	if err != nil {
		return nil, err
	}

	return parseDirectiveResponse(data)
}

func parseDirectiveResponse(data []byte) ([]model.Directive, error) {
	var parsed directiveResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &TranslationError{Err: err}
	}

	valid := make([]model.Directive, 0, len(parsed.Annotations))
	for _, entry := range parsed.Annotations {
		if entry.Measure < 1 {
			continue
		}
		if strings.TrimSpace(entry.Directive) == "" {
			continue
		}
		valid = append(valid, entry)
	}
	return valid, nil
}
