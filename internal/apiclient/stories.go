package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

func (c *Client) ListCafeStories(ctx context.Context, cafeID string) ([]Story, error) {
	var out []Story
	path := "/liveUpdates/cafe/" + escape(cafeID)
	if err := c.doJSON(ctx, http.MethodGet, "/liveUpdates/cafe/{cafeId}", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListUserStories(ctx context.Context, userSub string) ([]Story, error) {
	var out []Story
	path := "/liveUpdates/user/" + escape(userSub)
	if err := c.doJSON(ctx, http.MethodGet, "/liveUpdates/user/{userSub}", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateStory uploads a photo story as multipart/form-data.
func (c *Client) CreateStory(ctx context.Context, upload StoryUpload) error {
	body, contentType, err := encodeMultipart(
		map[string]string{"cafe_id": upload.CafeID, "user_id": upload.UserID},
		map[string][]File{"photo": {upload.Photo}},
	)
	if err != nil {
		return fmt.Errorf("encode story upload: %w", err)
	}
	if _, err := c.send(ctx, http.MethodPost, "/liveUpdates", "/liveUpdates", contentType, body, nil); err != nil {
		return err
	}
	c.invalidate(ctx, listCafesPath)
	return nil
}

// CreateStoryDirect records a story whose image is already uploaded.
func (c *Client) CreateStoryDirect(ctx context.Context, story StoryDirect) error {
	if err := c.doJSON(ctx, http.MethodPost, "/liveUpdates/direct", "/liveUpdates/direct", story, nil); err != nil {
		return err
	}
	c.invalidate(ctx, listCafesPath)
	return nil
}

func (c *Client) PresignUpload(ctx context.Context, req PresignRequest) (*PresignedUpload, error) {
	var out PresignedUpload
	if err := c.doJSON(ctx, http.MethodPost, "/upload/presigned-url", "/upload/presigned-url", req, &out); err != nil {
		return nil, err
	}
	if out.UploadURL == "" || out.FileURL == "" {
		return nil, fmt.Errorf("presigned upload response missing urls")
	}
	return &out, nil
}

// UploadObject PUTs body to a presigned storage URL. The URL is absolute and
// carries its own credentials, so no bearer token is attached.
func (c *Client) UploadObject(ctx context.Context, uploadURL, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("upload object: %w", ctxErr)
		}
		return fmt.Errorf("upload object: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn().Int("status", resp.StatusCode).Msg("Presigned upload rejected")
		return &APIError{Method: http.MethodPut, Path: "presigned upload", Status: resp.StatusCode, Detail: extractDetail(raw)}
	}
	return nil
}
