package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
)

const listCafesPath = "/cafes/"

// GetCafeByOwner returns the cafe owned by userID. A cafe-less owner yields
// an error matching ErrNotFound.
func (c *Client) GetCafeByOwner(ctx context.Context, userID string) (*Cafe, error) {
	var cafe Cafe
	if err := c.doJSON(ctx, http.MethodGet, "/cafes/owner/{userId}", "/cafes/owner/"+escape(userID), nil, &cafe); err != nil {
		return nil, err
	}
	return &cafe, nil
}

func (c *Client) GetCafe(ctx context.Context, cafeID string) (*Cafe, error) {
	var cafe Cafe
	if err := c.doJSON(ctx, http.MethodGet, "/cafes/{cafeId}", "/cafes/"+escape(cafeID), nil, &cafe); err != nil {
		return nil, err
	}
	return &cafe, nil
}

// ListCafes returns the discovery list. Served from the response cache when
// one is configured.
func (c *Client) ListCafes(ctx context.Context) ([]Cafe, error) {
	var cafes []Cafe
	if err := c.getCached(ctx, listCafesPath, listCafesPath, &cafes); err != nil {
		return nil, err
	}
	return cafes, nil
}

func (c *Client) UpdateCafe(ctx context.Context, cafeID string, update CafeUpdate) (*Cafe, error) {
	path := "/cafes/" + escape(cafeID)
	var cafe Cafe
	if err := c.doJSON(ctx, http.MethodPatch, "/cafes/{cafeId}", path, update, &cafe); err != nil {
		return nil, err
	}
	c.invalidate(ctx, listCafesPath, path)
	return &cafe, nil
}

func (c *Client) DeleteCafe(ctx context.Context, cafeID string) error {
	path := "/cafes/" + escape(cafeID)
	if err := c.doJSON(ctx, http.MethodDelete, "/cafes/{cafeId}", path, nil, nil); err != nil {
		return err
	}
	c.invalidate(ctx, listCafesPath, path)
	return nil
}

// CreateCafe submits the onboarding form as multipart/form-data.
func (c *Client) CreateCafe(ctx context.Context, form CafeForm) (*Cafe, error) {
	body, contentType, err := encodeMultipart(form.Fields, map[string][]File{
		"cafe_photos": form.CafePhotos,
		"menu_photos": form.MenuPhotos,
	})
	if err != nil {
		return nil, fmt.Errorf("encode cafe form: %w", err)
	}

	respBody, err := c.send(ctx, http.MethodPost, "/cafes", "/cafes", contentType, body, nil)
	if err != nil {
		return nil, err
	}
	var cafe Cafe
	if err := decodeInto(http.MethodPost, "/cafes", respBody, &cafe); err != nil {
		return nil, err
	}
	c.invalidate(ctx, listCafesPath)
	return &cafe, nil
}

// encodeMultipart writes fields in key order, then each file group in key
// order, into an in-memory form body.
func encodeMultipart(fields map[string]string, files map[string][]File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, key := range sortedKeys(fields) {
		if err := w.WriteField(key, fields[key]); err != nil {
			return nil, "", err
		}
	}

	for _, field := range sortedKeys(files) {
		for _, f := range files[field] {
			if f.Body == nil {
				return nil, "", fmt.Errorf("file %q in %s has no body", f.Name, field)
			}
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
			contentType := f.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			header.Set("Content-Type", contentType)
			part, err := w.CreatePart(header)
			if err != nil {
				return nil, "", err
			}
			if _, err := io.Copy(part, f.Body); err != nil {
				return nil, "", fmt.Errorf("copy %s: %w", f.Name, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
