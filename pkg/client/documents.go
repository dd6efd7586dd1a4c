package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"net/textproto"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/lumina/pkg/document"
)

const (
	// DefaultTopK is the number of chunks SearchDocuments asks for when topK
	// is not positive.
	DefaultTopK = 5

	// maxParallelUploads bounds UploadDocuments.
	maxParallelUploads = 3
)

func documentsPath(chatID string) string {
	return chatPath(chatID) + "/documents"
}

func documentPath(chatID, documentID string) string {
	return documentsPath(chatID) + "/" + url.PathEscape(documentID)
}

// UploadDocument uploads r as filename to a chat for indexing.
func (c *Client) UploadDocument(ctx context.Context, chatID, filename string, r io.Reader) (*document.UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipartFile(mw, filename, r))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+documentsPath(chatID), pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.send(req)
	// Unblocks the writer goroutine if the request ended before the body
	// was fully consumed.
	_ = pr.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}
	defer resp.Body.Close()

	var out document.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}

	c.logger.Debug("uploaded document",
		zap.String("chat_id", chatID),
		zap.String("filename", filename),
		zap.String("document_id", out.Document.ID),
		zap.String("status", string(out.Document.Status)),
	)

	return &out, nil
}

func writeMultipartFile(mw *multipart.Writer, filename string, r io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", document.MimeType(filename))

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// UploadResult is the outcome of one file of UploadDocuments.
type UploadResult struct {
	Path     string
	Response *document.UploadResponse
	Err      error
}

// UploadDocuments validates and uploads files concurrently. Every file gets
// a result, in input order; one failure does not cancel the others.
func (c *Client) UploadDocuments(ctx context.Context, chatID string, paths []string) []UploadResult {
	results := make([]UploadResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)

	for i, path := range paths {
		results[i].Path = path
		g.Go(func() error {
			resp, err := c.uploadFile(gctx, chatID, path)
			results[i].Response = resp
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Client) uploadFile(ctx context.Context, chatID, path string) (*document.UploadResponse, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("reading %s: is a directory", path)
	}
	if err := document.Validate(path, info.Size()); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return c.UploadDocument(ctx, chatID, filepath.Base(path), f)
}

// ListDocuments lists a chat's documents. A chat the server does not know
// has no documents.
func (c *Client) ListDocuments(ctx context.Context, chatID string) (*document.ListResponse, error) {
	var out document.ListResponse
	err := c.do(ctx, http.MethodGet, documentsPath(chatID), nil, &out)
	if IsNotFound(err) {
		return &document.ListResponse{Documents: []document.Document{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	return &out, nil
}

// GetDocument returns one document of a chat.
func (c *Client) GetDocument(ctx context.Context, chatID, documentID string) (*document.Document, error) {
	var out document.Document
	if err := c.do(ctx, http.MethodGet, documentPath(chatID, documentID), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &out, nil
}

// DeleteDocument removes a document from a chat.
func (c *Client) DeleteDocument(ctx context.Context, chatID, documentID string) error {
	if err := c.do(ctx, http.MethodDelete, documentPath(chatID, documentID), nil, nil); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// SearchDocuments retrieves the topK chunks of a chat's documents most
// relevant to query.
func (c *Client) SearchDocuments(ctx context.Context, chatID, query string, topK int) (*document.SearchResponse, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	body := struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}{Query: query, TopK: topK}

	var out document.SearchResponse
	if err := c.do(ctx, http.MethodPost, documentsPath(chatID)+"/search", body, &out); err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	return &out, nil
}
