package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/loomwork/loom/internal/logger"
	"github.com/loomwork/loom/pkg/costledger"
	"github.com/loomwork/loom/pkg/sdk"
)

// OCRClient is the external OCR collaborator (spec §1 Non-goals: concrete
// OCR vendor APIs are out of scope; this is the one reference adapter).
type OCRClient interface {
	Fetch(ctx context.Context, pdfPath string, annotate bool) (OCRResponse, float64, error)
}

// HTTPOCRClient is a reference OCR adapter over a generic HTTP OCR
// service, following the same raw-HTTP-JSON idiom as index/llm.go.
type HTTPOCRClient struct {
	BaseURL    string
	APIKey     string
	httpClient *http.Client
}

// NewHTTPOCRClient builds a client for baseURL with apiKey (spec §6
// ocr_api_key, required for ingestion OCR; cmd/loom-ingest passes the
// OCR_API_KEY environment value).
func NewHTTPOCRClient(baseURL, apiKey string) *HTTPOCRClient {
	if baseURL == "" {
		baseURL = "https://api.ocr.example/v1"
	}
	return &HTTPOCRClient{BaseURL: baseURL, APIKey: apiKey, httpClient: &http.Client{Timeout: 120 * time.Second}}
}

type ocrRequest struct {
	UseAnnotations bool `json:"use_annotations"`
}

// Fetch calls the OCR service for pdfPath. With annotations, cost
// multiplies roughly 3x but downstream TOC extraction becomes more
// reliable (spec §4.6).
func (c *HTTPOCRClient) Fetch(ctx context.Context, pdfPath string, annotate bool) (OCRResponse, float64, error) {
	if c.APIKey == "" {
		return OCRResponse{}, 0, sdk.NewError(sdk.ErrConfig, "ingest.OCR.Fetch", "ocr_api_key is required", nil)
	}

	f, err := os.Open(pdfPath)
	if err != nil {
		return OCRResponse{}, 0, sdk.NewError(sdk.ErrRemoteFatal, "ingest.OCR.Fetch", "open pdf "+pdfPath, err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(ocrRequest{UseAnnotations: annotate}); err != nil {
		return OCRResponse{}, 0, fmt.Errorf("marshal ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ocr", io.MultiReader(body, f))
	if err != nil {
		return OCRResponse{}, 0, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OCRResponse{}, 0, sdk.NewError(sdk.ErrRemoteTransient, "ingest.OCR.Fetch", "ocr request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return OCRResponse{}, 0, fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return OCRResponse{}, 0, sdk.NewError(sdk.ErrRemoteTransient, "ingest.OCR.Fetch", fmt.Sprintf("ocr service %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return OCRResponse{}, 0, sdk.NewError(sdk.ErrRemoteFatal, "ingest.OCR.Fetch", fmt.Sprintf("ocr service %d: %s", resp.StatusCode, string(raw)), nil)
	}

	var out OCRResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return OCRResponse{}, 0, sdk.NewError(sdk.ErrSchema, "ingest.OCR.Fetch", "malformed ocr response", err)
	}
	out.Annotated = annotate
	out.FetchedAt = time.Now()

	cost := 0.02 * float64(len(out.Pages))
	if annotate {
		cost *= 3
	}
	return out, cost, nil
}

// RunOCR implements the OCR Stage (spec §4.6): either reuses a cached
// response (skip_ocr) or calls the external client, persisting the result
// and the incurred cost. OCR failures are fatal; partial responses are
// never accepted.
func RunOCR(ctx context.Context, client OCRClient, ledger *costledger.Ledger, docName, pdfPath string, cfg Config) (OCRResponse, error) {
	log := logger.GetLogger()

	if cfg.SkipOCR {
		if cached, ok, err := ledger.LoadOCR(docName); err != nil {
			return OCRResponse{}, err
		} else if ok {
			var resp OCRResponse
			if err := json.Unmarshal(cached, &resp); err != nil {
				return OCRResponse{}, sdk.NewError(sdk.ErrSchema, "ingest.RunOCR", "malformed cached OCR for "+docName, err)
			}
			log.Info().Str("doc", docName).Int("pages", resp.PageCount()).Msg("skip_ocr: reusing cached OCR response")
			return resp, nil
		}
		log.Warn().Str("doc", docName).Msg("skip_ocr requested but no cache found; calling OCR")
	}

	resp, cost, err := client.Fetch(ctx, pdfPath, cfg.UseOCRAnnotations)
	if err != nil {
		return OCRResponse{}, sdk.NewError(sdk.ErrRemoteFatal, "ingest.RunOCR", "ocr failed for "+docName, err)
	}
	if len(resp.Pages) == 0 {
		return OCRResponse{}, sdk.NewError(sdk.ErrRemoteFatal, "ingest.RunOCR", "ocr returned zero pages for "+docName, nil)
	}
	resp.DocName = docName

	if err := ledger.AddOCR(docName, cost); err != nil {
		return OCRResponse{}, err
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return OCRResponse{}, fmt.Errorf("marshal ocr response: %w", err)
	}
	if err := ledger.CacheOCR(docName, data); err != nil {
		return OCRResponse{}, err
	}
	return resp, nil
}

// ExtractImages extracts the images embedded in pdfPath into
// outDir/images, under the file names pdfcpu gives them; files are not
// renamed to a page_<p>_image_<i>.<ext> layout. The returned OCRImages
// carry Path and Ext only: Page and Index are left at zero. Grounded on
// pdfcpu/pdfcpu (DESIGN.md domain stack).
func ExtractImages(pdfPath, outDir string) ([]OCRImage, error) {
	imagesDir := filepath.Join(outDir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, sdk.NewError(sdk.ErrRemoteFatal, "ingest.ExtractImages", "create images dir", err)
	}

	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return nil, sdk.NewError(sdk.ErrRemoteFatal, "ingest.ExtractImages", "count pages in "+pdfPath, err)
	}

	if err := api.ExtractImagesFile(pdfPath, imagesDir, nil, nil); err != nil {
		return nil, sdk.NewError(sdk.ErrRemoteFatal, "ingest.ExtractImages", "extract images from "+pdfPath, err)
	}

	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return nil, sdk.NewError(sdk.ErrRemoteFatal, "ingest.ExtractImages", "read images dir", err)
	}

	var images []OCRImage
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		images = append(images, OCRImage{
			Path: filepath.Join(imagesDir, e.Name()),
			Ext:  filepath.Ext(e.Name()),
		})
	}

	logger.GetLogger().Info().Str("pdf", pdfPath).Int("pages", pageCount).Int("images", len(images)).Msg("extracted embedded images")
	return images, nil
}
