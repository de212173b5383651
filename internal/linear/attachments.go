package linear

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SizeWarningThreshold is the download size above which a warning is logged.
const SizeWarningThreshold = 10 * 1024 * 1024

var (
	uploadURLRe     = regexp.MustCompile(`https://uploads\.linear\.app/[^\s\)\]"'<>]+`)
	markdownImageRe = regexp.MustCompile(`!\[([^\]]*)\]\((https://uploads\.linear\.app/[^\s\)]+)\)`)
	extensionRe     = regexp.MustCompile(`\.\w{2,5}$`)
	unsafeNameRe    = regexp.MustCompile(`[<>:"/\\|?*]`)
	spaceRe         = regexp.MustCompile(`\s+`)
	dashesRe        = regexp.MustCompile(`-+`)
	// The section ends at the next heading, horizontal rule or end of text.
	attachmentSectionRe = regexp.MustCompile(`(?s)### Attachments\n(.*?)(?:\n###|\n---|\n##|\z)`)
)

var contentTypeExt = map[string]string{
	"image/png":        ".png",
	"image/jpeg":       ".jpg",
	"image/jpg":        ".jpg",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
	"image/svg+xml":    ".svg",
	"application/pdf":  ".pdf",
	"text/plain":       ".txt",
	"application/json": ".json",
	"application/zip":  ".zip",
}

// Source tells where in the triage output an attachment was found.
type Source string

const (
	SourceEmbedded   Source = "embedded"
	SourceAttachment Source = "attachment"
)

// Attachment is one Linear upload referenced by agent output.
type Attachment struct {
	ID       string
	URL      string
	Filename string
	Source   Source
}

// ExtractURLs finds Linear upload URLs in markdown. Image alt text that
// looks like a filename is used as the name; otherwise the last path
// segment of the URL is.
func ExtractURLs(markdown string) []Attachment {
	seen := make(map[string]bool)
	var out []Attachment

	for _, m := range markdownImageRe.FindAllStringSubmatch(markdown, -1) {
		alt, u := m[1], m[2]
		if seen[u] {
			continue
		}
		seen[u] = true
		name := filenameFromURL(u)
		if hasExtension(alt) {
			name = strings.TrimSpace(alt)
		}
		out = append(out, newAttachment(u, name))
	}

	for _, u := range uploadURLRe.FindAllString(markdown, -1) {
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, newAttachment(u, filenameFromURL(u)))
	}
	return out
}

// ParseAttachments extracts every upload URL in output and marks the
// ones listed under a "### Attachments" heading as explicit attachments.
func ParseAttachments(output string) []Attachment {
	all := ExtractURLs(output)

	m := attachmentSectionRe.FindStringSubmatch(output)
	if m == nil {
		return all
	}
	for _, att := range ExtractURLs(m[1]) {
		found := false
		for i := range all {
			if all[i].URL == att.URL {
				all[i].Source = SourceAttachment
				found = true
				break
			}
		}
		if !found {
			att.Source = SourceAttachment
			all = append(all, att)
		}
	}
	return all
}

func newAttachment(u, name string) Attachment {
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	sum := sha256.Sum256([]byte(u))
	return Attachment{
		ID:       hex.EncodeToString(sum[:])[:12],
		URL:      u,
		Filename: name,
		Source:   SourceEmbedded,
	}
}

func hasExtension(s string) bool {
	return extensionRe.MatchString(strings.TrimSpace(s))
}

func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "attachment"
	}
	base := path.Base(u.Path)
	if base == "" || base == "/" || base == "." {
		return "attachment"
	}
	return base
}

func sanitizeFilename(name string) string {
	name = unsafeNameRe.ReplaceAllString(name, "-")
	name = spaceRe.ReplaceAllString(name, "-")
	name = dashesRe.ReplaceAllString(name, "-")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return contentTypeExt[strings.ToLower(mediaType)]
}

// Downloader saves attachments under <root>/<issue>/.
type Downloader struct {
	httpClient *http.Client
	root       string
	logger     *slog.Logger
}

// NewDownloader creates a downloader writing below root
// (normally <dir>/.foundry/attachments).
func NewDownloader(root string, httpClient *http.Client, logger *slog.Logger) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{httpClient: httpClient, root: root, logger: logger}
}

// Download fetches every attachment named in triage output for issue and
// returns the local paths of the files it saved. Individual failures are
// logged and skipped; the returned error is only set when the issue
// directory cannot be created.
func (d *Downloader) Download(ctx context.Context, triageOutput, issue string) ([]string, error) {
	atts := ParseAttachments(triageOutput)
	if len(atts) == 0 {
		return nil, nil
	}

	dir := filepath.Join(d.root, sanitizeFilename(issue))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}

	log := d.logger.With("issue", issue)
	log.Info("downloading attachments", "count", len(atts))

	var paths []string
	var failed int
	for _, att := range atts {
		p, err := d.fetch(ctx, att, dir)
		if err != nil {
			failed++
			log.Warn("attachment download failed", "filename", att.Filename, "url", att.URL, "error", err)
			continue
		}
		log.Debug("attachment saved", "path", p)
		paths = append(paths, p)
	}
	log.Info("attachments downloaded", "saved", len(paths), "failed", failed)
	return paths, nil
}

// fetch downloads one attachment. Upload URLs are pre-signed, so no
// Authorization header is sent.
func (d *Downloader) fetch(ctx context.Context, att Attachment, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil && n > SizeWarningThreshold {
		d.logger.Warn("large attachment", "filename", att.Filename, "size_mb", n/1024/1024)
	}

	name := att.Filename
	if !hasExtension(name) {
		name += extensionFor(resp.Header.Get("Content-Type"))
	}
	local := filepath.Join(dir, att.ID+"-"+sanitizeFilename(name))

	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(local)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	return local, nil
}
