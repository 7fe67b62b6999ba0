// Package assets resolves the pre-recorded voice notes sent back to farmers.
package assets

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/logger"
	"github.com/pestalert/pestalert-go/internal/model"
)

const defaultCacheTTL = 10 * time.Minute

var (
	// ErrAssetMissing is wrapped by Resolve when a voice note file is absent.
	ErrAssetMissing = errors.NewStd("voice note missing")
	// ErrUnknownCategory is wrapped by Resolve for categories outside the catalog.
	ErrUnknownCategory = errors.NewStd("unknown voice note category")
)

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
}

// Availability reports which categories have a file.
type Availability struct {
	Available bool                  `json:"available"`
	Missing   []model.AudioCategory `json:"missing,omitempty"`
}

// Info describes a catalog entry without loading it.
type Info struct {
	Category model.AudioCategory `json:"category"`
	Filename string              `json:"filename"`
	Exists   bool                `json:"exists"`
	Size     int64               `json:"size,omitempty"`
}

// Catalog maps the three voice-note categories to files inside an fs.FS.
// Loaded files stay in memory for the cache TTL. Safe for concurrent use.
type Catalog struct {
	fsys  fs.FS
	files map[model.AudioCategory]string
	cache *cache.Cache
	log   logger.Logger
}

// New creates a catalog over the directory in s.Dir.
func New(s conf.AssetSettings, log logger.Logger) *Catalog {
	files := map[model.AudioCategory]string{
		model.AudioNormal:    s.Normal,
		model.AudioAlert:     s.Alert,
		model.AudioUncertain: s.Uncertain,
	}
	return NewFromFS(os.DirFS(s.Dir), files, s.CacheTTL, log)
}

// NewFromFS creates a catalog over fsys. Categories without a file name are
// reported missing.
func NewFromFS(fsys fs.FS, files map[model.AudioCategory]string, ttl time.Duration, log logger.Logger) *Catalog {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c := &Catalog{
		fsys:  fsys,
		files: make(map[model.AudioCategory]string, len(files)),
		cache: cache.New(ttl, ttl*2),
		log:   logger.OrDiscard(log).Module("assets"),
	}
	for cat, name := range files {
		c.files[cat] = strings.TrimSpace(name)
	}
	return c
}

// Resolve loads the voice note for category. A missing file yields an error
// wrapping ErrAssetMissing; callers treat it as non-fatal.
func (c *Catalog) Resolve(ctx context.Context, category model.AudioCategory) (*model.AudioAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, c.fail(err, category, "")
	}

	if !isKnown(category) {
		return nil, errors.New(ErrUnknownCategory).
			Component("assets").
			Category(errors.CategoryValidation).
			Context("category", string(category)).
			Build()
	}

	if v, found := c.cache.Get(string(category)); found {
		return cloneAsset(v.(*model.AudioAsset)), nil
	}

	name := c.files[category]
	if name == "" {
		return nil, c.fail(ErrAssetMissing, category, name)
	}
	data, err := fs.ReadFile(c.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Warn("voice note missing",
				logger.String("category", string(category)),
				logger.String("filename", name))
			return nil, c.fail(ErrAssetMissing, category, name)
		}
		return nil, c.fail(err, category, name)
	}

	asset := &model.AudioAsset{
		Category: category,
		Filename: path.Base(name),
		MIMEType: mimeType(name),
		Size:     int64(len(data)),
		Data:     data,
	}
	c.cache.SetDefault(string(category), asset)

	return cloneAsset(asset), nil
}

// cloneAsset copies a cached asset so callers never share its bytes.
func cloneAsset(src *model.AudioAsset) *model.AudioAsset {
	a := *src
	a.Data = slices.Clone(src.Data)
	return &a
}

// CheckAvailability reports categories whose file cannot be found.
func (c *Catalog) CheckAvailability() Availability {
	var missing []model.AudioCategory
	for _, cat := range model.AudioCategories() {
		if !c.Info(cat).Exists {
			missing = append(missing, cat)
		}
	}
	return Availability{Available: len(missing) == 0, Missing: missing}
}

// Info stats the file behind category.
func (c *Catalog) Info(category model.AudioCategory) Info {
	info := Info{Category: category, Filename: c.files[category]}
	if info.Filename == "" {
		return info
	}
	st, err := fs.Stat(c.fsys, info.Filename)
	if err != nil || st.IsDir() {
		return info
	}
	info.Exists = true
	info.Size = st.Size()
	return info
}

func (c *Catalog) fail(err error, category model.AudioCategory, name string) error {
	b := errors.New(err).
		Component("assets").
		Context("category", string(category))
	switch {
	case errors.Is(err, ErrAssetMissing):
		b = b.Category(errors.CategoryNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// category detected from the context error
	default:
		b = b.Category(errors.CategoryFileIO)
	}
	if name != "" {
		b = b.Context("filename", name)
	}
	return b.Build()
}

func isKnown(category model.AudioCategory) bool {
	return slices.Contains(model.AudioCategories(), category)
}

func mimeType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
