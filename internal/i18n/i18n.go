package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// DefaultLanguage is used when Init has not been called.
const DefaultLanguage = "en"

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	mu     sync.RWMutex
	bundle *i18n.Bundle
)

// Init loads the translation bundle with lang as the default language.
func Init(lang string) error {
	b, err := load(lang)
	if err != nil {
		return err
	}
	mu.Lock()
	bundle = b
	mu.Unlock()
	return nil
}

func load(lang string) (*i18n.Bundle, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return nil, fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}
	return b, nil
}

func current() *i18n.Bundle {
	mu.RLock()
	b := bundle
	mu.RUnlock()
	if b != nil {
		return b
	}

	mu.Lock()
	defer mu.Unlock()
	if bundle == nil {
		b, err := load(DefaultLanguage)
		if err != nil {
			// Embedded files only; a failure here is a build defect.
			panic(err)
		}
		bundle = b
	}
	return bundle
}

// NewLocalizer creates a localizer for the given languages, in order of
// preference. Accept-Language header values are accepted.
func NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(current(), langs...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	return NewLocalizer(DefaultLanguage)
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	s, err := localizerFromCtx(ctx).Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}
