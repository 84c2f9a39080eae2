package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed all:locales
var localeFS embed.FS

// Manager owns the message bundle and one cached localizer per language.
type Manager struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	logger          *zap.Logger
	localizers      map[string]*i18n.Localizer
	availableLangs  map[string]string // code -> base language name
}

// NewManager loads the embedded locale files. defaultLang is a BCP 47 tag
// such as "en".
func NewManager(defaultLang string, logger *zap.Logger) (*Manager, error) {
	defaultTag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("invalid default language tag '%s': %w", defaultLang, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	m := &Manager{
		bundle:          bundle,
		defaultLanguage: defaultTag,
		logger:          logger.Named("i18n"),
		localizers:      make(map[string]*i18n.Localizer),
		availableLangs:  make(map[string]string),
	}
	if err := m.loadTranslations(); err != nil {
		return nil, err
	}

	for code := range m.availableLangs {
		m.localizers[code] = i18n.NewLocalizer(m.bundle, code)
	}
	if _, ok := m.localizers[defaultLang]; !ok {
		m.localizers[defaultLang] = i18n.NewLocalizer(m.bundle, defaultLang)
		m.logger.Warn("Default language was not found in locale files", zap.String("lang", defaultLang))
	}

	m.logger.Info("i18n Manager initialized",
		zap.String("default_language", defaultLang),
		zap.Int("loaded_languages", len(m.availableLangs)),
	)
	return m, nil
}

func (m *Manager) loadTranslations() error {
	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return fmt.Errorf("failed to read embedded locales directory: %w", err)
	}

	loaded := 0
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || filepath.Ext(name) != ".toml" {
			continue
		}
		if _, err := m.bundle.LoadMessageFileFS(localeFS, "locales/"+name); err != nil {
			m.logger.Warn("Failed to load translation file", zap.String("file", name), zap.Error(err))
			continue
		}
		loaded++

		// active.en.toml -> en
		parts := strings.Split(strings.TrimSuffix(name, ".toml"), ".")
		code := parts[len(parts)-1]
		display := code
		if tag, err := language.Parse(code); err == nil {
			base, _ := tag.Base()
			display = base.String()
		}
		m.availableLangs[code] = display
	}

	if loaded == 0 {
		return errors.New("no valid translation files loaded")
	}
	return nil
}

// localizer picks the best available localizer for lang, which may be a
// full tag like "zh-CN" or an Accept-Language style list.
func (m *Manager) localizer(lang string) *i18n.Localizer {
	if lang != "" {
		if l, ok := m.localizers[lang]; ok {
			return l
		}
		if tags, _, err := language.ParseAcceptLanguage(lang); err == nil {
			for _, tag := range tags {
				base, _ := tag.Base()
				if l, ok := m.localizers[base.String()]; ok {
					return l
				}
			}
		}
	}
	return m.localizers[m.defaultLanguage.String()]
}

// T translates key. args may hold an int (plural count), alternating
// string keys and values (template data), or a map[string]any.
func (m *Manager) T(lang string, key string, args ...any) string {
	localizer := m.localizer(lang)
	if localizer == nil {
		return key
	}

	cfg := &i18n.LocalizeConfig{MessageID: key}
	data := make(map[string]any)
	for i := 0; i < len(args); i++ {
		switch v := args[i].(type) {
		case int:
			if cfg.PluralCount == nil {
				cfg.PluralCount = v
			}
		case string:
			if i+1 < len(args) {
				data[v] = args[i+1]
				i++
			} else {
				m.logger.Warn("Odd number of template arguments", zap.String("key", key), zap.String("last_key", v))
			}
		case map[string]any:
			for k, val := range v {
				data[k] = val
			}
		default:
			m.logger.Warn("Unsupported argument type in T", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", v)))
		}
	}
	if len(data) > 0 {
		cfg.TemplateData = data
	}

	localized, err := localizer.Localize(cfg)
	if err != nil {
		var notFound *i18n.MessageNotFoundErr
		if !errors.As(err, &notFound) {
			m.logger.Error("Failed to localize message", zap.String("key", key), zap.String("lang", lang), zap.Error(err))
		}
		if localized == "" {
			return key
		}
	}
	return localized
}

// AvailableLanguages returns a copy of the loaded language codes.
func (m *Manager) AvailableLanguages() map[string]string {
	langs := make(map[string]string, len(m.availableLangs))
	for code, name := range m.availableLangs {
		langs[code] = name
	}
	return langs
}

func (m *Manager) DefaultLanguage() language.Tag {
	return m.defaultLanguage
}
