package utils

import (
	"context"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

type languageKey struct{}

// TemplateData представляет данные для подстановки в шаблон локализации
type TemplateData map[string]interface{}

var (
	i18nMu     sync.RWMutex
	i18nBundle *i18n.Bundle
	// Кешируются только локализаторы по значению Accept-Language, не данные пользователей
	localizers = make(map[string]*i18n.Localizer)
)

// SetI18nBundle устанавливает глобальный bundle; nil отключает перевод
func SetI18nBundle(bundle *i18n.Bundle) {
	i18nMu.Lock()
	defer i18nMu.Unlock()
	i18nBundle = bundle
	localizers = make(map[string]*i18n.Localizer)
}

// GetI18nBundle возвращает глобальный bundle для локализации
func GetI18nBundle() *i18n.Bundle {
	i18nMu.RLock()
	defer i18nMu.RUnlock()
	return i18nBundle
}

// WithLanguage stores the caller's Accept-Language value in ctx
func WithLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, languageKey{}, lang)
}

// GetLanguage returns the value stored by WithLanguage or "en"
func GetLanguage(ctx context.Context) string {
	if lang, ok := ctx.Value(languageKey{}).(string); ok && lang != "" {
		return lang
	}
	return "en"
}

func localizerFor(acceptLanguage string) *i18n.Localizer {
	i18nMu.RLock()
	localizer, ok := localizers[acceptLanguage]
	bundle := i18nBundle
	i18nMu.RUnlock()
	if ok || bundle == nil {
		return localizer
	}

	// Accept-Language may carry several weighted tags
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		tags = []language.Tag{language.English}
	}
	names := make([]string, len(tags))
	for i, tag := range tags {
		names[i] = tag.String()
	}
	localizer = i18n.NewLocalizer(bundle, names...)

	i18nMu.Lock()
	defer i18nMu.Unlock()
	if i18nBundle != bundle {
		// bundle сменился, пока создавался локализатор
		return localizer
	}
	localizers[acceptLanguage] = localizer
	return localizer
}

// T возвращает локализованную строку по ключу с подстановкой переменных.
// Without a bundle, or for an unknown id, the message id itself is returned.
func T(ctx context.Context, messageID string, data ...TemplateData) string {
	localizer := localizerFor(GetLanguage(ctx))
	if localizer == nil {
		return messageID
	}

	config := &i18n.LocalizeConfig{MessageID: messageID}
	if len(data) > 0 {
		config.TemplateData = data[0]
	}

	msg, err := localizer.Localize(config)
	if err != nil {
		Logger.Error("Failed to localize message",
			zap.String("messageID", messageID),
			zap.Error(err),
		)
		return messageID
	}
	return msg
}
